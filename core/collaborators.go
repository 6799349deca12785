package core

import (
	"context"
	"strings"
)

// Identity is the natural identifying tuple for an external record: the
// guardian's full name plus the player's full name.
type Identity struct {
	GuardianName string `json:"guardian_name"`
	PlayerName   string `json:"player_name"`
}

// Normalize case-folds and trims both names. Matching stays exact beyond
// that: punctuation and spacing variants still miss. Distinct people with
// similar names must never silently merge, so matching is not loosened
// further here.
func (id Identity) Normalize() Identity {
	return Identity{
		GuardianName: strings.ToLower(strings.TrimSpace(id.GuardianName)),
		PlayerName:   strings.ToLower(strings.TrimSpace(id.PlayerName)),
	}
}

// Complete reports whether both names are present after normalization.
func (id Identity) Complete() bool {
	n := id.Normalize()
	return n.GuardianName != "" && n.PlayerName != ""
}

// ExternalRecord is the durable registration record in the collaborator
// datastore. The core only reads it (resume) and triggers writes to it
// through dispatcher actions; it does not own the record's lifecycle.
type ExternalRecord struct {
	Identity               Identity       `json:"identity"`
	PriorSeasonParticipant bool           `json:"prior_season_participant"`
	TeamName               string         `json:"team_name"`
	KitSize                string         `json:"kit_size"`
	MandateRef             string         `json:"mandate_ref"`
	PhotoURL               string         `json:"photo_url"`
	Extra                  map[string]any `json:"extra,omitempty"`
}

// RecordStore is the boundary to the external registration datastore.
type RecordStore interface {
	// Find returns the record matching the normalized identity or
	// ErrRecordNotFound.
	Find(ctx context.Context, id Identity) (*ExternalRecord, error)
	// CreateOrUpdate upserts the record for the identity merging the field
	// delta, returning the record after the write.
	CreateOrUpdate(ctx context.Context, id Identity, delta map[string]any) (*ExternalRecord, error)
}

// ArtifactStore persists binary artifacts scoped by session identifier.
// Implementations must be thread-safe. Short method names mirror the other
// store interfaces for consistency.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, artifactID string) error
}

// PaymentProvider activates the recurring charge mandate for a registration.
// ActivateMandate must be idempotent on the provider side; the dispatcher
// additionally guards it with the effect ledger.
type PaymentProvider interface {
	ActivateMandate(ctx context.Context, mandateRef string) error
}

// Notifier delivers a short out-of-band message (SMS) to a destination.
type Notifier interface {
	Send(ctx context.Context, destination, body string) error
}

// ProcessedPhoto is the output of the roster photo pipeline.
type ProcessedPhoto struct {
	Data        []byte
	ContentType string
}

// PhotoProcessor runs the roster-photo pipeline. The pixel math is a
// collaborator concern; the core only cares that Process may take longer
// than the transport ceiling and therefore runs through the job manager.
type PhotoProcessor interface {
	Process(ctx context.Context, data []byte) (*ProcessedPhoto, error)
}

// KitPolicy answers whether a team requires a new kit this cycle. Consumed
// by the resume resolver to pick the resume quadrant.
type KitPolicy interface {
	NewKitRequired(ctx context.Context, teamName string) (bool, error)
}
