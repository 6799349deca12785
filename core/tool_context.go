package core

import (
	"context"
	"fmt"

	"github.com/rosterflow/rosterflow/logging"
)

// ToolContext provides a constrained, auditable surface for action
// implementations invoked by the dispatcher. It reads the session snapshot
// and accumulates a field delta without directly mutating the session; the
// orchestrator folds the delta in through its single update path.
type ToolContext struct {
	ctx       context.Context
	session   *Session
	callID    string
	records   RecordStore
	artifacts ArtifactStore
	payments  PaymentProvider
	notifier  Notifier
	photos    PhotoProcessor
	kit       KitPolicy
	delta     map[string]any
	saved     []string
	logger    logging.Logger
}

// ToolContextConfig wires the collaborator handles a ToolContext exposes.
// Nil handles are allowed; actions that need an absent collaborator fail
// with a config-class error at call time.
type ToolContextConfig struct {
	Records   RecordStore
	Artifacts ArtifactStore
	Payments  PaymentProvider
	Notifier  Notifier
	Photos    PhotoProcessor
	Kit       KitPolicy
	Logger    logging.Logger
}

// NewToolContext binds a tool context to a session snapshot and a unique
// function call id used for log correlation and effect keys.
func NewToolContext(ctx context.Context, sess *Session, callID string, cfg ToolContextConfig) *ToolContext {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:       ctx,
		session:   sess,
		callID:    callID,
		records:   cfg.Records,
		artifacts: cfg.Artifacts,
		payments:  cfg.Payments,
		notifier:  cfg.Notifier,
		photos:    cfg.Photos,
		kit:       cfg.Kit,
		delta:     map[string]any{},
		logger:    logger,
	}
}

// Context returns the request context governing the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the owning session's identifier.
func (tc *ToolContext) SessionID() string { return tc.session.ID }

// CallID returns the function call identifier for this invocation.
func (tc *ToolContext) CallID() string { return tc.callID }

// Logger returns the logger bound to this invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// Field reads a collected session field, preferring a staged delta value.
func (tc *ToolContext) Field(key string) (any, bool) {
	if v, ok := tc.delta[key]; ok {
		return v, true
	}
	return tc.session.Field(key)
}

// FieldString reads a collected field coerced to string.
func (tc *ToolContext) FieldString(key string) string {
	v, ok := tc.Field(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SetField stages a field mutation for the orchestrator to fold in.
func (tc *ToolContext) SetField(key string, value any) { tc.delta[key] = value }

// FieldDelta returns the staged field mutations.
func (tc *ToolContext) FieldDelta() map[string]any { return tc.delta }

// Identity assembles the session's identity tuple from collected fields.
func (tc *ToolContext) Identity() Identity {
	return Identity{
		GuardianName: tc.FieldString("guardian_name"),
		PlayerName:   tc.FieldString("player_name"),
	}
}

// Records returns the external record store or an error when unwired.
func (tc *ToolContext) Records() (RecordStore, error) {
	if tc.records == nil {
		return nil, E(CodeConfig, "tool_context.records", "record store not configured")
	}
	return tc.records, nil
}

// Payments returns the payment provider or an error when unwired.
func (tc *ToolContext) Payments() (PaymentProvider, error) {
	if tc.payments == nil {
		return nil, E(CodeConfig, "tool_context.payments", "payment provider not configured")
	}
	return tc.payments, nil
}

// Notifier returns the notification sender or an error when unwired.
func (tc *ToolContext) Notifier() (Notifier, error) {
	if tc.notifier == nil {
		return nil, E(CodeConfig, "tool_context.notifier", "notifier not configured")
	}
	return tc.notifier, nil
}

// Kit returns the kit policy lookup or an error when unwired.
func (tc *ToolContext) Kit() (KitPolicy, error) {
	if tc.kit == nil {
		return nil, E(CodeConfig, "tool_context.kit", "kit policy not configured")
	}
	return tc.kit, nil
}

// Photos returns the photo processor or an error when unwired.
func (tc *ToolContext) Photos() (PhotoProcessor, error) {
	if tc.photos == nil {
		return nil, E(CodeConfig, "tool_context.photos", "photo processor not configured")
	}
	return tc.photos, nil
}

// SaveArtifact stores bytes in the artifact store under the session scope
// and records the id for the invocation audit trail.
func (tc *ToolContext) SaveArtifact(artifactID string, data []byte) error {
	if tc.artifacts == nil {
		return E(CodeConfig, "tool_context.artifacts", "artifact store not configured")
	}
	if err := tc.artifacts.Save(tc.session.ID, artifactID, data); err != nil {
		return fmt.Errorf("save artifact %s: %w", artifactID, err)
	}
	tc.saved = append(tc.saved, artifactID)
	return nil
}

// LoadArtifact retrieves bytes previously stored for this session.
func (tc *ToolContext) LoadArtifact(artifactID string) ([]byte, error) {
	if tc.artifacts == nil {
		return nil, E(CodeConfig, "tool_context.artifacts", "artifact store not configured")
	}
	return tc.artifacts.Get(tc.session.ID, artifactID)
}

// SavedArtifacts lists artifact ids stored during this invocation.
func (tc *ToolContext) SavedArtifacts() []string { return tc.saved }
