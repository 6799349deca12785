// Package resume decides where a returning registrant re-enters the intake
// routine. A session with no position whose first input carries both names
// is a resume attempt: the resolver looks the identity up in the
// registration datastore and, on a hit, computes the re-entry step from the
// record itself rather than from anything the user typed.
package resume

import (
	"context"
	"errors"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/logging"
	"github.com/rosterflow/rosterflow/routine"
)

// quadrant keys the re-entry table: prior-season participation crossed with
// the team's new-kit requirement for this cycle.
type quadrant struct {
	PriorSeason    bool
	NewKitRequired bool
}

// reentrySteps maps each quadrant to the intake step a resumed session lands
// on. Adding a quadrant means adding a row here, nothing else.
var reentrySteps = map[quadrant]int{
	{PriorSeason: false, NewKitRequired: false}: routine.StepKitSize,
	{PriorSeason: false, NewKitRequired: true}:  routine.StepKitSize,
	{PriorSeason: true, NewKitRequired: true}:   routine.StepKitSize,
	{PriorSeason: true, NewKitRequired: false}:  routine.StepUploadPhoto,
}

// Resolution is the outcome of a resume attempt. When Found is false the
// caller proceeds as a brand-new registration; Position and Fields are only
// meaningful when Found is true.
type Resolution struct {
	Found    bool
	Position core.Position
	Fields   map[string]any
}

// Resolver computes re-entry positions from the registration datastore and
// the kit policy.
type Resolver struct {
	records core.RecordStore
	kit     core.KitPolicy
	logger  logging.Logger
}

// Options holds dependency overrides passed to NewResolver.
type Options struct {
	Logger logging.Logger
}

// NewResolver wires a resolver over the registration store and kit policy.
func NewResolver(records core.RecordStore, kit core.KitPolicy, optFns ...func(o *Options)) *Resolver {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{records: records, kit: kit, logger: opts.Logger}
}

// Resolve looks the identity up and computes the re-entry step. A miss is
// not an error: the caller gets Found=false and continues as new. A store
// outage is reported as a transient error so the caller can fall back to the
// new-registration path instead of blocking the turn.
func (r *Resolver) Resolve(ctx context.Context, id core.Identity) (*Resolution, error) {
	if !id.Complete() {
		return &Resolution{Found: false}, nil
	}

	rec, err := r.records.Find(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return &Resolution{Found: false}, nil
		}
		return nil, core.Wrap(core.CodeCollaboratorTransient, "resume.Resolve", "registration lookup unavailable", err)
	}

	newKit, err := r.kit.NewKitRequired(ctx, rec.TeamName)
	if err != nil {
		return nil, core.Wrap(core.CodeCollaboratorTransient, "resume.Resolve", "kit policy unavailable", err)
	}

	step, ok := reentrySteps[quadrant{PriorSeason: rec.PriorSeasonParticipant, NewKitRequired: newKit}]
	if !ok {
		return nil, core.E(core.CodeConfig, "resume.Resolve", "no re-entry step for resume quadrant")
	}

	r.logger.Info("session resumed from record",
		"prior_season", rec.PriorSeasonParticipant,
		"new_kit_required", newKit,
		"step", step,
	)
	return &Resolution{
		Found:    true,
		Position: core.Position{Agent: routine.IntakeName, StepIndex: step},
		Fields:   fieldsFromRecord(rec, newKit),
	}, nil
}

// fieldsFromRecord prefills the session so the resumed steps see the same
// field map a straight-through run would have produced.
func fieldsFromRecord(rec *core.ExternalRecord, newKit bool) map[string]any {
	fields := map[string]any{
		routine.FieldGuardianName:   rec.Identity.GuardianName,
		routine.FieldPlayerName:     rec.Identity.PlayerName,
		routine.FieldNewKitRequired: newKit,
		"prior_season_participant":  rec.PriorSeasonParticipant,
	}
	if rec.TeamName != "" {
		fields[routine.FieldTeamName] = rec.TeamName
	}
	if rec.KitSize != "" {
		fields[routine.FieldKitSize] = rec.KitSize
	}
	if rec.MandateRef != "" {
		fields[routine.FieldMandateRef] = rec.MandateRef
	}
	if phone, ok := rec.Extra[routine.FieldGuardianPhone].(string); ok && phone != "" {
		fields[routine.FieldGuardianPhone] = phone
	}
	return fields
}
