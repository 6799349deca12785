package tool

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/routine"
)

// IntakeTools returns the fixed action set referenced by the intake routine
// table. All collaborator access goes through the ToolContext, so the same
// set works against fakes in tests and real services in production.
func IntakeTools() []Tool {
	return []Tool{
		NewFetchKitPolicyTool(),
		NewSaveRecordTool(),
		NewActivateMandateTool(),
		NewSendConfirmationSMSTool(),
		NewProcessPhotoTool(),
	}
}

// NewFetchKitPolicyTool looks up whether the chosen team needs a new kit
// this season and stages the answer for the kit gate to branch on.
func NewFetchKitPolicyTool() *FunctionTool {
	return NewFunctionTool(
		routine.ActionFetchKitPolicy,
		"Look up whether the selected team requires a new kit this season",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				routine.FieldTeamName: map[string]any{"type": "string"},
			},
			"required": []string{routine.FieldTeamName},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			kit, err := tc.Kit()
			if err != nil {
				return nil, err
			}
			team, _ := args[routine.FieldTeamName].(string)
			required, err := kit.NewKitRequired(tc.Context(), team)
			if err != nil {
				return nil, err
			}
			tc.SetField(routine.FieldNewKitRequired, required)
			return map[string]any{routine.FieldNewKitRequired: required}, nil
		},
	)
}

// NewSaveRecordTool upserts the registration record once details are
// confirmed. Guarded by the effect ledger keyed on identity plus the exact
// field values, so re-confirming unchanged details is a no-op while an
// edited re-confirmation writes again.
func NewSaveRecordTool() *FunctionTool {
	t := NewFunctionTool(
		routine.ActionSaveRecord,
		"Create or update the registration record in the club datastore",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				routine.FieldGuardianName:  map[string]any{"type": "string"},
				routine.FieldPlayerName:    map[string]any{"type": "string"},
				routine.FieldGuardianPhone: map[string]any{"type": "string"},
				routine.FieldTeamName:      map[string]any{"type": "string"},
				routine.FieldConfirmed:     map[string]any{"type": "boolean"},
			},
			"required": []string{routine.FieldGuardianName, routine.FieldPlayerName, routine.FieldConfirmed},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			if confirmed, _ := args[routine.FieldConfirmed].(bool); !confirmed {
				// Declined: nothing to persist, the routine loops back.
				return map[string]any{"saved": false}, nil
			}
			records, err := tc.Records()
			if err != nil {
				return nil, err
			}
			id := core.Identity{
				GuardianName: stringArg(args, routine.FieldGuardianName),
				PlayerName:   stringArg(args, routine.FieldPlayerName),
			}
			rec, err := records.CreateOrUpdate(tc.Context(), id, recordDelta(args))
			if err != nil {
				return nil, err
			}
			return map[string]any{"saved": true, "team_name": rec.TeamName}, nil
		},
	)
	return t.WithEffectKey(func(tc *core.ToolContext, args map[string]any) string {
		if confirmed, _ := args[routine.FieldConfirmed].(bool); !confirmed {
			return "" // a declined save is never an effect
		}
		id := core.Identity{
			GuardianName: stringArg(args, routine.FieldGuardianName),
			PlayerName:   stringArg(args, routine.FieldPlayerName),
		}.Normalize()
		return fmt.Sprintf("save_record|%s|%s|%s", id.GuardianName, id.PlayerName, hashArgs(recordDelta(args)))
	})
}

// NewActivateMandateTool activates the recurring charge for the collected
// mandate reference. The provider call is idempotent, and the effect ledger
// additionally short-circuits repeats of the same reference.
func NewActivateMandateTool() *FunctionTool {
	t := NewFunctionTool(
		routine.ActionActivate,
		"Activate the direct debit mandate for the season's subscriptions",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				routine.FieldMandateRef: map[string]any{"type": "string"},
			},
			"required": []string{routine.FieldMandateRef},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			payments, err := tc.Payments()
			if err != nil {
				return nil, err
			}
			ref := stringArg(args, routine.FieldMandateRef)
			if err := payments.ActivateMandate(tc.Context(), ref); err != nil {
				return nil, err
			}
			records, err := tc.Records()
			if err != nil {
				return nil, err
			}
			if _, err := records.CreateOrUpdate(tc.Context(), tc.Identity(), map[string]any{"mandate_ref": ref}); err != nil {
				return nil, err
			}
			return map[string]any{"activated": true}, nil
		},
	)
	return t.WithEffectKey(func(tc *core.ToolContext, args map[string]any) string {
		ref := stringArg(args, routine.FieldMandateRef)
		if ref == "" {
			return ""
		}
		return "activate_mandate|" + strings.ToLower(ref)
	})
}

// NewSendConfirmationSMSTool sends the registration confirmation text.
func NewSendConfirmationSMSTool() *FunctionTool {
	t := NewFunctionTool(
		routine.ActionSendSMS,
		"Send the registration confirmation SMS to the guardian",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				routine.FieldGuardianPhone: map[string]any{"type": "string"},
				routine.FieldPlayerName:    map[string]any{"type": "string"},
			},
			"required": []string{routine.FieldGuardianPhone},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			notifier, err := tc.Notifier()
			if err != nil {
				return nil, err
			}
			phone := stringArg(args, routine.FieldGuardianPhone)
			body := fmt.Sprintf("%s is registered and subs are set up. One last step: upload a roster photo to finish.", stringArg(args, routine.FieldPlayerName))
			if err := notifier.Send(tc.Context(), phone, body); err != nil {
				return nil, err
			}
			return map[string]any{"sent": true}, nil
		},
	)
	return t.WithEffectKey(func(tc *core.ToolContext, args map[string]any) string {
		id := tc.Identity().Normalize()
		if id.GuardianName == "" {
			return ""
		}
		return fmt.Sprintf("send_confirmation_sms|%s|%s", id.GuardianName, id.PlayerName)
	})
}

// NewProcessPhotoTool runs the roster photo pipeline: load the staged
// upload, process it, store the result, and write the URL back to the
// registration record. Registered as long-running by the step table: its
// true latency can exceed the transport ceiling, so it only ever runs
// inside the job manager.
func NewProcessPhotoTool() *FunctionTool {
	t := NewFunctionTool(
		routine.ActionProcessPhoto,
		"Process the uploaded roster photo and attach it to the registration record",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				routine.FieldPhotoArtifact: map[string]any{"type": "string"},
				routine.FieldGuardianName:  map[string]any{"type": "string"},
				routine.FieldPlayerName:    map[string]any{"type": "string"},
			},
			"required": []string{routine.FieldPhotoArtifact},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			photos, err := tc.Photos()
			if err != nil {
				return nil, err
			}
			artifactID := stringArg(args, routine.FieldPhotoArtifact)
			raw, err := tc.LoadArtifact(artifactID)
			if err != nil {
				return nil, fmt.Errorf("load staged photo %s: %w", artifactID, err)
			}
			processed, err := photos.Process(tc.Context(), raw)
			if err != nil {
				return nil, err
			}
			processedID := artifactID + "-processed"
			if err := tc.SaveArtifact(processedID, processed.Data); err != nil {
				return nil, err
			}
			url := fmt.Sprintf("artifact://%s/%s", tc.SessionID(), processedID)
			records, err := tc.Records()
			if err != nil {
				return nil, err
			}
			if _, err := records.CreateOrUpdate(tc.Context(), tc.Identity(), map[string]any{"photo_url": url}); err != nil {
				return nil, err
			}
			tc.SetField(routine.FieldPhotoURL, url)
			return map[string]any{routine.FieldPhotoURL: url}, nil
		},
	)
	return t.WithEffectKey(func(tc *core.ToolContext, args map[string]any) string {
		artifactID := stringArg(args, routine.FieldPhotoArtifact)
		if artifactID == "" {
			return ""
		}
		return fmt.Sprintf("process_photo|%s|%s", tc.SessionID(), artifactID)
	})
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// recordDelta extracts the record-bound fields from action args.
func recordDelta(args map[string]any) map[string]any {
	delta := map[string]any{}
	if v := stringArg(args, routine.FieldGuardianPhone); v != "" {
		delta["guardian_phone"] = v
	}
	if v := stringArg(args, routine.FieldTeamName); v != "" {
		delta["team_name"] = v
	}
	if v := stringArg(args, routine.FieldKitSize); v != "" {
		delta["kit_size"] = v
	}
	return delta
}

// hashArgs produces a stable short hash of a field delta so effect keys can
// distinguish "same identity, different details".
func hashArgs(delta map[string]any) string {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := fnv.New64a()
	for _, k := range keys {
		b, _ := json.Marshal(delta[k])
		fmt.Fprintf(h, "%s=%s;", k, b)
	}
	return fmt.Sprintf("%x", h.Sum64())
}
