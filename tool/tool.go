// Package tool implements the action dispatch subsystem: a fixed registry of
// typed actions with schema validated arguments, a uniform result envelope,
// retry with backoff for transient collaborator failures, and an effect
// ledger that makes financially or identity significant actions idempotent.
package tool

import (
	"github.com/rosterflow/rosterflow/core"
)

// Tool defines one callable action the workflow can dispatch.
//
// Implementations should:
//   - Provide stable snake_case names (they appear in step tables)
//   - Define a JSON schema subset for their arguments
//   - Return *core.Error with a taxonomy code for classified failures
//   - Be thread-safe; one Tool instance serves all sessions
type Tool interface {
	// Name returns the unique action identifier referenced by step tables.
	Name() string

	// Description returns a short human-readable description.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the action with validated arguments and a ToolContext
	// giving access to session fields, artifacts and collaborators.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// EffectKeyer is implemented by tools whose side effect must happen at most
// once per logical identity. The dispatcher consults the effect ledger with
// the returned key before calling; a prior identical effect short-circuits
// to a no-op success.
//
// An empty key disables the guard for that invocation (e.g. a save that the
// user declined never becomes an effect).
type EffectKeyer interface {
	EffectKey(toolCtx *core.ToolContext, args map[string]any) string
}
