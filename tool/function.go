package tool

import (
	"time"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// dispatchable action.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification
//   - Validates supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *core.ToolContext
//   - Normalizes errors so callers receive *core.Error with taxonomy codes:
//     validation mismatch -> CodeValidation, unclassified failure ->
//     CodeCollaboratorFatal (no blind retries), taxonomy errors pass through
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use. An optional effectKey function opts the tool into the
// dispatcher's idempotency guard.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
	effectKey   func(toolCtx *core.ToolContext, args map[string]any) string
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// WithEffectKey opts the tool into the idempotency guard. keyFn derives the
// effect identity from the invocation; returning "" skips the guard.
func (t *FunctionTool) WithEffectKey(keyFn func(toolCtx *core.ToolContext, args map[string]any) string) *FunctionTool {
	t.effectKey = keyFn
	return t
}

// Name returns the unique action name used in step tables and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short description of the action.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// EffectKey implements EffectKeyer when an effect key function is set.
func (t *FunctionTool) EffectKey(toolCtx *core.ToolContext, args map[string]any) string {
	if t.effectKey == nil {
		return ""
	}
	return t.effectKey(toolCtx, args)
}

// Call validates the provided args against the declared schema then invokes
// the underlying function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("action.call.start", "action", t.name, "call_id", toolCtx.CallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("action.call.validation_failed", "action", t.name, "error", err.Error())
		return nil, core.Wrap(core.CodeValidation, "tool."+t.name, "argument validation failed", err)
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if core.CodeOf(err) != "" { // already classified, just log and forward
			logger.Error("action.call.error", "action", t.name, "error", err.Error())
			return nil, err
		}

		logger.Error("action.call.error", "action", t.name, "error", err.Error())

		return nil, core.Wrap(core.CodeCollaboratorFatal, "tool."+t.name, "action execution failed", err)
	}

	logger.Info("action.call.success", "action", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
