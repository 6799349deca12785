package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/logging"
)

// Result is the uniform envelope returned by Invoke. Exactly one of Payload
// or the error fields is meaningful depending on Status.
type Result struct {
	Status      string         `json:"status"` // "success" or "error"
	Payload     any            `json:"payload,omitempty"`
	FieldDelta  map[string]any `json:"field_delta,omitempty"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	Duplicate   bool           `json:"duplicate,omitempty"` // idempotent short-circuit
	ErrorCode   core.Code      `json:"error_code,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// StatusSuccess and StatusError are the two envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RetryPolicy bounds synchronous collaborator calls: a per-attempt timeout
// plus a small number of backoff retries for transient failures. Fatal and
// validation failures are never retried.
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        time.Duration
	PerCallTimeout time.Duration
}

// DefaultRetryPolicy matches the dispatch contract: three attempts, linear
// backoff, ten second cap per attempt.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond, PerCallTimeout: 10 * time.Second}

// Options configures a Dispatcher.
type Options struct {
	// Collaborators are the external handles exposed to actions through the
	// ToolContext the dispatcher builds per invocation.
	Collaborators core.ToolContextConfig
	// Ledger backs the idempotency guard. Defaults to an in-memory ledger.
	Ledger EffectLedger
	// Retry bounds transient-failure retries. Defaults to DefaultRetryPolicy.
	Retry RetryPolicy
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Dispatcher routes action names to registered tools and normalizes their
// outcomes into the Result envelope. It performs no business logic itself.
// The registry is fixed after construction: unknown action names are a
// programming-error-class failure surfaced by Verify at startup, never a
// user-visible one.
type Dispatcher struct {
	tools   map[string]Tool
	collabs core.ToolContextConfig
	ledger  EffectLedger
	retry   RetryPolicy
	logger  logging.Logger
}

// NewDispatcher builds a dispatcher over a fixed tool set. Duplicate names
// are a wiring error.
func NewDispatcher(tools []Tool, optFns ...func(o *Options)) (*Dispatcher, error) {
	opts := Options{
		Ledger: NewMemoryLedger(),
		Retry:  DefaultRetryPolicy,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Collaborators.Logger == nil {
		opts.Collaborators.Logger = opts.Logger
	}

	d := &Dispatcher{
		tools:   make(map[string]Tool, len(tools)),
		collabs: opts.Collaborators,
		ledger:  opts.Ledger,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
	for _, t := range tools {
		if _, dup := d.tools[t.Name()]; dup {
			return nil, core.E(core.CodeConfig, "tool.new_dispatcher", fmt.Sprintf("duplicate tool %q", t.Name()))
		}
		d.tools[t.Name()] = t
	}
	return d, nil
}

// Verify confirms every named action is registered. Called at startup with
// the union of all step-table action names so a dangling reference fails
// the process before it serves traffic.
func (d *Dispatcher) Verify(actionNames []string) error {
	for _, name := range actionNames {
		if _, ok := d.tools[name]; !ok {
			return core.E(core.CodeConfig, "tool.verify", fmt.Sprintf("step table references unregistered action %q", name))
		}
	}
	return nil
}

// Has reports whether an action name is registered.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.tools[name]
	return ok
}

// Invoke runs the named action against the session and returns the
// normalized envelope.
//
// Classified outcomes:
//   - duplicate effect  -> success envelope with Duplicate set
//   - transient failure -> retried per policy; exhausted -> error envelope
//   - fatal/validation  -> error envelope, no retry
//
// An unknown action name returns a config-class error directly (not an
// envelope): it is a bug in wiring, not a workflow outcome.
func (d *Dispatcher) Invoke(ctx context.Context, sess *core.Session, name string, args map[string]any) (*Result, error) {
	t, ok := d.tools[name]
	if !ok {
		return nil, core.E(core.CodeConfig, "tool.invoke", fmt.Sprintf("unknown action %q", name))
	}

	callID := core.NewID()

	var claimedKey string
	if keyer, ok := t.(EffectKeyer); ok {
		probe := core.NewToolContext(ctx, sess, callID, d.collabs)
		if key := keyer.EffectKey(probe, args); key != "" {
			fresh, err := d.ledger.Record(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("effect ledger: %w", err)
			}
			if !fresh {
				d.logger.Info("action duplicate effect short-circuit", "action", name, "session_id", sess.ID, "effect_key", key)
				return &Result{Status: StatusSuccess, Duplicate: true}, nil
			}
			claimedKey = key
		}
	}

	start := time.Now()
	payload, toolCtx, err := d.callWithRetry(ctx, sess, callID, t, args)
	if err != nil {
		// The claimed effect never happened; withdraw it so a later retry
		// of the same step is not short-circuited as a duplicate.
		if claimedKey != "" {
			if relErr := d.ledger.Release(ctx, claimedKey); relErr != nil {
				d.logger.Error("effect ledger release failed", "action", name, "effect_key", claimedKey, "error", relErr.Error())
			}
		}
		d.logger.Error("action failed", "action", name, "session_id", sess.ID, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		res := &Result{Status: StatusError, ErrorCode: core.CodeOf(err), ErrorDetail: err.Error()}
		if res.ErrorCode == "" {
			res.ErrorCode = core.CodeCollaboratorFatal
		}
		return res, nil
	}

	d.logger.Info("action succeeded", "action", name, "session_id", sess.ID, "duration_ms", time.Since(start).Milliseconds())
	return &Result{
		Status:     StatusSuccess,
		Payload:    payload,
		FieldDelta: toolCtx.FieldDelta(),
		Artifacts:  toolCtx.SavedArtifacts(),
	}, nil
}

// callWithRetry runs attempts until success, a non-transient failure, or
// policy exhaustion. Each attempt gets a fresh ToolContext so a failed
// attempt cannot leak staged fields into the final result.
func (d *Dispatcher) callWithRetry(ctx context.Context, sess *core.Session, callID string, t Tool, args map[string]any) (any, *core.ToolContext, error) {
	attempts := max(1, d.retry.MaxAttempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		payload, toolCtx, err := d.callOnce(ctx, sess, callID, t, args)
		if err == nil {
			return payload, toolCtx, nil
		}
		lastErr = err
		if !core.IsTransient(err) || attempt == attempts {
			break
		}
		wait := d.retry.Backoff * time.Duration(attempt)
		d.logger.Warn("action transient failure, retrying", "action", t.Name(), "attempt", attempt, "backoff_ms", wait.Milliseconds(), "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, nil, core.Wrap(core.CodeCollaboratorTransient, "tool."+t.Name(), "context cancelled during retry", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, nil, lastErr
}

func (d *Dispatcher) callOnce(ctx context.Context, sess *core.Session, callID string, t Tool, args map[string]any) (any, *core.ToolContext, error) {
	attemptCtx := ctx
	if d.retry.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.retry.PerCallTimeout)
		defer cancel()
	}

	toolCtx := core.NewToolContext(attemptCtx, sess, callID, d.collabs)
	payload, err := t.Call(toolCtx, args)
	if err != nil {
		// A deadline we imposed means the collaborator was slow, not wrong.
		// Reclassify even if the tool already wrapped the error, since the
		// chain still carries DeadlineExceeded.
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
			err = core.Wrap(core.CodeCollaboratorTransient, "tool."+t.Name(), "attempt timed out", err)
		}
		return nil, nil, err
	}
	return payload, toolCtx, nil
}
