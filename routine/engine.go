package routine

import (
	"errors"
	"fmt"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/internal/util"
)

// maxGateHops bounds gate chain traversal so a cyclic gate table cannot
// spin the request path. Tables deep enough to hit this are misconfigured.
const maxGateHops = 16

// Outcome is the engine's verdict for one advance call.
type Outcome struct {
	// Next is the position the session should move to once any action
	// result has been folded in.
	Next core.Position
	// Message is the rendered message to emit (re-prompt or next prompt).
	Message string
	// Action names the side effect to dispatch, "" for none.
	Action string
	// ActionArgs carries the step's static args merged over captured fields.
	ActionArgs map[string]any
	// FieldDelta holds input captured this turn, to be folded into the
	// session by the orchestrator's single update path.
	FieldDelta map[string]any
	// LongRunning routes Action through the async job manager.
	LongRunning bool
	// Reprompt marks a validation failure: position unchanged, no action.
	Reprompt bool
	// Completed marks arrival at a terminal step.
	Completed bool
}

// Engine interprets routine tables. It holds only immutable tables and is
// safe for concurrent use.
type Engine struct {
	routines map[string]*Routine
}

// NewEngine builds an engine over the given routines. At least one routine
// is required; table validation already happened in NewRoutine.
func NewEngine(routines ...*Routine) (*Engine, error) {
	if len(routines) == 0 {
		return nil, core.E(core.CodeConfig, "routine.new_engine", "no routines configured")
	}
	e := &Engine{routines: make(map[string]*Routine, len(routines))}
	for _, r := range routines {
		if _, dup := e.routines[r.Name]; dup {
			return nil, core.E(core.CodeConfig, "routine.new_engine", fmt.Sprintf("duplicate routine %q", r.Name))
		}
		e.routines[r.Name] = r
	}
	return e, nil
}

// Routine returns a registered routine table by name.
func (e *Engine) Routine(name string) (*Routine, bool) {
	r, ok := e.routines[name]
	return r, ok
}

// StartPosition returns the entry position of the named routine.
func (e *Engine) StartPosition(routineName string) (core.Position, error) {
	r, ok := e.routines[routineName]
	if !ok {
		return core.Position{}, core.E(core.CodeConfig, "routine.start", fmt.Sprintf("unknown routine %q", routineName))
	}
	return core.Position{Agent: r.Name, StepIndex: r.Entry}, nil
}

// Advance evaluates one turn of user input against the session's current
// step. It is a pure function: all session mutation happens through the
// returned Outcome.
//
// On invalid input the outcome keeps the current position, carries no
// action, and Message combines the shape hint with the step's prompt.
func (e *Engine) Advance(sess *core.Session, in Input) (*Outcome, error) {
	pos, ok := sess.CurrentPosition()
	if !ok {
		return nil, errors.New("session has no position; orchestrator must seed the entry step first")
	}
	r, okR := e.routines[pos.Agent]
	if !okR {
		return nil, fmt.Errorf("session references unknown routine %q", pos.Agent)
	}
	step, okS := r.Step(pos.StepIndex)
	if !okS {
		return nil, fmt.Errorf("session references missing step %s", pos.Marker())
	}
	if step.Terminal {
		msg, err := e.renderPrompt(step, sess.FieldSnapshot())
		if err != nil {
			return nil, err
		}
		return &Outcome{Next: pos, Message: msg, Completed: true}, nil
	}
	if step.Expect == nil {
		return nil, fmt.Errorf("advance called on gate step %s; gates are traversed via Route", pos.Marker())
	}

	fields := sess.FieldSnapshot()

	delta, err := capture(step.Expect, step.Field, in)
	if err != nil {
		var shapeErr *ShapeError
		if !errors.As(err, &shapeErr) {
			return nil, err
		}
		prompt, perr := e.renderPrompt(step, fields)
		if perr != nil {
			return nil, perr
		}
		return &Outcome{
			Next:     pos,
			Message:  shapeErr.Hint + " " + prompt,
			Reprompt: true,
		}, nil
	}

	// Extra structured payload rides along with the captured delta.
	for k, v := range in.Payload {
		if _, exists := delta[k]; !exists {
			delta[k] = v
		}
	}

	merged := make(map[string]any, len(fields)+len(delta))
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}

	next, err := e.nextPosition(r, step, merged)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Next:        next,
		FieldDelta:  delta,
		Action:      step.Action,
		LongRunning: step.LongRunning,
	}
	if step.Action != "" {
		out.ActionArgs = actionArgs(step, merged)
	}

	landing, _ := r.Step(next.StepIndex)
	out.Completed = landing.Terminal
	if out.Message, err = e.renderPrompt(landing, merged); err != nil {
		return nil, err
	}
	return out, nil
}

// Route traverses gate steps starting at pos, evaluating predicates over
// fields. It returns the resting position (first non-gate step) along with
// any gate actions encountered, in traversal order. Pure like Advance.
func (e *Engine) Route(pos core.Position, fields map[string]any) (core.Position, []GateAction, string, error) {
	r, ok := e.routines[pos.Agent]
	if !ok {
		return pos, nil, "", fmt.Errorf("unknown routine %q", pos.Agent)
	}
	var actions []GateAction
	cur := pos
	for hops := 0; hops < maxGateHops; hops++ {
		step, okS := r.Step(cur.StepIndex)
		if !okS {
			return pos, nil, "", fmt.Errorf("route through missing step %s", cur.Marker())
		}
		if step.Expect != nil || step.Terminal {
			msg, err := e.renderPrompt(step, fields)
			if err != nil {
				return pos, nil, "", err
			}
			return cur, actions, msg, nil
		}
		if step.Action != "" {
			actions = append(actions, GateAction{
				Name:        step.Action,
				Args:        actionArgs(step, fields),
				LongRunning: step.LongRunning,
			})
		}
		next, err := e.nextPosition(r, step, fields)
		if err != nil {
			return pos, nil, "", err
		}
		cur = next
	}
	return pos, nil, "", fmt.Errorf("gate chain from %s exceeds %d hops", pos.Marker(), maxGateHops)
}

// GateAction is a side effect requested by a gate step during Route.
type GateAction struct {
	Name        string
	Args        map[string]any
	LongRunning bool
}

// ValidateInput checks in against the expected shape of the step at pos
// without advancing. Used by transports that stage input (file uploads)
// ahead of the advance call.
func (e *Engine) ValidateInput(pos core.Position, in Input) error {
	r, ok := e.routines[pos.Agent]
	if !ok {
		return fmt.Errorf("unknown routine %q", pos.Agent)
	}
	step, okS := r.Step(pos.StepIndex)
	if !okS {
		return fmt.Errorf("missing step %s", pos.Marker())
	}
	if step.Expect == nil {
		return nil
	}
	_, err := capture(step.Expect, step.Field, in)
	return err
}

func (e *Engine) nextPosition(r *Routine, step Step, fields map[string]any) (core.Position, error) {
	for _, tr := range step.Next {
		if matches(tr, fields) {
			return core.Position{Agent: r.Name, StepIndex: tr.Target()}, nil
		}
	}
	return core.Position{}, fmt.Errorf("step %s/%d: no transition matched", r.Name, step.Index)
}

func (e *Engine) renderPrompt(step Step, fields map[string]any) (string, error) {
	msg, err := util.RenderTemplate(step.Prompt, fields)
	if err != nil {
		return "", fmt.Errorf("step %d (%s): %w", step.Index, step.Name, err)
	}
	return msg, nil
}

// actionArgs merges the step's static args over the current fields. Static
// args win so a table can pin an argument regardless of collected input.
func actionArgs(step Step, fields map[string]any) map[string]any {
	args := make(map[string]any, len(fields)+len(step.ActionArgs))
	for k, v := range fields {
		args[k] = v
	}
	for k, v := range step.ActionArgs {
		args[k] = v
	}
	return args
}
