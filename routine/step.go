package routine

import (
	"fmt"
)

// Transition is a typed edge out of a step. The set is closed: concrete
// variants implement the unexported marker, and each names its target index
// so tables are statically checkable at construction time.
type Transition interface {
	isTransition()
	// Target returns the step index this transition leads to.
	Target() int
}

// Always transitions unconditionally. Listed last it acts as the fallback
// for a predicate chain.
type Always struct {
	To int
}

func (Always) isTransition() {}
func (t Always) Target() int { return t.To }

// WhenTrue transitions when the named session field is boolean true.
type WhenTrue struct {
	Field string
	To    int
}

func (WhenTrue) isTransition() {}
func (t WhenTrue) Target() int { return t.To }

// WhenFalse transitions when the named session field is absent or false.
type WhenFalse struct {
	Field string
	To    int
}

func (WhenFalse) isTransition() {}
func (t WhenFalse) Target() int { return t.To }

// WhenEquals transitions when the named session field equals Value.
type WhenEquals struct {
	Field string
	Value any
	To    int
}

func (WhenEquals) isTransition() {}
func (t WhenEquals) Target() int { return t.To }

// matches evaluates the transition predicate against collected fields.
func matches(tr Transition, fields map[string]any) bool {
	switch t := tr.(type) {
	case Always:
		return true
	case WhenTrue:
		b, _ := fields[t.Field].(bool)
		return b
	case WhenFalse:
		b, _ := fields[t.Field].(bool)
		return !b
	case WhenEquals:
		return fields[t.Field] == t.Value
	default:
		return false
	}
}

// Step is one immutable unit of a routine, identified by its integer index
// within the routine's table.
//
// A step with a nil Expect is a gate: it consumes no user input and is
// traversed automatically, running its action (if any) and following its
// first matching transition. Gates are how a branch can depend on a value
// returned by the step before it.
type Step struct {
	// Index within the routine table.
	Index int
	// Name for logs and tests.
	Name string
	// Prompt is the message template emitted when the session lands here,
	// rendered against the collected fields.
	Prompt string
	// Expect declares the input shape; nil marks a gate step.
	Expect Shape
	// Field is where a captured scalar input lands in the session fields.
	Field string
	// Action names the side-effecting action to run after capture, "" for none.
	Action string
	// ActionArgs are static arguments merged under the collected fields at
	// dispatch time.
	ActionArgs map[string]any
	// LongRunning routes the action through the async job manager instead
	// of the synchronous dispatcher.
	LongRunning bool
	// Next lists transitions evaluated in declared order; first match wins.
	// Empty only on terminal steps.
	Next []Transition
	// Terminal marks a designated end of the routine.
	Terminal bool
}

// Routine is an ordered step table with a designated entry index.
type Routine struct {
	Name  string
	Entry int
	steps map[int]Step
}

// NewRoutine builds and validates a routine table. Validation failures are
// startup-time fatal by contract: callers must not serve traffic with an
// invalid table.
func NewRoutine(name string, entry int, steps []Step) (*Routine, error) {
	r := &Routine{Name: name, Entry: entry, steps: make(map[int]Step, len(steps))}
	for _, s := range steps {
		if _, dup := r.steps[s.Index]; dup {
			return nil, fmt.Errorf("routine %s: duplicate step index %d", name, s.Index)
		}
		r.steps[s.Index] = s
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Step returns the step at index and whether it exists.
func (r *Routine) Step(index int) (Step, bool) {
	s, ok := r.steps[index]
	return s, ok
}

// Len returns the number of steps in the table.
func (r *Routine) Len() int { return len(r.steps) }

func (r *Routine) validate() error {
	if _, ok := r.steps[r.Entry]; !ok {
		return fmt.Errorf("routine %s: entry step %d missing", r.Name, r.Entry)
	}
	terminals := 0
	for _, s := range r.steps {
		if s.Terminal {
			terminals++
			if len(s.Next) > 0 {
				return fmt.Errorf("routine %s: terminal step %d (%s) has outgoing transitions", r.Name, s.Index, s.Name)
			}
			continue
		}
		if len(s.Next) == 0 {
			return fmt.Errorf("routine %s: non-terminal step %d (%s) has no transitions", r.Name, s.Index, s.Name)
		}
		fallback := false
		for _, tr := range s.Next {
			if _, ok := r.steps[tr.Target()]; !ok {
				return fmt.Errorf("routine %s: step %d (%s) transitions to missing step %d", r.Name, s.Index, s.Name, tr.Target())
			}
			if _, ok := tr.(Always); ok {
				fallback = true
			}
		}
		if s.Expect == nil && !fallback {
			return fmt.Errorf("routine %s: gate step %d (%s) needs an unconditional fallback transition", r.Name, s.Index, s.Name)
		}
	}
	if terminals == 0 {
		return fmt.Errorf("routine %s: no terminal step", r.Name)
	}
	return nil
}

// Actions returns the set of action names referenced by the table, so the
// wiring layer can verify every one is registered before serving.
func (r *Routine) Actions() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range r.steps {
		if s.Action != "" && !seen[s.Action] {
			seen[s.Action] = true
			out = append(out, s.Action)
		}
	}
	return out
}
