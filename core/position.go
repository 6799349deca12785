package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Position identifies where a session currently sits in the workflow: the
// named routine (agent) plus the integer step index within its step table.
// A nil *Position on a Session means no position yet, i.e. first contact.
type Position struct {
	Agent     string `json:"agent"`
	StepIndex int    `json:"step_index"`
}

// Marker renders the position as an opaque client-facing marker, e.g.
// "registration/3". Clients echo it back for debugging only; the server
// never parses client-supplied markers to derive position.
func (p Position) Marker() string {
	return fmt.Sprintf("%s/%d", p.Agent, p.StepIndex)
}

// ParseMarker parses a marker produced by Marker. Used by tests and
// operator tooling, not by the request path.
func ParseMarker(s string) (Position, error) {
	agent, idx, ok := strings.Cut(s, "/")
	if !ok || agent == "" {
		return Position{}, fmt.Errorf("malformed position marker %q", s)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return Position{}, fmt.Errorf("malformed position marker %q: %w", s, err)
	}
	return Position{Agent: agent, StepIndex: n}, nil
}
