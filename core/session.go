package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the coarse lifecycle state of a session.
type Status string

const (
	// StatusNew marks a session that exists but has no workflow position yet.
	StatusNew Status = "new"
	// StatusActive marks a session progressing through a routine.
	StatusActive Status = "active"
	// StatusCompleted marks a session that reached a terminal step.
	StatusCompleted Status = "completed"
	// StatusAbandoned marks a session discarded by a client reset.
	StatusAbandoned Status = "abandoned"
)

// Session is the server-side record of one user's progress through the
// intake workflow. It tracks the current Position, the accumulating map of
// collected field name -> value, and lifecycle timestamps. It is safe for
// concurrent access.
//
// Contract:
//   - Field mutations update the Updated timestamp
//   - Fields returns a defensive copy to avoid external mutation
//   - Clone performs deep copies of maps for safe divergence
//   - Position is nil until the first advance or a successful resume
//
// A Session is owned exclusively by the orchestrator: it is mutated only
// through the orchestrator's single update path per request and persisted as
// a whole via SessionStore.Save.
type Session struct {
	ID       string         `json:"id"`
	Position *Position      `json:"position,omitempty"`
	Fields   map[string]any `json:"fields"`
	Status   Status         `json:"status"`
	Created  time.Time      `json:"created"`
	Updated  time.Time      `json:"updated"`
	mu       sync.RWMutex
}

// NewSession creates a fresh session. An empty id is replaced with a
// server-generated UUID.
func NewSession(id string) *Session {
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	return &Session{ID: id, Fields: map[string]any{}, Status: StatusNew, Created: now, Updated: now}
}

// Field returns the value and existence flag for a collected field.
func (s *Session) Field(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Fields[key]
	return v, ok
}

// FieldString returns a collected field coerced to string, or "" if absent
// or not a string.
func (s *Session) FieldString(key string) string {
	v, ok := s.Field(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// FieldBool returns a collected field coerced to bool. Absent or non-bool
// values report false.
func (s *Session) FieldBool(key string) bool {
	v, ok := s.Field(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SetField stores a single collected field updating the Updated timestamp.
func (s *Session) SetField(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fields[key] = value
	s.Updated = time.Now().UTC()
}

// ApplyFieldDelta merges the provided key/value pairs into Fields.
func (s *Session) ApplyFieldDelta(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.Fields[k] = v
	}
	s.Updated = time.Now().UTC()
}

// FieldSnapshot returns a defensive copy of the collected fields.
func (s *Session) FieldSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		out[k] = v
	}
	return out
}

// SetPosition moves the session to pos, flipping StatusNew to StatusActive.
func (s *Session) SetPosition(pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := pos
	s.Position = &p
	if s.Status == StatusNew {
		s.Status = StatusActive
	}
	s.Updated = time.Now().UTC()
}

// CurrentPosition returns a copy of the position and whether one is set.
func (s *Session) CurrentPosition() (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Position == nil {
		return Position{}, false
	}
	return *s.Position, true
}

// MarkActive flags the session as progressing through a routine.
func (s *Session) MarkActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusActive
	s.Updated = time.Now().UTC()
}

// MarkCompleted transitions the session to its terminal completed status.
func (s *Session) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusCompleted
	s.Updated = time.Now().UTC()
}

// MarkAbandoned transitions the session to the abandoned terminal status.
func (s *Session) MarkAbandoned() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusAbandoned
	s.Updated = time.Now().UTC()
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, Fields: make(map[string]any, len(s.Fields)), Status: s.Status, Created: s.Created, Updated: s.Updated}
	if s.Position != nil {
		p := *s.Position
		clone.Position = &p
	}
	for k, v := range s.Fields {
		clone.Fields[k] = v
	}
	return clone
}

// SessionStore persists sessions. Implementations must be safe for
// concurrent use and must return isolated copies so callers cannot mutate
// stored state behind the store's back.
type SessionStore interface {
	// Create stores a fresh session under id (generating one if empty) and
	// returns it.
	Create(ctx context.Context, id string) (*Session, error)
	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Save persists the full session snapshot, last writer wins.
	Save(ctx context.Context, sess *Session) error
	// Delete removes the session; deleting an absent session is a no-op.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions not touched since the cutoff and
	// reports how many were removed. Lifecycle policy (TTL choice, sweep
	// cadence) lives with the caller.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewID generates a new unique identifier for sessions, jobs and effects.
func NewID() string { return uuid.NewString() }
