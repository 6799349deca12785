package session

import (
	"context"
	"sync"
	"time"

	"github.com/rosterflow/rosterflow/core"
)

// InMemoryStore is a volatile SessionStore implementation storing sessions
// in a process local map. It is safe for concurrent access. Each returned
// session is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create stores a fresh session under id, overwriting any existing one.
func (s *InMemoryStore) Create(_ context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSession(id)
	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

// Get returns a clone of an existing session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[id]; ok {
		return sess.Clone(), nil
	}
	return nil, core.ErrSessionNotFound
}

// Save stores a clone of the provided session snapshot, last writer wins.
func (s *InMemoryStore) Save(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Delete removes a session; unknown ids are a no-op.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteExpired removes sessions whose Updated stamp is before the cutoff.
func (s *InMemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, sess := range s.sessions {
		if sess.Updated.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored sessions. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
