package artifact

import "sync"

// InMemoryStore keeps artifacts in a nested map guarded by an RWMutex.
// Data is copied on save and retrieval to avoid accidental external mutation
// of internal buffers. Suited to tests and single-process demos; it enforces
// no retention limits or size quotas.
//
// Layout: sessionID -> artifactID -> raw bytes
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) the artifact bytes for the given session and
// id. The input slice is copied before storage.
func (a *InMemoryStore) Save(sessionID, artifactID string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.artifacts[sessionID]; !exists {
		a.artifacts[sessionID] = make(map[string][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	a.artifacts[sessionID][artifactID] = cp
	return nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (a *InMemoryStore) Get(sessionID, artifactID string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := m[artifactID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List returns the artifact ids stored for the session. The slice is a
// snapshot and safe for caller mutation.
func (a *InMemoryStore) List(sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(sessionID, artifactID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[artifactID]; !ok {
		return ErrNotFound
	}
	delete(m, artifactID)
	return nil
}

// PurgeSession drops every artifact staged for the session. Used when a
// session is reset or swept by the janitor; purging an unknown session is a
// no-op.
func (a *InMemoryStore) PurgeSession(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.artifacts, sessionID)
	return nil
}
