package record

import (
	"context"
	"sync"

	"github.com/rosterflow/rosterflow/core"
)

// InMemoryStore is a volatile RecordStore for tests and demos. Returned
// records are copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[core.Identity]*core.ExternalRecord
	failSet error
}

// NewInMemoryStore constructs an empty in-memory record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[core.Identity]*core.ExternalRecord)}
}

// Seed installs a record directly, bypassing CreateOrUpdate. Test helper.
func (s *InMemoryStore) Seed(rec core.ExternalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Identity = rec.Identity.Normalize()
	s.records[rec.Identity] = copyRecord(&rec)
}

// FailWith makes every subsequent call return err until reset with nil.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = err
}

// Find implements core.RecordStore.
func (s *InMemoryStore) Find(_ context.Context, id core.Identity) (*core.ExternalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failSet != nil {
		return nil, s.failSet
	}
	n := id.Normalize()
	if rec, ok := s.records[n]; ok {
		return copyRecord(rec), nil
	}
	return nil, core.ErrRecordNotFound
}

// CreateOrUpdate implements core.RecordStore.
func (s *InMemoryStore) CreateOrUpdate(_ context.Context, id core.Identity, delta map[string]any) (*core.ExternalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return nil, s.failSet
	}
	n := id.Normalize()
	if !n.Complete() {
		return nil, core.E(core.CodeValidation, "record.CreateOrUpdate", "identity requires both guardian and player name")
	}
	rec, ok := s.records[n]
	if !ok {
		rec = &core.ExternalRecord{Identity: n}
		s.records[n] = rec
	}
	ApplyDelta(rec, delta)
	return copyRecord(rec), nil
}

// Len reports the number of stored records. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(rec *core.ExternalRecord) *core.ExternalRecord {
	out := *rec
	if rec.Extra != nil {
		out.Extra = make(map[string]any, len(rec.Extra))
		for k, v := range rec.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}
