package tool

import (
	"context"
	"sync"
)

// EffectLedger remembers which effect keys have already been applied so
// duplicate invocations of identity- or money-significant actions become
// no-op successes instead of double effects.
//
// Record must be atomic: concurrent calls with the same key must yield
// exactly one true. The dispatcher claims the key before the call and
// releases it if the call fails, so a failed attempt stays retryable.
type EffectLedger interface {
	// Record stores the key and reports whether it was new. false means the
	// effect already happened.
	Record(ctx context.Context, key string) (bool, error)
	// Release withdraws a claim so the effect can be attempted again.
	// Releasing an unknown key is a no-op.
	Release(ctx context.Context, key string) error
}

// MemoryLedger is a volatile EffectLedger for tests and single-process use.
// Durable deployments use the GORM-backed ledger in the record package so
// the guard survives restarts.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMemoryLedger returns an empty in-memory effect ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]bool)}
}

// Record implements EffectLedger.
func (l *MemoryLedger) Record(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

// Release implements EffectLedger.
func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, key)
	return nil
}
