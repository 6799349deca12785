// Package payment holds the payment provider boundary implementations.
// Mandate and billing semantics belong to the provider; rosterflow only
// needs ActivateMandate to be idempotent.
package payment

import (
	"context"
	"sync"

	"github.com/rosterflow/rosterflow/core"
)

// Fake is an in-memory PaymentProvider for tests and local runs. It records
// activations, treats repeats as no-ops, and can be primed to fail.
type Fake struct {
	mu        sync.Mutex
	activated map[string]int
	failWith  error
	failures  int
}

// NewFake returns an empty fake provider.
func NewFake() *Fake {
	return &Fake{activated: make(map[string]int)}
}

// FailNext primes the fake to return err for the next n calls.
func (f *Fake) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.failWith = err
}

// ActivateMandate implements core.PaymentProvider.
func (f *Fake) ActivateMandate(_ context.Context, mandateRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return f.failWith
	}
	if mandateRef == "" {
		return core.E(core.CodeCollaboratorFatal, "payment.activate", "empty mandate reference")
	}
	f.activated[mandateRef]++
	return nil
}

// Activations returns how many times a mandate reference was activated.
func (f *Fake) Activations(mandateRef string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activated[mandateRef]
}
