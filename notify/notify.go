// Package notify holds the SMS boundary implementations. Delivery itself is
// a collaborator concern; the core only needs Send.
package notify

import (
	"context"
	"sync"

	"github.com/rosterflow/rosterflow/logging"
)

// Message is one recorded send.
type Message struct {
	Destination string
	Body        string
}

// Fake is an in-memory Notifier recording every send. Useful for tests and
// local runs without an SMS account.
type Fake struct {
	mu       sync.Mutex
	sent     []Message
	failWith error
	logger   logging.Logger
}

// NewFake returns an empty fake notifier.
func NewFake(optFns ...func(f *Fake)) *Fake {
	f := &Fake{logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(f)
	}
	return f
}

// WithLogger sets the logger the fake reports sends to.
func WithLogger(logger logging.Logger) func(f *Fake) {
	return func(f *Fake) { f.logger = logger }
}

// FailWith makes every subsequent Send return err (nil clears it).
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

// Send implements core.Notifier.
func (f *Fake) Send(_ context.Context, destination, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.sent = append(f.sent, Message{Destination: destination, Body: body})
	f.logger.Info("sms sent", "destination", destination, "bytes", len(body))
	return nil
}

// Sent returns a snapshot of recorded messages.
func (f *Fake) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.sent))
	copy(out, f.sent)
	return out
}
