// Package photo holds the roster-photo pipeline boundary. The pixel math
// (resize/crop) is a collaborator concern behind core.PhotoProcessor; what
// matters to the orchestration core is that Process can take longer than
// the transport ceiling, which is why the step is registered long-running.
package photo

import (
	"context"
	"net/http"
	"time"

	"github.com/rosterflow/rosterflow/core"
)

// Passthrough is the default processor: it validates the payload looks like
// an image and returns it unchanged with a sniffed content type. A real
// deployment swaps in the resizing pipeline behind the same interface.
//
// Delay simulates pipeline latency; tests use it to drive the async path
// past the submit bound and the watchdog.
type Passthrough struct {
	Delay time.Duration
}

// Process implements core.PhotoProcessor.
func (p *Passthrough) Process(ctx context.Context, data []byte) (*core.ProcessedPhoto, error) {
	if p.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, core.Wrap(core.CodeCollaboratorTransient, "photo.process", "cancelled", ctx.Err())
		case <-time.After(p.Delay):
		}
	}
	if len(data) == 0 {
		return nil, core.E(core.CodeCollaboratorFatal, "photo.process", "empty photo payload")
	}
	contentType := http.DetectContentType(data)
	switch contentType {
	case "image/jpeg", "image/png":
	default:
		return nil, core.E(core.CodeCollaboratorFatal, "photo.process", "payload is not a jpeg or png image")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return &core.ProcessedPhoto{Data: out, ContentType: contentType}, nil
}
