// Package phrase rewrites the routine's deterministic prompts in a warmer
// conversational voice using a language model. It is strictly cosmetic: the
// facts in a message come from the step table and must survive the rewrite,
// and any model failure falls back to the original text so the workflow
// never stalls on the phrasing layer.
package phrase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rosterflow/rosterflow/logging"
	"github.com/rosterflow/rosterflow/model"
)

const systemPrompt = "You are the friendly front desk of a youth sports club. " +
	"Rewrite the given message in a warm, concise voice. Keep every fact, name, " +
	"number, option list and question exactly as given. Reply with the rewritten " +
	"message only."

// Options holds configuration overrides passed to NewRewriter.
type Options struct {
	// Timeout bounds one model call; on expiry the original text is used.
	Timeout time.Duration
	Logger  logging.Logger
}

// Rewriter implements the orchestrator's Phraser over a model.Model.
type Rewriter struct {
	model   model.Model
	timeout time.Duration
	logger  logging.Logger
}

// NewRewriter wires a rewriter over the given model.
func NewRewriter(m model.Model, optFns ...func(o *Options)) *Rewriter {
	opts := Options{
		Timeout: 5 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Rewriter{model: m, timeout: opts.Timeout, logger: opts.Logger}
}

// Rephrase asks the model for a warmer rendition of message. On any failure
// the original message comes back with a nil error, so callers can use the
// result unconditionally.
func (r *Rewriter) Rephrase(ctx context.Context, message string, fields map[string]any) (string, error) {
	if strings.TrimSpace(message) == "" {
		return message, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.model.Complete(callCtx, model.Request{
		System: systemPrompt,
		Prompt: buildPrompt(message, fields),
	})
	if err != nil {
		r.logger.Warn("phrase rewrite failed, using original copy", "error", err.Error())
		return message, nil
	}
	out := strings.TrimSpace(resp.Text)
	if out == "" {
		return message, nil
	}
	return out, nil
}

// buildPrompt gives the model light context about the registrant so the
// rewrite can address people by name without inventing anything.
func buildPrompt(message string, fields map[string]any) string {
	var b strings.Builder
	if name, ok := fields["guardian_name"].(string); ok && name != "" {
		fmt.Fprintf(&b, "The guardian's name is %s. ", name)
	}
	if name, ok := fields["player_name"].(string); ok && name != "" {
		fmt.Fprintf(&b, "The player's name is %s. ", name)
	}
	b.WriteString("Message to rewrite:\n")
	b.WriteString(message)
	return b.String()
}
