package phrase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterflow/rosterflow/model"
)

func TestRephraseUsesModelOutput(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddResponse(
		"The guardian's name is Dana. Message to rewrite:\nWhat's the best mobile number?",
		"Lovely to meet you, Dana! What's the best mobile number for you?",
	)
	r := NewRewriter(m)

	out, err := r.Rephrase(context.Background(), "What's the best mobile number?", map[string]any{"guardian_name": "Dana"})
	require.NoError(t, err)
	assert.Equal(t, "Lovely to meet you, Dana! What's the best mobile number for you?", out)
}

func TestRephraseFallsBackOnModelError(t *testing.T) {
	m := model.NewMockModel("test")
	m.FailWith(errors.New("rate limited"))
	r := NewRewriter(m)

	out, err := r.Rephrase(context.Background(), "Please upload a photo.", nil)
	require.NoError(t, err, "a failing phraser must never fail the turn")
	assert.Equal(t, "Please upload a photo.", out)
}

func TestRephraseFallsBackOnEmptyCompletion(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddResponse("Message to rewrite:\nHello.", "   ")
	r := NewRewriter(m)

	out, err := r.Rephrase(context.Background(), "Hello.", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello.", out)
}

func TestRephraseSkipsEmptyMessage(t *testing.T) {
	m := model.NewMockModel("test")
	r := NewRewriter(m, func(o *Options) { o.Timeout = time.Second })

	out, err := r.Rephrase(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, m.Calls(), "no model call for empty copy")
}
