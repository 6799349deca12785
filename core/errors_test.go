package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	err := E(CodeValidation, "engine.advance", "bad input shape")
	assert.Equal(t, CodeValidation, CodeOf(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, CodeValidation, CodeOf(wrapped), "codes survive fmt wrapping")

	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeCollaboratorTransient, "payment.activate", "provider unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "payment.activate")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsTransientOnlyForTransientCode(t *testing.T) {
	assert.False(t, IsTransient(E(CodeCollaboratorFatal, "op", "no")))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.True(t, IsTransient(E(CodeCollaboratorTransient, "op", "blip")))
}
