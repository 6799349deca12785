package core

import (
	"errors"
	"fmt"
)

// Code classifies failures crossing component boundaries so callers can
// branch on recovery strategy without string matching.
type Code string

const (
	// CodeValidation marks user input that fails the current step's expected
	// shape. Recovered locally: the engine re-prompts, position unchanged.
	CodeValidation Code = "validation"
	// CodeLookupMiss marks a resume lookup that found nothing. Not a real
	// failure; the orchestrator treats the session as new.
	CodeLookupMiss Code = "lookup_miss"
	// CodeCollaboratorTransient marks a timeout / 5xx-class failure from an
	// external call. Retried with backoff at the dispatcher boundary.
	CodeCollaboratorTransient Code = "collaborator_transient"
	// CodeCollaboratorFatal marks a permanent rejection (bad credentials,
	// 4xx-class). Surfaced and flagged for operator attention.
	CodeCollaboratorFatal Code = "collaborator_fatal"
	// CodeAsyncTimeout marks a background job killed by the watchdog.
	CodeAsyncTimeout Code = "async_timeout"
	// CodeDuplicateEffect marks an idempotent short-circuit: the effect
	// already exists, the call is a no-op success.
	CodeDuplicateEffect Code = "duplicate_effect"
	// CodeConfig marks invalid wiring (bad step table, unknown action).
	// Fails process startup, never reaches request handling.
	CodeConfig Code = "config"
)

// Error is the taxonomy-bearing error type used across component
// boundaries. Op names the failing operation for log correlation.
type Error struct {
	Code    Code   `json:"code"`
	Op      string `json:"op"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// E constructs a taxonomy error. Wrap an underlying cause with Wrap instead
// when one exists.
func E(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap constructs a taxonomy error around an underlying cause.
func Wrap(code Code, op, message string, err error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err is retryable at the dispatcher boundary.
func IsTransient(err error) bool { return CodeOf(err) == CodeCollaboratorTransient }

// ErrSessionNotFound is returned by SessionStore.Get for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrRecordNotFound is returned by RecordStore.Find when no record matches
// the identity. Indistinguishable at this layer from "genuinely new user".
var ErrRecordNotFound = errors.New("record not found")
