// Package model defines the provider-agnostic abstraction for the language
// models that polish outgoing messages.
//
// Core goals:
//   - Keep request/response shapes minimal and transport independent
//   - Let providers (OpenAI, Anthropic) plug in behind one interface
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Nothing in the workflow depends on a model being present: callers degrade
// to their deterministic copy when no provider is configured or a call fails.
package model

import (
	"context"
	"fmt"
	"sync"
)

// Request is one completion request.
type Request struct {
	// System sets the behavioral instructions for the completion.
	System string `json:"system,omitempty"`
	// Prompt is the user-turn content.
	Prompt string `json:"prompt"`
}

// Response is the completed text.
type Response struct {
	Text string `json:"text"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Model is the minimal interface required to drive a completion.
type Model interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and demos.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	err       error
	calls     int
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailWith makes every subsequent Complete return err until reset with nil.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many completions were attempted.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete implements Model; unknown prompts get an echo response.
func (m *MockModel) Complete(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if canned, ok := m.responses[req.Prompt]; ok {
		return &Response{Text: canned}, nil
	}
	return &Response{Text: fmt.Sprintf("Mock response to: %s", req.Prompt)}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
