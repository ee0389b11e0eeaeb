package provider

import (
	"context"
	"sync"
)

// MockProvider is a scripted provider for tests. Responses and errors are
// consumed in order; once the script runs out, a default response is
// returned. Calls are captured for assertion.
type MockProvider struct {
	ProviderName string

	Responses []*Response
	Errors    []error

	mu    sync.Mutex
	Calls []Request
	index int
}

// NewMockProvider creates a mock named "mock".
func NewMockProvider() *MockProvider {
	return &MockProvider{ProviderName: "mock"}
}

// Name returns the mock's provider name.
func (m *MockProvider) Name() string {
	return m.ProviderName
}

// Invoke replays the next scripted error or response.
func (m *MockProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.index < len(m.Errors) && m.Errors[m.index] != nil {
		err := m.Errors[m.index]
		m.index++
		return nil, &ProviderError{Provider: m.ProviderName, Err: err}
	}
	if m.index < len(m.Responses) {
		resp := m.Responses[m.index]
		m.index++
		return resp, nil
	}

	return &Response{Content: "mock response", Model: req.Model}, nil
}

// CallCount returns how many invocations the mock has seen.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or false when none were made.
func (m *MockProvider) LastCall() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
