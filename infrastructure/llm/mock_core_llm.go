package llm

import (
	"context"
	"sync"
)

// MockCoreLLM is a configurable CoreLLM test double shared by the
// middleware and gateway tests.
type MockCoreLLM struct {
	mu sync.Mutex

	// Response is returned on success.
	Response string

	// TokensIn and TokensOut are the usage counts returned on success.
	TokensIn  int
	TokensOut int

	// Error, when non-nil, fails every request.
	Error error

	// FailFirst fails this many requests before succeeding.
	FailFirst int

	// Delay blocks each request until the context expires or the
	// duration elapses, when set via DelayFn.
	DelayFn func(ctx context.Context) error

	model     string
	callCount int
	prompts   []string
}

// NewMockCoreLLM returns a mock that succeeds with a canned response.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		model:     "mock-model",
	}
}

// DoRequest returns the configured response or error and records the call.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	err := m.Error
	if err == nil && m.FailFirst > 0 {
		m.FailFirst--
		err = ErrEmptyResponse
	}
	delayFn := m.DelayFn
	response, tokensIn, tokensOut := m.Response, m.TokensIn, m.TokensOut
	m.mu.Unlock()

	if delayFn != nil {
		if derr := delayFn(ctx); derr != nil {
			return "", 0, 0, derr
		}
	}
	if err != nil {
		return "", 0, 0, err
	}
	return response, tokensIn, tokensOut, nil
}

// GetCallCount returns how many requests the mock has received.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the most recent prompt, or empty when unused.
func (m *MockCoreLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// SetError updates the error returned by subsequent requests.
func (m *MockCoreLLM) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
}

// SetResponse updates the response returned by subsequent requests.
func (m *MockCoreLLM) SetResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Response = response
}

// GetModel returns the mock model name.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel updates the mock model name.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}
