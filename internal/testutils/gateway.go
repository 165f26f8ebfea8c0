// Package testutils provides deterministic fakes shared across the
// engine's test suites.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hireloop/interview-engine/internal/ports"
)

// GatewayFunc computes a scripted completion for a request. Returning
// an error simulates a gateway failure.
type GatewayFunc func(req ports.CompletionRequest) (string, error)

// MockGateway is a scriptable ports.CompletionGateway. Responses are
// served in registration order; after the script is exhausted the last
// response repeats. A handler, when set, overrides the script.
type MockGateway struct {
	mu        sync.Mutex
	responses []string
	handler   GatewayFunc
	err       error
	delay     time.Duration

	calls   int
	prompts []string
}

// NewMockGateway builds a gateway that replays the given responses.
func NewMockGateway(responses ...string) *MockGateway {
	return &MockGateway{responses: responses}
}

// SetHandler routes every request through fn instead of the scripted
// responses.
func (m *MockGateway) SetHandler(fn GatewayFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// SetError makes every call fail with err until cleared with nil.
func (m *MockGateway) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every call block for d or until the context expires.
func (m *MockGateway) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// CallCount reports how many completions were requested.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received, in call order.
func (m *MockGateway) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Complete implements ports.CompletionGateway.
func (m *MockGateway) Complete(ctx context.Context, req ports.CompletionRequest) (ports.CompletionResult, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	handler := m.handler
	scriptErr := m.err
	delay := m.delay

	var text string
	if handler == nil && scriptErr == nil {
		if len(m.responses) == 0 {
			m.mu.Unlock()
			return ports.CompletionResult{}, fmt.Errorf("mock gateway has no scripted responses")
		}
		idx := m.calls - 1
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		text = m.responses[idx]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ports.CompletionResult{}, ctx.Err()
		}
	}
	if scriptErr != nil {
		return ports.CompletionResult{}, scriptErr
	}
	if handler != nil {
		var err error
		text, err = handler(req)
		if err != nil {
			return ports.CompletionResult{}, err
		}
	}

	return ports.CompletionResult{
		Text:      text,
		TokensIn:  len(req.Prompt) / 4,
		TokensOut: len(text) / 4,
		Latency:   delay,
		Provider:  "mock",
		Model:     "mock-model",
	}, nil
}

// CompleteJSON implements ports.CompletionGateway by unmarshaling the
// scripted response into out.
func (m *MockGateway) CompleteJSON(ctx context.Context, req ports.CompletionRequest, out any) (ports.CompletionResult, error) {
	result, err := m.Complete(ctx, req)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(result.Text), out); err != nil {
		return result, fmt.Errorf("mock gateway response is not valid JSON: %w", err)
	}
	return result, nil
}

var _ ports.CompletionGateway = (*MockGateway)(nil)
