package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// without calling the downstream provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the current state of a circuit breaker.
type CircuitState int

// Circuit breaker states.
const (
	// CircuitClosed passes requests through normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects requests immediately for the cool-down period.
	CircuitOpen

	// CircuitHalfOpen allows a single probe request to test recovery.
	CircuitHalfOpen
)

// CircuitBreaker isolates a repeatedly failing provider. After
// maxFailures consecutive errors the circuit opens for the cool-down
// duration, then allows one half-open probe before closing again.
type CircuitBreaker struct {
	mu          sync.RWMutex
	state       CircuitState
	failures    int
	probing     bool
	maxFailures int
	cooldown    time.Duration
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker that opens after
// maxFailures consecutive errors and stays open for cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:       CircuitClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// Call executes fn through the circuit breaker. When the circuit is
// open it returns ErrCircuitOpen without invoking fn. The lock guards
// only state transitions; fn runs unlocked so calls through a healthy
// provider overlap freely.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// allow admits a request or fails fast with ErrCircuitOpen. While
// half-open, only a single probe is admitted at a time.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.probing = true
		return nil
	case CircuitHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// record applies the outcome of an admitted request.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
		}
		return
	}
	cb.failures = 0
	cb.state = CircuitClosed
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// circuitBreakedLLM wraps a provider with a circuit breaker so the
// gateway can skip it while it recovers.
type circuitBreakedLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware creates circuit breaker middleware.
// The breaker instance is shared by all requests through the returned
// middleware.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakedLLM{next: next, cb: cb}
	}
}

// DoRequest executes the request through the circuit breaker, failing
// fast with ErrCircuitOpen while the circuit is open.
func (c *circuitBreakedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var response string
	var tokensIn, tokensOut int

	err := c.cb.Call(func() error {
		var err error
		response, tokensIn, tokensOut, err = c.next.DoRequest(ctx, prompt, opts)
		return err
	})

	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (c *circuitBreakedLLM) GetModel() string { return c.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (c *circuitBreakedLLM) SetModel(m string) { c.next.SetModel(m) }
