package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerMiddleware_AllowsRequestsWhenClosed(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := CircuitBreakerMiddleware(3, 100*time.Millisecond)(mock)

	response, tokensIn, tokensOut, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.NoError(t, err, "request should succeed when circuit is closed")
	assert.Equal(t, "test response", response)
	assert.Equal(t, 10, tokensIn)
	assert.Equal(t, 20, tokensOut)
	assert.Equal(t, 1, mock.GetCallCount())
}

func TestCircuitBreakerMiddleware_OpensAfterMaxFailures(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	wrapped := CircuitBreakerMiddleware(2, 100*time.Millisecond)(mock)

	ctx := context.Background()
	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	_, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)
	require.Error(t, err1)
	require.Error(t, err2)

	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)
	require.Error(t, err3)
	assert.Equal(t, ErrCircuitOpen, err3, "should fail fast once circuit is open")
	assert.Equal(t, 2, mock.GetCallCount(), "open circuit should not reach the provider")
}

func TestCircuitBreakerMiddleware_RemainsOpenDuringCooldown(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	wrapped := CircuitBreakerMiddleware(1, 100*time.Millisecond)(mock)

	ctx := context.Background()
	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	require.Error(t, err1)

	_, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)
	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)

	assert.Equal(t, ErrCircuitOpen, err2)
	assert.Equal(t, ErrCircuitOpen, err3)
	assert.Equal(t, 1, mock.GetCallCount(), "cooldown should not reach the provider")
}

func TestCircuitBreakerMiddleware_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	cooldown := 50 * time.Millisecond
	wrapped := CircuitBreakerMiddleware(1, cooldown)(mock)

	ctx := context.Background()
	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	require.Error(t, err1)

	time.Sleep(cooldown + 10*time.Millisecond)

	mock.SetError(nil)
	response, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)
	require.NoError(t, err2, "half-open probe should succeed after cooldown")
	assert.Equal(t, "test response", response)

	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)
	require.NoError(t, err3, "circuit should be closed after successful probe")
	assert.Equal(t, 3, mock.GetCallCount())
}

func TestCircuitBreakerMiddleware_ReopensOnFailedProbe(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	cooldown := 50 * time.Millisecond
	wrapped := CircuitBreakerMiddleware(1, cooldown)(mock)

	ctx := context.Background()
	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	require.Error(t, err1)

	time.Sleep(cooldown + 10*time.Millisecond)

	_, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)
	require.Error(t, err2, "probe should fail while the provider is down")

	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)
	assert.Equal(t, ErrCircuitOpen, err3, "failed probe should reopen the circuit")
	assert.Equal(t, 2, mock.GetCallCount())
}

func TestCircuitBreakerMiddleware_AllowsConcurrentRequests(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.DelayFn = func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	wrapped := CircuitBreakerMiddleware(3, time.Second)(mock)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := wrapped.DoRequest(context.Background(), "concurrent", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 300*time.Millisecond,
		"calls through a closed circuit should overlap, not serialize")
	assert.Equal(t, 4, mock.GetCallCount())
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cb.Call(func() error {
			close(probeStarted)
			<-release
			return nil
		})
	}()
	<-probeStarted

	err := cb.Call(func() error { return nil })
	assert.Equal(t, ErrCircuitOpen, err, "second caller must not join the probe")

	close(release)
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)
	assert.Equal(t, CircuitClosed, cb.State())

	failing := func() error { return errors.New("boom") }
	_ = cb.Call(failing)
	assert.Equal(t, CircuitClosed, cb.State(), "one failure below threshold keeps circuit closed")

	_ = cb.Call(failing)
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(60 * time.Millisecond)
	err := cb.Call(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State(), "successful probe closes the circuit")
}
