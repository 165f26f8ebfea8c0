// Package ports defines the interfaces through which the evaluation
// engine talks to external systems: AI completion providers, caches,
// durable storage, metrics, and report consumers. Implementations live
// under infrastructure; the engine depends only on these contracts.
package ports

import (
	"context"
	"time"
)

// CompletionRequest is the normalized outbound request to an AI
// completion provider. Callers never see provider-specific fields.
type CompletionRequest struct {
	// Prompt is the rendered prompt text.
	Prompt string

	// System optionally sets a system instruction.
	System string

	// ModelHint suggests a model in "provider/model" form. Empty means
	// the gateway's default routing applies.
	ModelHint string

	// Temperature controls output randomness. Nil uses the provider
	// default.
	Temperature *float64

	// MaxTokens bounds the completion length. Zero uses the provider
	// default.
	MaxTokens int
}

// CompletionResult is the normalized provider response: text plus token
// usage and latency, identical in shape regardless of origin.
type CompletionResult struct {
	// Text is the generated completion.
	Text string

	// TokensIn is the prompt token count reported or estimated.
	TokensIn int

	// TokensOut is the completion token count reported or estimated.
	TokensOut int

	// Latency is the wall-clock duration of the provider call.
	Latency time.Duration

	// Provider names the provider that served the request.
	Provider string

	// Model names the model that served the request.
	Model string
}

// CompletionGateway is the uniform contract over external AI completion
// providers. Implementations own retry, timeout, provider fallback, and
// circuit breaking; callers receive either a normalized result or a
// gateway error (timeout, rate limited, malformed response, or all
// providers exhausted).
type CompletionGateway interface {
	// Complete sends a completion request and returns the normalized
	// result. The context carries the caller's deadline, which
	// propagates to all provider attempts.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)

	// CompleteJSON sends a completion request whose output must be a
	// JSON document, and unmarshals it into out. A malformed response
	// triggers one same-provider retry with a stricter output-format
	// instruction before the error propagates.
	CompleteJSON(ctx context.Context, req CompletionRequest, out any) (CompletionResult, error)
}

// CacheStore is the shared cache contract keyed by opaque string
// fingerprints. It backs the response cache's shared tier and the
// scoring pool's persisted snapshots.
type CacheStore interface {
	// Get retrieves a value by key. The second return is false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with an expiration. Zero expiration means the
	// entry does not expire.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes a key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// MetricsCollector records operational metrics. Implementations
// integrate with Prometheus or other monitoring backends.
type MetricsCollector interface {
	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, used for
	// latencies and score distributions.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
