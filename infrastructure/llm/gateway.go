package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hireloop/interview-engine/internal/ports"
)

// Gateway defaults applied when the corresponding config fields are zero.
const (
	DefaultMaxConcurrent      = 8
	DefaultCircuitMaxFailures = 5
	DefaultCircuitCooldown    = 30 * time.Second
	DefaultRequestTimeout     = 60 * time.Second
	DefaultRequestsPerSecond  = 10
	DefaultBurst              = 20
)

// strictFormatInstruction is appended to the prompt when a structured
// response failed to parse and the request is retried once on the same
// provider.
const strictFormatInstruction = "\n\nIMPORTANT: Respond with a single valid JSON object only. " +
	"Do not use markdown fences. Do not add any text before or after the JSON."

// ProviderSpec configures one provider slot in the gateway's
// preference order.
type ProviderSpec struct {
	// Name labels the provider within the gateway; it also matches the
	// provider half of a "provider/model" hint. Defaults to Type.
	Name string `yaml:"name"`

	// Type selects the registered provider factory: openai, anthropic,
	// or google.
	Type string `yaml:"type" validate:"required,oneof=openai anthropic google"`

	// APIKey authenticates requests to the provider.
	APIKey string `yaml:"api_key" validate:"required"`

	// Model is the default model for this provider slot.
	Model string `yaml:"model" validate:"required"`

	// BaseURL overrides the provider endpoint when non-empty.
	BaseURL string `yaml:"base_url"`
}

// GatewayConfig configures the provider gateway: the preference-ordered
// provider list and the shared resilience parameters.
type GatewayConfig struct {
	// Providers is the fallback order. The first entry is preferred.
	Providers []ProviderSpec `yaml:"providers" validate:"required,min=1,dive"`

	// MaxConcurrent bounds in-flight provider calls across all gateway
	// callers. Sized to respect provider rate limits.
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// MaxRetries is the same-provider retry budget for transient errors.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelay seeds the exponential backoff.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`

	// CircuitMaxFailures opens a provider's circuit after this many
	// consecutive failures.
	CircuitMaxFailures int `yaml:"circuit_max_failures"`

	// CircuitCooldown is how long an open circuit rejects requests
	// before the half-open probe.
	CircuitCooldown time.Duration `yaml:"circuit_cooldown"`

	// RequestsPerSecond paces requests per provider.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst allows short spikes above the sustained rate.
	Burst int `yaml:"burst"`

	// RequestTimeout bounds each individual provider call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func (c *GatewayConfig) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultMaxDelay
	}
	if c.CircuitMaxFailures <= 0 {
		c.CircuitMaxFailures = DefaultCircuitMaxFailures
	}
	if c.CircuitCooldown <= 0 {
		c.CircuitCooldown = DefaultCircuitCooldown
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// GatewayProvider pairs a provider name with its middleware-wrapped
// core. Exposed so tests can assemble gateways from mock cores.
type GatewayProvider struct {
	// Name labels the provider in results and model hints.
	Name string

	// Core is the provider implementation, already wrapped in its
	// middleware chain.
	Core CoreLLM
}

var _ ports.CompletionGateway = (*Gateway)(nil)

// Gateway is the uniform entry point to external completion providers.
// It walks the provider preference order, relying on each provider's
// middleware chain for retry, pacing, and circuit breaking, and
// normalizes every response into ports.CompletionResult. A global
// semaphore bounds concurrent calls across all callers.
type Gateway struct {
	providers []GatewayProvider
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

// NewGateway builds a gateway from configuration. Each provider is
// wrapped in tracing, metrics, retry, circuit-breaker, rate-limit, and
// timeout middleware, in that order from the outside in.
func NewGateway(config GatewayConfig, logger *zap.Logger, metrics ports.MetricsCollector) (*Gateway, error) {
	if len(config.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	config.applyDefaults()

	providers := make([]GatewayProvider, 0, len(config.Providers))
	for _, spec := range config.Providers {
		name := spec.Name
		if name == "" {
			name = spec.Type
		}

		core, err := NewCoreLLM(spec.Type, ClientConfig{
			APIKey:  spec.APIKey,
			Model:   spec.Model,
			BaseURL: spec.BaseURL,
			Middleware: []Middleware{
				TracingMiddleware(name),
				MetricsMiddleware(name, metrics),
				RetryMiddleware(config.MaxRetries, config.RetryBaseDelay, config.RetryMaxDelay),
				CircuitBreakerMiddleware(config.CircuitMaxFailures, config.CircuitCooldown),
				RateLimitMiddleware(rate.Limit(config.RequestsPerSecond), config.Burst),
				TimeoutMiddleware(config.RequestTimeout),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}

		providers = append(providers, GatewayProvider{Name: name, Core: core})
	}

	return NewGatewayWithProviders(providers, config.MaxConcurrent, logger), nil
}

// NewGatewayWithProviders assembles a gateway from pre-built providers.
// Providers are tried in slice order.
func NewGatewayWithProviders(providers []GatewayProvider, maxConcurrent int64, logger *zap.Logger) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		providers: providers,
		sem:       semaphore.NewWeighted(maxConcurrent),
		logger:    logger,
	}
}

// Complete sends a completion request, attempting providers in
// preference order until one succeeds. An open circuit or a failed
// retry budget on one provider advances to the next; when every
// provider fails the error wraps ErrAllProvidersExhausted.
func (g *Gateway) Complete(ctx context.Context, req ports.CompletionRequest) (ports.CompletionResult, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return ports.CompletionResult{}, fmt.Errorf("gateway concurrency limit: %w", err)
	}
	defer g.sem.Release(1)

	order, modelOverride := g.routing(req.ModelHint)

	var lastErr error
	for i, p := range order {
		// The model override belongs to the hinted provider only, which
		// routing places first.
		override := ""
		if i == 0 {
			override = modelOverride
		}

		result, err := g.completeOn(ctx, p, req, override)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return ports.CompletionResult{}, err
		}
		g.logger.Warn("provider failed, advancing to next",
			zap.String("provider", p.Name),
			zap.Error(err))
	}

	return ports.CompletionResult{}, fmt.Errorf("%w: last error: %w", ErrAllProvidersExhausted, lastErr)
}

// CompleteJSON sends a completion request whose output must be a JSON
// object and unmarshals it into out. A parse failure triggers exactly
// one retry on the provider that served the response, with a stricter
// output-format instruction appended, before ErrMalformedResponse
// propagates.
func (g *Gateway) CompleteJSON(ctx context.Context, req ports.CompletionRequest, out any) (ports.CompletionResult, error) {
	result, err := g.Complete(ctx, req)
	if err != nil {
		return ports.CompletionResult{}, err
	}

	if parseErr := unmarshalCompletion(result.Text, out); parseErr == nil {
		return result, nil
	}

	provider, ok := g.provider(result.Provider)
	if !ok {
		return ports.CompletionResult{}, NewProviderError(result.Provider, ErrorTypeMalformed, 0,
			"structured output failed to parse", ErrMalformedResponse)
	}

	g.logger.Warn("structured output failed to parse, retrying with strict format",
		zap.String("provider", result.Provider))

	strictReq := req
	strictReq.Prompt = req.Prompt + strictFormatInstruction

	order, modelOverride := g.routing(req.ModelHint)
	if len(order) == 0 || order[0].Name != provider.Name {
		modelOverride = ""
	}
	retryResult, err := g.completeOn(ctx, provider, strictReq, modelOverride)
	if err != nil {
		return ports.CompletionResult{}, err
	}

	// Carry usage from both attempts so callers account full cost.
	retryResult.TokensIn += result.TokensIn
	retryResult.TokensOut += result.TokensOut

	if parseErr := unmarshalCompletion(retryResult.Text, out); parseErr != nil {
		return ports.CompletionResult{}, NewProviderError(result.Provider, ErrorTypeMalformed, 0,
			fmt.Sprintf("structured output failed to parse after strict retry: %v", parseErr),
			ErrMalformedResponse)
	}

	return retryResult, nil
}

// completeOn runs one request against a single provider and normalizes
// the response.
func (g *Gateway) completeOn(ctx context.Context, p GatewayProvider, req ports.CompletionRequest, modelOverride string) (ports.CompletionResult, error) {
	opts := map[string]any{}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["max_tokens"] = req.MaxTokens
	}
	if req.System != "" {
		opts["system"] = req.System
	}
	if modelOverride != "" {
		opts["model"] = modelOverride
	}

	start := time.Now()
	text, tokensIn, tokensOut, err := p.Core.DoRequest(ctx, req.Prompt, opts)
	if err != nil {
		return ports.CompletionResult{}, err
	}

	model := modelOverride
	if model == "" {
		model = p.Core.GetModel()
	}

	return ports.CompletionResult{
		Text:      text,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Latency:   time.Since(start),
		Provider:  p.Name,
		Model:     model,
	}, nil
}

// routing resolves a "provider/model" hint into a provider order and an
// optional model override. A hint naming a configured provider moves it
// to the front of the preference order; unknown hints are ignored.
func (g *Gateway) routing(modelHint string) ([]GatewayProvider, string) {
	if modelHint == "" {
		return g.providers, ""
	}

	providerName := modelHint
	model := ""
	if idx := strings.Index(modelHint, "/"); idx != -1 {
		providerName = modelHint[:idx]
		model = modelHint[idx+1:]
	}

	hinted, ok := g.provider(providerName)
	if !ok {
		return g.providers, ""
	}

	order := make([]GatewayProvider, 0, len(g.providers))
	order = append(order, hinted)
	for _, p := range g.providers {
		if p.Name != hinted.Name {
			order = append(order, p)
		}
	}
	return order, model
}

func (g *Gateway) provider(name string) (GatewayProvider, bool) {
	for _, p := range g.providers {
		if p.Name == name {
			return p, true
		}
	}
	return GatewayProvider{}, false
}

// unmarshalCompletion extracts and decodes the JSON object embedded in
// a completion.
func unmarshalCompletion(text string, out any) error {
	jsonStr := ExtractJSON(text)
	if jsonStr == "" {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("failed to decode response JSON: %w", err)
	}
	return nil
}
