package llm

import (
	"context"
	"fmt"
	"time"
)

// CoreLLM is the minimal interface a completion provider must
// implement. The middleware chain wraps any conforming implementation,
// so cross-cutting concerns stay out of provider code.
type CoreLLM interface {
	// DoRequest sends a prompt to the provider and returns the response
	// text along with prompt and completion token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the configured model name.
	GetModel() string

	// SetModel updates the model for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreLLM to add cross-cutting behavior such as
// retry, circuit breaking, rate limiting, metrics, or tracing.
// Middleware composes; the first in a chain is the outermost.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds the settings for constructing a provider client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model selects the model for requests.
	Model string

	// BaseURL overrides the provider's default endpoint when non-empty.
	BaseURL string

	// Timeout bounds individual requests. Zero means no client timeout.
	Timeout time.Duration

	// Middleware is applied outermost-first around the provider core.
	Middleware []Middleware
}

// ProviderFactory builds a CoreLLM from configuration. Providers
// register themselves through RegisterProviderFactory in init.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider implementation under a
// type name such as "openai". Registration is not synchronized and must
// happen during init.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// NewCoreLLM constructs a provider core with its middleware chain
// applied. The provider type must have been registered.
func NewCoreLLM(providerType string, config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	// Apply middleware in reverse so the first listed is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return core, nil
}
