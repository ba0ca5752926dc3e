// Package llm holds the provider adapter capability interface every
// upstream adapter implements, a factory registry so each adapter
// sub-package can self-register, and the pure model-name resolution logic.
package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/domain/chat"
)

// Provider is the small, stable capability set every upstream adapter
// implements: complete, stream, supports, listModels.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete performs one unary call, translating req into the upstream's
	// wire format and the response back into the canonical shape.
	Complete(ctx context.Context, req chat.Request) (*chat.Response, error)

	// Stream performs one call and returns a channel of canonical chunks,
	// closed when the upstream's stream ends or ctx is canceled.
	Stream(ctx context.Context, req chat.Request) (<-chan chat.StreamChunk, error)

	// Models returns the list of model identifiers this provider knows about
	// ahead of time (its configured/static catalog).
	Models() []string

	// SupportsModel reports whether model is one this provider can serve.
	SupportsModel(model string) bool

	// IsAvailable performs a cheap reachability check (e.g. configured key
	// present); it never blocks on a network round trip.
	IsAvailable(ctx context.Context) bool
}

// ProviderConfig configures one adapter instance.
type ProviderConfig struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"` // "openai" | "anthropic" | "gemini" | "deepseek" | "openrouter" | "ollama" | "local"
	BaseURL  string   `json:"base_url"`
	APIKey   string   `json:"api_key"`
	Models   []string `json:"models"`
	Priority int      `json:"priority"` // not read by the router or fallback chain; both use registration order
}

// ProviderFactory builds a Provider from config. Each adapter sub-package
// registers one via init().
type ProviderFactory func(cfg ProviderConfig, logger *zap.Logger) Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider factory for the given type name.
func RegisterFactory(typeName string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider creates a Provider using the registered factory for cfg.Type.
func CreateProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	t := cfg.Type
	if t == "" {
		t = "openai"
	}

	factoryMu.RLock()
	factory, ok := factories[t]
	factoryMu.RUnlock()

	if !ok {
		available := make([]string, 0, len(factories))
		factoryMu.RLock()
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", t, available)
	}

	return factory(cfg, logger), nil
}
