// Package ollama registers the Ollama adapter. Ollama exposes an
// OpenAI-compatible /v1/chat/completions surface, so this package reuses the
// openai adapter's wire translation and only adds the local-serving default
// base URL and the "no API key required" availability check.
package ollama

import (
	"context"

	"go.uber.org/zap"

	llm "github.com/riftgate/llmgateway/internal/infrastructure/llm"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm/openai"
)

const defaultBaseURL = "http://localhost:11434/v1"

func init() {
	llm.RegisterFactory("ollama", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultBaseURL
		}
		return &Provider{openai.New(cfg, logger)}
	})
}

// Provider wraps the OpenAI-compatible adapter, overriding availability:
// Ollama has no API key, so it is available whenever it's configured at all.
type Provider struct {
	*openai.Provider
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) IsAvailable(ctx context.Context) bool { return true }
