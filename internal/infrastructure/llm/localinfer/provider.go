// Package localinfer registers the "local" adapter type: a self-hosted,
// OpenAI-compatible inference server (vLLM, llama.cpp's server mode, LM
// Studio, etc.) reachable on the operator's own network. It is the
// conventional default-provider choice in router.go rule 5 and the
// fallback chain's always-eligible "local" exemption from model-support
// filtering.
package localinfer

import (
	"context"

	"go.uber.org/zap"

	llm "github.com/riftgate/llmgateway/internal/infrastructure/llm"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm/openai"
)

const defaultBaseURL = "http://localhost:8000/v1"

func init() {
	llm.RegisterFactory("local", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultBaseURL
		}
		return &Provider{openai.New(cfg, logger)}
	})
}

// Provider wraps the OpenAI-compatible adapter: local inference servers
// rarely require an API key, so availability just checks configuration.
type Provider struct {
	*openai.Provider
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) IsAvailable(ctx context.Context) bool { return true }
