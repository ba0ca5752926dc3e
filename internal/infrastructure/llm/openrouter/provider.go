// Package openrouter registers the OpenRouter adapter. OpenRouter fronts
// many upstream models behind one OpenAI-compatible chat completions
// endpoint, so this package only supplies OpenRouter's default base URL,
// reusing the openai adapter otherwise. No OpenRouter-specific headers are
// added.
package openrouter

import (
	"go.uber.org/zap"

	llm "github.com/riftgate/llmgateway/internal/infrastructure/llm"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm/openai"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

func init() {
	llm.RegisterFactory("openrouter", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultBaseURL
		}
		return openai.New(cfg, logger)
	})
}
