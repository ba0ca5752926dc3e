// Package deepseek registers the DeepSeek adapter. DeepSeek's chat API is
// wire-compatible with OpenAI's chat completions endpoint, so this package
// only supplies DeepSeek's default base URL and reuses the openai adapter's
// translate_in/translate_out logic rather than duplicating it.
package deepseek

import (
	"go.uber.org/zap"

	llm "github.com/riftgate/llmgateway/internal/infrastructure/llm"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm/openai"
)

const defaultBaseURL = "https://api.deepseek.com/v1"

func init() {
	llm.RegisterFactory("deepseek", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultBaseURL
		}
		return openai.New(cfg, logger)
	})
}
