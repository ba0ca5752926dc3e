// Package config loads the gateway's configuration: environment variables
// first, with an optional YAML overlay merged underneath so operators can
// check tunables into a file without exporting a pile of env vars. A flat,
// single-purpose Config tree is the one source of truth every constructor
// reads from.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the single source of truth handed to every constructor; no
// component reads the environment directly.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Store        StoreConfig        `mapstructure:"store"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Backpressure BackpressureConfig `mapstructure:"backpressure"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener and process-level behavior.
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Env          string `mapstructure:"env"` // development | staging | production
	SharedSecret string `mapstructure:"shared_secret"`
	ConfigFile   string `mapstructure:"config_file"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ProviderCreds holds one provider's key and (for providers that need it) a
// base URL override.
type ProviderCreds struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ProvidersConfig groups every upstream adapter's credentials plus the
// router's default-resolution rule.
type ProvidersConfig struct {
	OpenAI          ProviderCreds `mapstructure:"openai"`
	Anthropic       ProviderCreds `mapstructure:"anthropic"`
	DeepSeek        ProviderCreds `mapstructure:"deepseek"`
	Gemini          ProviderCreds `mapstructure:"gemini"`
	OpenRouter      ProviderCreds `mapstructure:"openrouter"`
	Ollama          ProviderCreds `mapstructure:"ollama"`
	LocalInference  ProviderCreds `mapstructure:"local_inference"`
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultModel    string        `mapstructure:"default_model"`
}

// StoreConfig configures the session store.
type StoreConfig struct {
	RedisURL          string        `mapstructure:"redis_url"` // empty => in-memory store
	SessionTTLSeconds int           `mapstructure:"session_ttl_seconds"`
	SessionTTL        time.Duration `mapstructure:"-"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"rpm"`
	Burst             int `mapstructure:"burst"`
}

// BreakerConfig configures the tool executor's per-tool circuit breakers.
// Provider breakers, created by llm.Router.AddProvider, use a fixed
// 5-failure threshold and 30s recovery timeout and do not read it.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// BackpressureConfig configures the admission gate.
type BackpressureConfig struct {
	MemoryThresholdMB int     `mapstructure:"memory_threshold_mb"`
	SoftLimitPercent  float64 `mapstructure:"soft_limit_percent"`
	MaxConcurrent     int     `mapstructure:"max_concurrent_requests"`
}

// ToolsConfig configures where the HTTP-proxied built-in tools dispatch to.
type ToolsConfig struct {
	SemanticSearchURL string `mapstructure:"semantic_search_url"`
	AIAgentsURL       string `mapstructure:"ai_agents_url"`
}

// Load builds a Config from environment variables, overlaid with an
// optional CONFIG_FILE YAML document (values in the file fill in anything
// the environment didn't already set — env always wins).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	bindEnv(v)

	if configFile := v.GetString("server.config_file"); configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Store.SessionTTL = time.Duration(cfg.Store.SessionTTLSeconds) * time.Second

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("providers.default_provider", "openai")
	v.SetDefault("providers.default_model", "gpt-4o-mini")

	v.SetDefault("store.session_ttl_seconds", 1800)

	v.SetDefault("rate_limit.rpm", 60)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", "30s")

	v.SetDefault("backpressure.memory_threshold_mb", 1024)
	v.SetDefault("backpressure.soft_limit_percent", 0.8)
	v.SetDefault("backpressure.max_concurrent_requests", 50)
}

// bindEnv wires every supported environment variable to its mapstructure
// path. AutomaticEnv alone won't find these because the env names don't
// share a common prefix with the nested keys, so each is bound explicitly.
func bindEnv(v *viper.Viper) {
	binds := map[string]string{
		"server.port":                          "PORT",
		"server.env":                           "ENV",
		"server.shared_secret":                 "GATEWAY_SHARED_SECRET",
		"server.config_file":                   "CONFIG_FILE",
		"log.level":                            "LOG_LEVEL",
		"store.redis_url":                      "REDIS_URL",
		"store.session_ttl_seconds":            "SESSION_TTL_SECONDS",
		"providers.openai.api_key":             "OPENAI_API_KEY",
		"providers.anthropic.api_key":           "ANTHROPIC_API_KEY",
		"providers.deepseek.api_key":            "DEEPSEEK_API_KEY",
		"providers.gemini.api_key":              "GOOGLE_API_KEY",
		"providers.openrouter.api_key":          "OPENROUTER_API_KEY",
		"providers.local_inference.base_url":    "INFERENCE_SERVICE_URL",
		"providers.default_provider":            "DEFAULT_PROVIDER",
		"providers.default_model":               "DEFAULT_MODEL",
		"tools.semantic_search_url":             "SEMANTIC_SEARCH_URL",
		"tools.ai_agents_url":                   "AI_AGENTS_URL",
		"rate_limit.rpm":                        "RATE_LIMIT_RPM",
		"rate_limit.burst":                      "RATE_LIMIT_BURST",
		"breaker.failure_threshold":             "CIRCUIT_BREAKER_FAILURE_THRESHOLD",
		"breaker.recovery_timeout":              "CIRCUIT_BREAKER_RECOVERY_TIMEOUT",
		"backpressure.memory_threshold_mb":      "MEMORY_THRESHOLD_MB",
		"backpressure.soft_limit_percent":       "MEMORY_SOFT_LIMIT_PERCENT",
		"backpressure.max_concurrent_requests":  "MAX_CONCURRENT_REQUESTS",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}
