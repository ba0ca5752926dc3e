package application

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/audit"
	domtool "github.com/riftgate/llmgateway/internal/domain/tool"
	"github.com/riftgate/llmgateway/internal/infrastructure/backpressure"
	"github.com/riftgate/llmgateway/internal/infrastructure/config"
	"github.com/riftgate/llmgateway/internal/infrastructure/fallback"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm"

	// Each adapter sub-package self-registers its ProviderFactory via
	// init(); these blank imports are the only place that needs to know
	// every adapter exists.
	_ "github.com/riftgate/llmgateway/internal/infrastructure/llm/anthropic"
	_ "github.com/riftgate/llmgateway/internal/infrastructure/llm/deepseek"
	_ "github.com/riftgate/llmgateway/internal/infrastructure/llm/gemini"
	_ "github.com/riftgate/llmgateway/internal/infrastructure/llm/localinfer"
	_ "github.com/riftgate/llmgateway/internal/infrastructure/llm/ollama"
	_ "github.com/riftgate/llmgateway/internal/infrastructure/llm/openai"
	_ "github.com/riftgate/llmgateway/internal/infrastructure/llm/openrouter"

	"github.com/riftgate/llmgateway/internal/infrastructure/monitoring"
	"github.com/riftgate/llmgateway/internal/infrastructure/ratelimit"
	"github.com/riftgate/llmgateway/internal/infrastructure/session"
	infratool "github.com/riftgate/llmgateway/internal/infrastructure/tool"
	"github.com/riftgate/llmgateway/pkg/safego"
)

// App is the gateway's composition root: it owns every long-lived
// component's lifecycle (router, chain, store, registry, executor,
// orchestrator, audit log, config watcher) and exposes just enough of each
// for cmd/gateway to wire the HTTP server on top. Kept as a struct so both
// the serve command and tests can construct one without duplicating wiring.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Router      *llm.Router
	Chain       *fallback.Chain
	Store       session.Store
	Registry    domtool.Registry
	Executor    *infratool.Executor
	Orchestrator *Orchestrator
	Audit       *audit.Log
	Monitor     *monitoring.Monitor
	Limiter     *ratelimit.Limiter
	Gate        *backpressure.Gate
	Watcher     *config.Watcher
}

// New builds every component from cfg. Components that own a loop start it
// as they are built (the rate limiter's idle-key eviction, the backpressure
// gate's memory sampler, and the in-memory store's sweep when no Redis URL
// is set); the config watcher and metrics collector start only when Run is
// called.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	router := buildRouter(cfg, logger)
	chain := fallback.New(router, logger)

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := domtool.NewInMemoryRegistry(infratool.CompileSchema)
	if err := infratool.RegisterBuiltins(registry, http.DefaultClient, infratool.ProxyServiceConfig{
		SemanticSearchBaseURL: cfg.Tools.SemanticSearchURL,
		CodeIntelBaseURL:      cfg.Tools.AIAgentsURL,
	}); err != nil {
		return nil, err
	}

	executor := infratool.NewExecutor(registry, infratool.ExecutorConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	}, logger)

	orchestrator := NewOrchestrator(router, chain, executor, store, OrchestratorConfig{
		SessionTTL: cfg.Store.SessionTTL,
	}, logger)

	var auditLog *audit.Log
	if cfg.Server.Env != "test" {
		auditLog, err = audit.Open("gateway_audit.db")
		if err != nil {
			logger.Warn("audit log unavailable, continuing without it", zap.Error(err))
			auditLog = nil
		}
	}

	monitor := monitoring.NewMonitor(logger)

	limiter := ratelimit.New(ratelimit.Config{
		BurstSize:         cfg.RateLimit.Burst,
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
	})

	gate := backpressure.New(backpressure.Config{
		MaxConcurrent:     int64(cfg.Backpressure.MaxConcurrent),
		MemoryThresholdMB: float64(cfg.Backpressure.MemoryThresholdMB),
		SoftLimitPercent:  cfg.Backpressure.SoftLimitPercent,
	}, logger)

	watcher, err := config.NewWatcher(cfg.Server.ConfigFile, config.Tunables{
		RateLimit:    cfg.RateLimit,
		Breaker:      cfg.Breaker,
		Backpressure: cfg.Backpressure,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Router:       router,
		Chain:        chain,
		Store:        store,
		Registry:     registry,
		Executor:     executor,
		Orchestrator: orchestrator,
		Audit:        auditLog,
		Monitor:      monitor,
		Limiter:      limiter,
		Gate:         gate,
		Watcher:      watcher,
	}, nil
}

// Run starts every background loop (config watcher, metrics sampler) until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	safego.Go(a.Logger, "config-watcher", a.Watcher.Start)
	safego.Go(a.Logger, "metrics-collector", func() { a.Monitor.StartCollector(ctx, 10*time.Second) })

	<-ctx.Done()
	a.Watcher.Stop()
}

// Close releases every component holding an external resource (store,
// audit log). Safe to call even on a partially constructed App.
func (a *App) Close() error {
	var firstErr error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildRouter(cfg *config.Config, logger *zap.Logger) *llm.Router {
	router := llm.NewRouter(logger)

	type creds struct {
		typeName string
		c        config.ProviderCreds
	}
	for _, pc := range []creds{
		{"openai", cfg.Providers.OpenAI},
		{"anthropic", cfg.Providers.Anthropic},
		{"deepseek", cfg.Providers.DeepSeek},
		{"gemini", cfg.Providers.Gemini},
		{"openrouter", cfg.Providers.OpenRouter},
		{"ollama", cfg.Providers.Ollama},
		{"local", cfg.Providers.LocalInference},
	} {
		if pc.c.APIKey == "" && pc.c.BaseURL == "" {
			continue
		}
		provider, err := llm.CreateProvider(llm.ProviderConfig{
			Name:    pc.typeName,
			Type:    pc.typeName,
			APIKey:  pc.c.APIKey,
			BaseURL: pc.c.BaseURL,
		}, logger)
		if err != nil {
			logger.Warn("provider unavailable", zap.String("type", pc.typeName), zap.Error(err))
			continue
		}
		router.AddProvider(provider)
	}
	router.SetDefault(cfg.Providers.DefaultProvider)
	return router
}

func buildStore(cfg *config.Config) (session.Store, error) {
	if cfg.Store.RedisURL == "" {
		return session.NewMemoryStore(time.Minute), nil
	}
	return session.NewRedisStoreFromURL(cfg.Store.RedisURL)
}
