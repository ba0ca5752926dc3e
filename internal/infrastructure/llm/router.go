package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// Router resolves a canonical model string to exactly one adapter.
// Resolution is pure and deterministic: no network calls, no mutation of
// shared state. Registration and per-provider stats bookkeeping are the only
// mutable parts, and they're kept separate from the resolve path itself.
type Router struct {
	mu              sync.RWMutex
	providers       []Provider // insertion order == priority order
	byName          map[string]Provider
	breakers        map[string]*CircuitBreaker
	stats           map[string]*providerStats
	defaultProvider string // provider name used when nothing else matches
	logger          *zap.Logger
}

type providerStats struct {
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
}

// NewRouter creates an empty router. Providers are added with AddProvider
// in priority order: earlier additions win the known-models match (rule 3)
// when more than one adapter lists the same model.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		byName:   make(map[string]Provider),
		breakers: make(map[string]*CircuitBreaker),
		stats:    make(map[string]*providerStats),
		logger:   logger.With(zap.String("component", "llm-router")),
	}
}

// AddProvider registers p, giving it a fresh circuit breaker.
func (r *Router) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.byName[p.Name()] = p
	r.breakers[p.Name()] = NewCircuitBreaker(5, 30*time.Second)
	r.stats[p.Name()] = &providerStats{}
	r.logger.Info("provider registered", zap.String("name", p.Name()), zap.Strings("models", p.Models()))
}

// SetDefault designates the provider name used when no rule matches —
// typically the local-inference adapter.
func (r *Router) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultProvider = name
}

// Resolved is the outcome of resolving a model string: which provider to
// call, the exact model name to send upstream, and which HTTP surface.
type Resolved struct {
	Provider Provider
	Model    string
	Endpoint Endpoint
}

// Resolve implements the provider priority order. It never performs I/O;
// repeated calls with the same model return the same provider.
func (r *Router) Resolve(model string) (Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// 1. Explicit provider alias.
	if providerType, resolvedName, ok := ResolveAlias(model); ok {
		if p := r.findByType(providerType); p != nil {
			return Resolved{Provider: p, Model: resolvedName, Endpoint: EndpointFor(resolvedName)}, nil
		}
	}

	// 2. Explicit prefix, e.g. "openrouter/foo", "ollama/llama3".
	if idx := strings.IndexByte(model, '/'); idx > 0 {
		prefix, rest := model[:idx], model[idx+1:]
		if p, ok := r.byName[prefix]; ok {
			return Resolved{Provider: p, Model: rest, Endpoint: EndpointFor(rest)}, nil
		}
	}

	// 3. Exact match against a provider's known-models set.
	for _, p := range r.providers {
		if len(p.Models()) > 0 && p.SupportsModel(model) {
			return Resolved{Provider: p, Model: model, Endpoint: EndpointFor(model)}, nil
		}
	}

	// 4. Substring/prefix heuristic.
	switch {
	case strings.HasPrefix(model, "claude"):
		if p := r.findByType("anthropic"); p != nil {
			return Resolved{Provider: p, Model: model, Endpoint: EndpointFor(model)}, nil
		}
	case strings.HasPrefix(model, "gpt") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3"):
		if p := r.findByType("openai"); p != nil {
			return Resolved{Provider: p, Model: model, Endpoint: EndpointFor(model)}, nil
		}
	case strings.HasPrefix(model, "gemini"):
		if p := r.findByType("gemini"); p != nil {
			return Resolved{Provider: p, Model: model, Endpoint: EndpointFor(model)}, nil
		}
	case strings.HasPrefix(model, "deepseek"):
		if p := r.findByType("deepseek"); p != nil {
			return Resolved{Provider: p, Model: model, Endpoint: EndpointFor(model)}, nil
		}
	}

	// 5. Default.
	if r.defaultProvider != "" {
		if p, ok := r.byName[r.defaultProvider]; ok {
			return Resolved{Provider: p, Model: model, Endpoint: EndpointFor(model)}, nil
		}
	}

	return Resolved{}, gwerrors.NewNotFound("no provider configured for model " + model)
}

// findByType returns the first registered provider whose Name() matches the
// given provider-type string (providers are named after their type in this
// gateway: "openai", "anthropic", and so on).
func (r *Router) findByType(providerType string) Provider {
	if p, ok := r.byName[providerType]; ok {
		return p
	}
	return nil
}

// Breaker returns the circuit breaker guarding calls to the named provider.
func (r *Router) Breaker(providerName string) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[providerName]
}

// RecordCall updates per-provider stats after a call completes; ListProviders
// reports them.
func (r *Router) RecordCall(providerName string, latency time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[providerName]
	if !ok {
		return
	}
	s.TotalCalls++
	s.LastLatency = latency
	if failed {
		s.FailureCount++
	}
}

// Providers returns the registered providers in priority order — used by the
// Fallback Chain to build its ordered list.
func (r *Router) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// ProviderStatus describes one provider's current state and performance, the
// shape ListProviders returns. The /metrics handler does not include it.
type ProviderStatus struct {
	Name          string   `json:"name"`
	Models        []string `json:"models"`
	Available     bool     `json:"available"`
	TotalCalls    int64    `json:"total_calls"`
	FailureCount  int64    `json:"failure_count"`
	LastLatencyMs float64  `json:"last_latency_ms"`
	CircuitState  string   `json:"circuit_state"`
}

func (r *Router) ListProviders(ctx context.Context) []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ProviderStatus, 0, len(r.providers))
	for _, p := range r.providers {
		ps := ProviderStatus{Name: p.Name(), Models: p.Models(), Available: p.IsAvailable(ctx)}
		if s, ok := r.stats[p.Name()]; ok {
			ps.TotalCalls = s.TotalCalls
			ps.FailureCount = s.FailureCount
			ps.LastLatencyMs = float64(s.LastLatency) / float64(time.Millisecond)
		}
		if cb, ok := r.breakers[p.Name()]; ok {
			ps.CircuitState = cb.State().String()
		}
		result = append(result, ps)
	}
	return result
}
