// Package fallback implements an ordered provider list consulted only when
// the primary call fails with one of three retryable kinds. It is kept
// separate from model resolution so the Router itself stays a pure lookup.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/domain/chat"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// Chain tries an ordered list of providers for generic chat capability,
// skipping any whose breaker is open and recording the reason for skips and
// failures so the aggregated error is useful to an operator.
type Chain struct {
	router *llm.Router
	logger *zap.Logger
}

func New(router *llm.Router, logger *zap.Logger) *Chain {
	return &Chain{router: router, logger: logger.With(zap.String("component", "fallback-chain"))}
}

// causeEntry is one provider's outcome, kept for the aggregated error.
type causeEntry struct {
	provider string
	reason   string
}

// Try calls req against the registered providers in priority order,
// starting from (and excluding) skipProvider — the one the orchestrator
// already attempted directly. It only continues past a failure when that
// failure is CircuitOpenError, UpstreamError, or TimeoutError;
// AuthError/InvalidRequestError abort the chain immediately since retrying
// another provider can't fix a malformed or unauthorized request.
func (c *Chain) Try(ctx context.Context, req chat.Request, skipProvider string) (*chat.Response, error) {
	var causes []causeEntry

	for _, p := range c.router.Providers() {
		if p.Name() == skipProvider {
			continue
		}
		if !p.SupportsModel(req.Model) && !strings.EqualFold(p.Name(), "local") {
			continue
		}
		breaker := c.router.Breaker(p.Name())
		if breaker != nil && !breaker.TryAcquire() {
			causes = append(causes, causeEntry{p.Name(), "circuit open"})
			continue
		}

		start := time.Now()
		resp, err := p.Complete(ctx, req)
		latency := time.Since(start)
		c.router.RecordCall(p.Name(), latency, err != nil)

		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			c.logger.Info("fallback succeeded", zap.String("provider", p.Name()), zap.Duration("latency", latency))
			return resp, nil
		}

		if breaker != nil {
			breaker.RecordFailure()
		}
		causes = append(causes, causeEntry{p.Name(), err.Error()})

		if !gwerrors.TriggersFallback(err) {
			c.logger.Warn("non-retryable error aborts fallback chain",
				zap.String("provider", p.Name()), zap.Error(err))
			return nil, err
		}
		c.logger.Warn("provider failed, trying next in chain",
			zap.String("provider", p.Name()), zap.Error(err))
	}

	return nil, aggregate(causes)
}

func aggregate(causes []causeEntry) error {
	if len(causes) == 0 {
		return gwerrors.NewUpstream("no fallback provider available", nil)
	}
	parts := make([]string, 0, len(causes))
	for _, c := range causes {
		parts = append(parts, fmt.Sprintf("%s: %s", c.provider, c.reason))
	}
	return gwerrors.NewUpstream("all providers in fallback chain failed: "+strings.Join(parts, "; "), nil)
}
