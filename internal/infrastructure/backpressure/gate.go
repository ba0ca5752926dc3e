// Package backpressure implements process-wide admission control over
// in_flight requests and a periodically sampled memory estimate, using the
// same runtime.MemStats collector-loop idiom as monitoring.Monitor — memory
// is never computed per-request, only read from the last sample.
package backpressure

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// Config holds the gate's admission thresholds.
type Config struct {
	MaxConcurrent     int64
	MemoryThresholdMB float64
	SoftLimitPercent  float64 // e.g. 0.8
	QueueWarnDepth    int64
	SampleInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 50
	}
	if c.MemoryThresholdMB <= 0 {
		c.MemoryThresholdMB = 1024
	}
	if c.SoftLimitPercent <= 0 {
		c.SoftLimitPercent = 0.8
	}
	if c.QueueWarnDepth <= 0 {
		c.QueueWarnDepth = 20
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 5 * time.Second
	}
	return c
}

// Gate admits or rejects requests based on in-flight concurrency and the
// last sampled RSS estimate.
type Gate struct {
	cfg    Config
	logger *zap.Logger

	inFlight    int64
	queueDepth  int64
	memoryBytes uint64

	stopCh chan struct{}
}

// New creates a Gate and starts its background memory sampler.
func New(cfg Config, logger *zap.Logger) *Gate {
	cfg = cfg.withDefaults()
	g := &Gate{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "backpressure-gate")),
		stopCh: make(chan struct{}),
	}
	g.sample()
	go g.sampleLoop()
	return g
}

// Acquire admits one request, incrementing in_flight, or returns an
// Overloaded error with an advisory retry-after if any gate condition fails.
// Callers that receive a nil error MUST call Release when the request ends.
func (g *Gate) Acquire() error {
	depth := atomic.AddInt64(&g.queueDepth, 1)
	defer atomic.AddInt64(&g.queueDepth, -1)

	if depth > g.cfg.QueueWarnDepth {
		g.logger.Warn("queue depth crossed warning threshold",
			zap.Int64("queue_depth", depth), zap.Int64("warn_threshold", g.cfg.QueueWarnDepth))
	}

	if atomic.LoadInt64(&g.inFlight) >= g.cfg.MaxConcurrent {
		return gwerrors.NewOverloaded("too many in-flight requests", 2)
	}
	if g.MemoryMB() >= g.cfg.MemoryThresholdMB*g.cfg.SoftLimitPercent {
		return gwerrors.NewOverloaded("memory usage above soft limit", 5)
	}

	atomic.AddInt64(&g.inFlight, 1)
	return nil
}

// Release must be called exactly once for every Acquire that returned nil.
func (g *Gate) Release() {
	atomic.AddInt64(&g.inFlight, -1)
}

// InFlight returns the current in-flight request count.
func (g *Gate) InFlight() int64 { return atomic.LoadInt64(&g.inFlight) }

// MemoryMB returns the last sampled RSS estimate in megabytes.
func (g *Gate) MemoryMB() float64 {
	return float64(atomic.LoadUint64(&g.memoryBytes)) / 1e6
}

func (g *Gate) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	atomic.StoreUint64(&g.memoryBytes, ms.Alloc)
}

func (g *Gate) sampleLoop() {
	ticker := time.NewTicker(g.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.sample()
		case <-g.stopCh:
			return
		}
	}
}

// Stop terminates the background sampler.
func (g *Gate) Stop() {
	close(g.stopCh)
}

// Run is a context-bound variant of the sample loop, used when the caller
// prefers the gate's lifetime tied to a parent context rather than Stop().
func (g *Gate) Run(ctx context.Context) {
	<-ctx.Done()
	g.Stop()
}
