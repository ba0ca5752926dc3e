package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	domtool "github.com/riftgate/llmgateway/internal/domain/tool"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
	"github.com/riftgate/llmgateway/pkg/safego"
)

// Call is one requested tool invocation, as decoded from a provider's
// tool_calls entry.
type Call struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Outcome pairs a Call's ID back up with its Result, so callers can splice
// results into the transcript in the same order tool_calls were requested
// even though execution itself may run out of order.
type Outcome struct {
	CallID string
	Result *domtool.Result
}

// ExecutorConfig bounds the tool executor's concurrency and per-call budget.
type ExecutorConfig struct {
	MaxParallel      int           // default 4
	CallTimeout      time.Duration // default 60s
	FailureThreshold int           // breaker trips after this many consecutive failures, default 5
	RecoveryTimeout  time.Duration // default 30s
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	return c
}

// Executor runs validated tool calls against the registry, applying a
// per-call timeout and a circuit breaker keyed by tool name so one flaky
// proxied service can't starve concurrent calls to unrelated tools.
type Executor struct {
	registry domtool.Registry
	cfg      ExecutorConfig
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*llm.CircuitBreaker
}

// NewExecutor builds an Executor over registry.
func NewExecutor(registry domtool.Registry, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*llm.CircuitBreaker),
	}
}

func (e *Executor) breakerFor(name string) *llm.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[name]
	if !ok {
		b = llm.NewCircuitBreaker(e.cfg.FailureThreshold, e.cfg.RecoveryTimeout)
		e.breakers[name] = b
	}
	return b
}

// Execute runs a single named tool call, validating args against the
// registered schema first. Validation failures, circuit-open targets, and
// per-call timeouts all surface as a structured is_error:true Result rather
// than a Go error, matching the provider-facing tool_result contract — the
// orchestrator feeds this straight back into the transcript either way.
func (e *Executor) Execute(ctx context.Context, call Call) *domtool.Result {
	def, ok := e.registry.Get(call.Name)
	if !ok {
		return &domtool.Result{IsError: true, Content: fmt.Sprintf("unknown tool %q", call.Name)}
	}

	if err := e.registry.Validate(call.Name, call.Args); err != nil {
		return &domtool.Result{IsError: true, Content: fmt.Sprintf("schema violation: %v", err)}
	}

	breaker := e.breakerFor(call.Name)
	if !breaker.TryAcquire() {
		return &domtool.Result{IsError: true, Content: fmt.Sprintf("tool %s temporarily unavailable (circuit open)", call.Name)}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	result, err := def.Handler(callCtx, call.Args)
	if err != nil {
		breaker.RecordFailure()
		ge := gwerrors.NewToolExecution(err.Error(), err)
		e.logger.Warn("tool execution failed", zap.String("tool", call.Name), zap.Error(ge))
		return &domtool.Result{IsError: true, Content: ge.Message}
	}
	if callCtx.Err() != nil {
		breaker.RecordFailure()
		return &domtool.Result{IsError: true, Content: fmt.Sprintf("tool %s timed out after %s", call.Name, e.cfg.CallTimeout)}
	}

	if result.IsError {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
	return result
}

// ExecuteBatch runs calls concurrently, bounded by MaxParallel, and returns
// one Outcome per call in the SAME ORDER calls were given — the gateway
// splices tool_result messages back in request order regardless of which
// call actually finished first.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []Call) []Outcome {
	outcomes := make([]Outcome, len(calls))
	sem := make(chan struct{}, e.cfg.MaxParallel)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		i, call := i, call
		safego.Go(e.logger, fmt.Sprintf("tool-executor:%s", call.Name), func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result := e.Execute(ctx, call)
			outcomes[i] = Outcome{CallID: call.ID, Result: result}
		})
	}

	wg.Wait()
	return outcomes
}
