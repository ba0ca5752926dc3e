// Package application wires the gateway's domain and infrastructure pieces
// into the request-handling algorithm that drives chat completions and
// their streaming variant: the same "try primary, fall back on retryable
// error, log every attempt" shape generalized into a session-aware,
// tool-dispatching loop instead of a model-cooldown list.
package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/domain/chat"
	"github.com/riftgate/llmgateway/internal/domain/session"
	"github.com/riftgate/llmgateway/internal/infrastructure/fallback"
	"github.com/riftgate/llmgateway/internal/infrastructure/llm"
	infratool "github.com/riftgate/llmgateway/internal/infrastructure/tool"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// DefaultMaxToolIterations bounds the tool-use loop.
const DefaultMaxToolIterations = 8

// DefaultSessionTTL is applied when a session is created implicitly by the
// orchestrator (the HTTP layer may override this per-request).
const DefaultSessionTTL = 30 * time.Minute

// OrchestratorConfig bounds the orchestrator's behavior.
type OrchestratorConfig struct {
	MaxToolIterations int
	SessionTTL        time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = DefaultMaxToolIterations
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	return c
}

// Orchestrator implements the central request algorithm: resolve a
// provider, call it, dispatch any requested tools, repeat until the model
// stops asking for tools or the iteration budget is exhausted, then persist
// the transcript if the request carries a session id.
type Orchestrator struct {
	router   *llm.Router
	chain    *fallback.Chain
	executor *infratool.Executor
	store    session.Store
	cfg      OrchestratorConfig
	logger   *zap.Logger
}

// NewOrchestrator builds an Orchestrator. store may be nil if the deployment
// runs without session persistence — requests without a session_id never
// touch it anyway.
func NewOrchestrator(router *llm.Router, chain *fallback.Chain, executor *infratool.Executor, store session.Store, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		router:   router,
		chain:    chain,
		executor: executor,
		store:    store,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Result is what Orchestrate hands back to the HTTP layer: the last
// provider response plus the full working transcript (needed when the
// caller wants to see tool-call messages that aren't part of resp.Choices).
type Result struct {
	Response   *chat.Response
	Transcript []chat.Message
}

// Orchestrate runs the request/provider/tool loop to completion for a
// unary (non-streaming) request.
func (o *Orchestrator) Orchestrate(ctx context.Context, req chat.Request) (*Result, error) {
	sess, working, err := o.loadWorking(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp *chat.Response
	iterations := 0

	for iterations < o.cfg.MaxToolIterations {
		resolved, err := o.router.Resolve(req.Model)
		if err != nil {
			return nil, err
		}

		callResp, err := o.callProvider(ctx, resolved, req.WithMessages(working).WithModel(resolved.Model))
		if err != nil {
			return nil, err
		}
		callResp.Model = resolved.Model
		resp = callResp

		if len(resp.Choices) == 0 {
			return nil, gwerrors.NewUpstream("provider returned no choices", nil)
		}
		choice := resp.Choices[0]
		working = append(working, choice.Message)

		if len(choice.Message.ToolCalls) == 0 || choice.FinishReason != chat.FinishToolCalls {
			break
		}

		working = o.dispatchTools(ctx, choice.Message.ToolCalls, working)
		iterations++
	}

	if iterations >= o.cfg.MaxToolIterations && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].FinishReason == chat.FinishToolCalls {
		resp.Choices[0].FinishReason = chat.FinishLength
		o.logger.Warn("tool iteration budget exhausted", zap.Int("max_iterations", o.cfg.MaxToolIterations))
	}

	if sess != nil {
		sess.Messages = working
		if err := o.store.Save(ctx, sess, o.cfg.SessionTTL); err != nil {
			o.logger.Error("failed to persist session", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	return &Result{Response: resp, Transcript: working}, nil
}

// StreamOrchestrate runs the same loop, but each round is fetched through
// the provider's Stream endpoint rather than Complete. A round that asks
// for tools is drained and accumulated internally — consumed eagerly,
// nothing is forwarded to the caller — before tools are dispatched and the
// loop continues. The round that turns out not to ask for tools is the
// final call: its already-drained chunks are replayed on the returned
// channel, so the upstream is never called a second time for the answer
// the client actually receives, and that same call went through
// callProviderStream's breaker/fallback handling like any other.
func (o *Orchestrator) StreamOrchestrate(ctx context.Context, req chat.Request) (<-chan chat.StreamChunk, []chat.Message, error) {
	sess, working, err := o.loadWorking(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	var chunks []chat.StreamChunk
	var msg chat.Message
	iterations := 0

	for iterations < o.cfg.MaxToolIterations {
		resolved, err := o.router.Resolve(req.Model)
		if err != nil {
			return nil, nil, err
		}

		callChunks, callMsg, err := o.callProviderStream(ctx, resolved, req.WithMessages(working).WithModel(resolved.Model))
		if err != nil {
			return nil, nil, err
		}
		chunks, msg = callChunks, callMsg
		working = append(working, msg)

		if len(msg.ToolCalls) == 0 || finishReasonOf(chunks) != chat.FinishToolCalls {
			break
		}

		working = o.dispatchTools(ctx, msg.ToolCalls, working)
		iterations++
	}

	if iterations >= o.cfg.MaxToolIterations && len(msg.ToolCalls) > 0 && finishReasonOf(chunks) == chat.FinishToolCalls {
		o.logger.Warn("tool iteration budget exhausted", zap.Int("max_iterations", o.cfg.MaxToolIterations))
		for i := range chunks {
			if chunks[i].FinishReason != "" {
				chunks[i].FinishReason = chat.FinishLength
			}
		}
	}

	if sess != nil {
		sess.Messages = working
		if err := o.store.Save(ctx, sess, o.cfg.SessionTTL); err != nil {
			o.logger.Error("failed to persist session", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	out := make(chan chat.StreamChunk, len(chunks))
	for _, c := range chunks {
		out <- c
	}
	close(out)

	return out, working, nil
}

// loadWorking resolves the session (if any) and builds the working
// transcript: session history, then the request's own messages.
func (o *Orchestrator) loadWorking(ctx context.Context, req chat.Request) (*session.Session, []chat.Message, error) {
	if req.SessionID == "" {
		return nil, append([]chat.Message{}, req.Messages...), nil
	}
	if o.store == nil {
		return nil, append([]chat.Message{}, req.Messages...), nil
	}

	sess, err := o.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, nil, gwerrors.NewInternal("load session", err)
	}
	if sess == nil {
		sess, err = o.store.Create(ctx, o.cfg.SessionTTL, nil)
		if err != nil {
			return nil, nil, gwerrors.NewInternal("create session", err)
		}
		sess.ID = req.SessionID
	}

	working := append(append([]chat.Message{}, sess.Messages...), req.Messages...)
	return sess, working, nil
}

// callProvider resolves breaker state before calling the primary provider
// and falls back through the chain on a breaker-open or retryable failure.
func (o *Orchestrator) callProvider(ctx context.Context, resolved llm.Resolved, req chat.Request) (*chat.Response, error) {
	breaker := o.router.Breaker(resolved.Provider.Name())

	if breaker != nil && !breaker.TryAcquire() {
		o.logger.Warn("breaker open, trying fallback chain", zap.String("provider", resolved.Provider.Name()))
		return o.chain.Try(ctx, req, resolved.Provider.Name())
	}

	start := time.Now()
	resp, err := resolved.Provider.Complete(ctx, req)
	latency := time.Since(start)
	o.router.RecordCall(resolved.Provider.Name(), latency, err != nil)

	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		if gwerrors.TriggersFallback(err) {
			o.logger.Warn("primary provider failed, trying fallback chain",
				zap.String("provider", resolved.Provider.Name()), zap.Error(err))
			return o.chain.Try(ctx, req, resolved.Provider.Name())
		}
		return nil, err
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	return resp, nil
}

// callProviderStream mirrors callProvider's breaker-check/fallback-chain
// handling for the streaming path: the fallback chain only knows how to
// Complete, so a fallback response is normalized into the same
// (chunks, message) shape a genuine stream would have produced.
func (o *Orchestrator) callProviderStream(ctx context.Context, resolved llm.Resolved, req chat.Request) ([]chat.StreamChunk, chat.Message, error) {
	breaker := o.router.Breaker(resolved.Provider.Name())

	if breaker != nil && !breaker.TryAcquire() {
		o.logger.Warn("breaker open, trying fallback chain", zap.String("provider", resolved.Provider.Name()))
		resp, err := o.chain.Try(ctx, req, resolved.Provider.Name())
		if err != nil {
			return nil, chat.Message{}, err
		}
		return chunksFromResponse(resp), messageFromResponse(resp), nil
	}

	start := time.Now()
	var chunks []chat.StreamChunk
	var msg chat.Message
	stream, err := resolved.Provider.Stream(ctx, req)
	if err == nil {
		chunks, msg, err = drainStream(stream)
	}
	latency := time.Since(start)
	o.router.RecordCall(resolved.Provider.Name(), latency, err != nil)

	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		if gwerrors.TriggersFallback(err) {
			o.logger.Warn("primary provider failed, trying fallback chain",
				zap.String("provider", resolved.Provider.Name()), zap.Error(err))
			resp, ferr := o.chain.Try(ctx, req, resolved.Provider.Name())
			if ferr != nil {
				return nil, chat.Message{}, ferr
			}
			return chunksFromResponse(resp), messageFromResponse(resp), nil
		}
		return nil, chat.Message{}, err
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	return chunks, msg, nil
}

// drainStream consumes a provider's stream channel to completion and
// accumulates it into a single assistant message, since tool-call
// fragments must be fully assembled before dispatchTools can run and a
// round with no tool calls needs its full content before it's known to be
// the final answer.
func drainStream(stream <-chan chat.StreamChunk) ([]chat.StreamChunk, chat.Message, error) {
	var chunks []chat.StreamChunk
	msg := chat.Message{Role: chat.RoleAssistant}

	for chunk := range stream {
		chunks = append(chunks, chunk)
		msg.Content += chunk.DeltaContent
		if chunk.DeltaToolCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, *chunk.DeltaToolCall)
		}
	}

	if len(chunks) == 0 {
		return nil, chat.Message{}, gwerrors.NewUpstream("provider returned an empty stream", nil)
	}

	return chunks, msg, nil
}

// finishReasonOf scans backward for the last non-empty finish reason a
// drained stream carried, since providers attach it to the terminal chunk.
func finishReasonOf(chunks []chat.StreamChunk) chat.FinishReason {
	for i := len(chunks) - 1; i >= 0; i-- {
		if chunks[i].FinishReason != "" {
			return chunks[i].FinishReason
		}
	}
	return ""
}

// messageFromResponse adapts a Complete-shaped fallback response into the
// message half of the streaming path's accumulator shape.
func messageFromResponse(resp *chat.Response) chat.Message {
	if resp == nil || len(resp.Choices) == 0 {
		return chat.Message{Role: chat.RoleAssistant}
	}
	return resp.Choices[0].Message
}

// chunksFromResponse adapts a Complete-shaped fallback response into a
// single synthetic chunk, so a fallback-served round replays through the
// client's stream exactly like a genuine one.
func chunksFromResponse(resp *chat.Response) []chat.StreamChunk {
	if resp == nil || len(resp.Choices) == 0 {
		return []chat.StreamChunk{{FinishReason: chat.FinishStop}}
	}
	choice := resp.Choices[0]
	return []chat.StreamChunk{{
		DeltaContent: choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        &resp.Usage,
	}}
}

// dispatchTools runs the requested tool calls and appends their results to
// working as tool-role messages, preserving the exact order tool calls were
// made. A failing tool (is_error:true) is still spliced in as a normal tool
// message so the model can attempt recovery.
func (o *Orchestrator) dispatchTools(ctx context.Context, toolCalls []chat.ToolCall, working []chat.Message) []chat.Message {
	calls := make([]infratool.Call, len(toolCalls))
	for i, tc := range toolCalls {
		calls[i] = infratool.Call{ID: tc.ID, Name: tc.Name, Args: tc.Arguments}
	}

	outcomes := o.executor.ExecuteBatch(ctx, calls)
	for _, oc := range outcomes {
		working = append(working, chat.Message{
			Role:       chat.RoleTool,
			Content:    oc.Result.Content,
			ToolCallID: oc.CallID,
		})
	}
	return working
}
