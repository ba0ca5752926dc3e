package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/domain/chat"
)

// ToolCallAccumulator accumulates tool call fragments across SSE chunks.
type ToolCallAccumulator struct {
	ID          string
	Name        string
	ArgsBuilder strings.Builder
}

// ParseSSEStream reads a text/event-stream response, emitting canonical
// chunks onto out as they arrive.
//
// Three-tier termination protection:
//
//	L1: Break on finish_reason (don't wait for [DONE] — some APIs never send it)
//	L2: 60s read idle timeout (detect stale connections)
//	L3: Per-call context timeout, enforced by the caller's ctx
func ParseSSEStream(ctx context.Context, reader io.Reader, out chan<- chat.StreamChunk, logger *zap.Logger) error {
	idleTimeout := 60 * time.Second
	tReader := &timedReader{r: reader, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

	toolCallMap := make(map[int]*ToolCallAccumulator)
	var contentLen int
	var finishReason string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk StreamChunkData
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Debug("skip unparseable SSE chunk", zap.Error(err))
			continue
		}

		var usage *chat.Usage
		if chunk.Usage != nil && chunk.Usage.Total() > 0 {
			usage = &chat.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.Total(),
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := choice.Delta

		if choice.FinishReason != nil {
			finishReason = *choice.FinishReason
		}

		if delta.Content != "" {
			contentLen += len(delta.Content)
			out <- chat.StreamChunk{DeltaContent: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			if _, ok := toolCallMap[idx]; !ok {
				toolCallMap[idx] = &ToolCallAccumulator{ID: tc.ID, Name: tc.Function.Name}
			}
			acc := toolCallMap[idx]
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Name = tc.Function.Name
			}
			acc.ArgsBuilder.WriteString(tc.Function.Arguments)
		}

		// L1: finish_reason received — flush accumulated tool calls and break.
		if finishReason != "" {
			for i := 0; i < len(toolCallMap); i++ {
				if tc := decodeToolCall(toolCallMap[i], logger); tc != nil {
					out <- chat.StreamChunk{DeltaToolCall: tc}
				}
			}
			out <- chat.StreamChunk{FinishReason: finishReasonOf(finishReason), Usage: usage}
			logger.Debug("SSE stream: finish_reason received, breaking",
				zap.String("finish_reason", finishReason))
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if IsIdleTimeoutErr(err) {
			logger.Warn("SSE stream idle timeout — API stalled",
				zap.Duration("idle_timeout", idleTimeout))
			if contentLen == 0 && len(toolCallMap) == 0 {
				return fmt.Errorf("SSE stream stalled: no data for %v", idleTimeout)
			}
			return nil
		}
		return fmt.Errorf("SSE scan error: %w", err)
	}

	return nil
}

func decodeToolCall(acc *ToolCallAccumulator, logger *zap.Logger) *chat.ToolCall {
	if acc == nil {
		return nil
	}
	var args map[string]interface{}
	if argsStr := acc.ArgsBuilder.String(); argsStr != "" {
		if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
			logger.Warn("failed to parse streamed tool call args", zap.String("tool", acc.Name), zap.Error(err))
			return nil
		}
	}
	return &chat.ToolCall{ID: acc.ID, Name: acc.Name, Arguments: args}
}

// --- SSE idle timeout support ---

var errIdleTimeout = fmt.Errorf("SSE read idle timeout")

// timedReader wraps an io.Reader and applies a per-Read deadline.
type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

// IsIdleTimeoutErr checks if an error is our SSE idle timeout sentinel.
func IsIdleTimeoutErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SSE read idle timeout")
}
