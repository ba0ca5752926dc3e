package anthropic

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

// toolCallAccumulator tracks a tool_use block being streamed.
type toolCallAccumulator struct {
	ID          string
	Name        string
	ArgsBuilder strings.Builder
}

// ParseSSEStream reads Anthropic's event-based SSE format and emits canonical
// chunks onto out as they arrive.
//
// Anthropic SSE events:
//   - message_start         → initial message metadata
//   - content_block_start   → new content block (text, tool_use, thinking)
//   - content_block_delta   → incremental update to current block
//   - content_block_stop    → current block finished
//   - message_delta         → stop_reason + final usage
//   - message_stop          → stream complete
func ParseSSEStream(ctx context.Context, reader io.Reader, out chan<- chat.StreamChunk, logger *zap.Logger) error {
	idleTimeout := 60 * time.Second
	tReader := &timedReader{r: reader, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var contentLen int
	toolCalls := make(map[int]*toolCallAccumulator) // index → accumulator
	var currentEventType string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		// Anthropic SSE: "event: <type>" followed by "data: <json>"
		if strings.HasPrefix(line, "event: ") {
			currentEventType = strings.TrimPrefix(line, "event: ")
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		switch currentEventType {
		case "content_block_start":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("skip unparseable content_block_start", zap.Error(err))
				continue
			}
			if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
				toolCalls[evt.Index] = &toolCallAccumulator{
					ID:   evt.ContentBlock.ID,
					Name: evt.ContentBlock.Name,
				}
			}

		case "content_block_delta":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("skip unparseable content_block_delta", zap.Error(err))
				continue
			}
			if evt.Delta == nil {
				continue
			}

			switch evt.Delta.Type {
			case "text_delta":
				if evt.Delta.Text != "" {
					contentLen += len(evt.Delta.Text)
					out <- chat.StreamChunk{DeltaContent: evt.Delta.Text}
				}
			case "input_json_delta":
				if acc, ok := toolCalls[evt.Index]; ok {
					acc.ArgsBuilder.WriteString(evt.Delta.PartialJSON)
				}
			case "thinking_delta":
				// Extended-thinking content is not surfaced to the orchestrator.
			}

		case "content_block_stop":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				continue
			}
			if acc, ok := toolCalls[evt.Index]; ok {
				tc := decodeToolCall(acc, logger)
				if tc != nil {
					out <- chat.StreamChunk{DeltaToolCall: tc}
				}
			}

		case "message_delta":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("skip unparseable message_delta", zap.Error(err))
				continue
			}
			var usage *chat.Usage
			if evt.Usage != nil && evt.Usage.Total() > 0 {
				usage = &chat.Usage{
					PromptTokens:     evt.Usage.InputTokens,
					CompletionTokens: evt.Usage.OutputTokens,
					TotalTokens:      evt.Usage.Total(),
				}
			}
			if evt.Delta != nil && evt.Delta.StopReason != "" {
				out <- chat.StreamChunk{FinishReason: stopReasonToFinish(evt.Delta.StopReason), Usage: usage}
			}

		case "message_stop":
			// Stream complete; nothing further to emit.

		case "ping", "message_start":
			// Heartbeat / metadata-only events, no canonical chunk to emit.

		default:
			logger.Debug("unknown Anthropic SSE event type", zap.String("type", currentEventType))
		}

		currentEventType = "" // reset after processing
	}

	if err := scanner.Err(); err != nil {
		if isIdleTimeoutErr(err) {
			logger.Warn("SSE stream idle timeout — Anthropic API stalled",
				zap.Duration("idle_timeout", idleTimeout))
			if contentLen == 0 && len(toolCalls) == 0 {
				return fmt.Errorf("SSE stream stalled: no data for %v", idleTimeout)
			}
			return nil
		}
		return fmt.Errorf("SSE scan error: %w", err)
	}

	return nil
}

func decodeToolCall(acc *toolCallAccumulator, logger *zap.Logger) *chat.ToolCall {
	var args map[string]interface{}
	if argsStr := acc.ArgsBuilder.String(); argsStr != "" {
		if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
			logger.Warn("failed to parse Anthropic tool call args",
				zap.String("tool", acc.Name), zap.Error(err))
			return nil
		}
	}
	return &chat.ToolCall{ID: acc.ID, Name: acc.Name, Arguments: args}
}

// --- SSE idle timeout support (same pattern as OpenAI) ---

var errIdleTimeout = fmt.Errorf("SSE read idle timeout")

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

func isIdleTimeoutErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SSE read idle timeout")
}
