package gemini

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

// ParseSSEStream reads Gemini's streaming response format, emitting
// canonical chunks onto out as they arrive. Gemini uses SSE-like
// "data: {...}" lines similar to OpenAI, where each chunk is a full
// GenerateContentResponse.
func ParseSSEStream(ctx context.Context, reader io.Reader, out chan<- chat.StreamChunk, logger *zap.Logger) error {
	idleTimeout := 60 * time.Second
	tReader := &timedReader{r: reader, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var contentLen, toolCallCount int

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

		var resp Response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			logger.Debug("skip unparseable Gemini SSE chunk", zap.Error(err))
			continue
		}

		if len(resp.Candidates) == 0 {
			continue
		}

		candidate := resp.Candidates[0]

		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				contentLen += len(part.Text)
				out <- chat.StreamChunk{DeltaContent: part.Text}
			}
			if part.FunctionCall != nil {
				tc := chat.ToolCall{
					ID:        fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, toolCallCount),
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				}
				toolCallCount++
				out <- chat.StreamChunk{DeltaToolCall: &tc}
			}
		}

		if candidate.FinishReason != "" {
			var usage *chat.Usage
			if resp.UsageMetadata != nil && resp.UsageMetadata.Total() > 0 {
				usage = &chat.Usage{
					PromptTokens:     resp.UsageMetadata.PromptTokenCount,
					CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      resp.UsageMetadata.Total(),
				}
			}
			out <- chat.StreamChunk{FinishReason: finishReasonOf(candidate.FinishReason), Usage: usage}
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if isIdleTimeoutErr(err) {
			logger.Warn("SSE stream idle timeout — Gemini API stalled",
				zap.Duration("idle_timeout", idleTimeout))
			if contentLen == 0 && toolCallCount == 0 {
				return fmt.Errorf("SSE stream stalled: no data for %v", idleTimeout)
			}
			return nil
		}
		return fmt.Errorf("SSE scan error: %w", err)
	}

	return nil
}

// --- SSE idle timeout support ---

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
