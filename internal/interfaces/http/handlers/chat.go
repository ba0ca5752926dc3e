package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/application"
	"github.com/riftgate/llmgateway/internal/domain/chat"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// ChatHandler implements the OpenAI-compatible /v1/chat/completions
// endpoint, delegating the actual request/provider/tool-loop algorithm to
// the Orchestrator. It is a thin HTTP adapter over a multi-provider
// orchestrated path, not a single-backend proxy.
type ChatHandler struct {
	orchestrator *application.Orchestrator
	logger       *zap.Logger
}

func NewChatHandler(orchestrator *application.Orchestrator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, logger: logger}
}

// chatCompletionRequest mirrors the OpenAI request body this gateway
// accepts; GenParams fields bind directly since json tags match upstream's.
type chatCompletionRequest struct {
	Model       string        `json:"model" binding:"required"`
	Messages    []chat.Message `json:"messages" binding:"required"`
	Tools       []chat.Tool   `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

func (r chatCompletionRequest) toDomain() chat.Request {
	return chat.Request{
		Model:      r.Model,
		Messages:   r.Messages,
		Tools:      r.Tools,
		ToolChoice: r.ToolChoice,
		Stream:     r.Stream,
		SessionID:  r.SessionID,
		Params: chat.GenParams{
			Temperature: r.Temperature,
			MaxTokens:   r.MaxTokens,
			TopP:        r.TopP,
		},
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *ChatHandler) ChatCompletions(c *gin.Context) {
	var body chatCompletionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, gwerrors.NewValidation(err.Error()))
		return
	}
	if len(body.Messages) == 0 {
		writeError(c, gwerrors.NewValidation("messages array must not be empty"))
		return
	}

	req := body.toDomain()

	if req.Stream {
		h.handleStream(c, req)
		return
	}
	h.handleUnary(c, req)
}

func (h *ChatHandler) handleUnary(c *gin.Context, req chat.Request) {
	result, err := h.orchestrator.Orchestrate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Response)
}

// handleStream streams the final, post-tool-loop provider call as SSE
// frames (`data: <json>\n\n`), terminated by a literal `data: [DONE]\n\n`.
// Client disconnect cancels the request context, which the orchestrator's
// stream goroutine observes and uses to abort the upstream call.
func (h *ChatHandler) handleStream(c *gin.Context, req chat.Request) {
	stream, _, err := h.orchestrator.StreamOrchestrate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-stream:
			if !ok {
				io.WriteString(w, "data: [DONE]\n\n")
				return false
			}
			writeSSEChunk(w, chunk)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeSSEChunk(w io.Writer, chunk chat.StreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
