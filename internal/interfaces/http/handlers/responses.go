package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/application"
	"github.com/riftgate/llmgateway/internal/domain/chat"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// ResponsesHandler implements the OpenAI Responses-API-compatible
// POST /v1/responses endpoint. It's a thin shape adapter over the same
// Orchestrator the chat-completions endpoint uses — the Responses API's
// "input" field and the chat-completions "messages" field carry the same
// canonical transcript once translated, so both endpoints share one engine.
type ResponsesHandler struct {
	orchestrator *application.Orchestrator
	logger       *zap.Logger
}

func NewResponsesHandler(orchestrator *application.Orchestrator, logger *zap.Logger) *ResponsesHandler {
	return &ResponsesHandler{orchestrator: orchestrator, logger: logger}
}

// responsesRequest mirrors the subset of OpenAI's Responses API shape this
// gateway supports: a flat "input" string or a list of role/content items.
type responsesRequest struct {
	Model     string          `json:"model" binding:"required"`
	Input     json.RawMessage `json:"input" binding:"required"`
	SessionID string          `json:"session_id,omitempty"`
	Tools     []chat.Tool     `json:"tools,omitempty"`
}

type responsesInputItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesResponse struct {
	ID         string             `json:"id"`
	Object     string             `json:"object"`
	Model      string             `json:"model"`
	Status     string             `json:"status"`
	OutputText string             `json:"output_text"`
	Output     []chat.Message     `json:"output"`
	Usage      chat.Usage         `json:"usage"`
}

func (r responsesRequest) messages() ([]chat.Message, error) {
	var asString string
	if err := json.Unmarshal(r.Input, &asString); err == nil {
		return []chat.Message{{Role: chat.RoleUser, Content: asString}}, nil
	}

	var asItems []responsesInputItem
	if err := json.Unmarshal(r.Input, &asItems); err != nil {
		return nil, fmt.Errorf("input must be a string or a list of {role,content} items: %w", err)
	}
	msgs := make([]chat.Message, 0, len(asItems))
	for _, item := range asItems {
		role := chat.Role(item.Role)
		if role == "" {
			role = chat.RoleUser
		}
		msgs = append(msgs, chat.Message{Role: role, Content: item.Content})
	}
	return msgs, nil
}

// CreateResponse handles POST /v1/responses.
func (h *ResponsesHandler) CreateResponse(c *gin.Context) {
	var body responsesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, gwerrors.NewValidation(err.Error()))
		return
	}

	messages, err := body.messages()
	if err != nil {
		writeError(c, gwerrors.NewValidation(err.Error()))
		return
	}
	if len(messages) == 0 {
		writeError(c, gwerrors.NewValidation("input must not be empty"))
		return
	}

	req := chat.Request{
		Model:     body.Model,
		Messages:  messages,
		Tools:     body.Tools,
		SessionID: body.SessionID,
	}

	result, err := h.orchestrator.Orchestrate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	outputText := ""
	if len(result.Response.Choices) > 0 {
		outputText = result.Response.Choices[0].Message.Content
	}

	c.JSON(http.StatusOK, responsesResponse{
		ID:         result.Response.ID,
		Object:     "response",
		Model:      result.Response.Model,
		Status:     "completed",
		OutputText: outputText,
		Output:     result.Transcript,
		Usage:      result.Response.Usage,
	})
}
