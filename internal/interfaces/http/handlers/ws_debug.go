package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/application"
	"github.com/riftgate/llmgateway/internal/domain/chat"
)

var debugUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSDebugHandler mirrors the SSE chat-completions stream over a WebSocket
// connection for operators using a WebSocket-based dashboard instead of
// curl — strictly additive, not a replacement for the SSE endpoint. Trimmed
// from a multi-client hub down to one connection per request since this
// channel has no fan-out requirement.
type WSDebugHandler struct {
	orchestrator *application.Orchestrator
	logger       *zap.Logger
}

func NewWSDebugHandler(orchestrator *application.Orchestrator, logger *zap.Logger) *WSDebugHandler {
	return &WSDebugHandler{orchestrator: orchestrator, logger: logger}
}

type wsChatRequest struct {
	Model     string         `json:"model"`
	Messages  []chat.Message `json:"messages"`
	SessionID string         `json:"session_id,omitempty"`
}

// Stream handles GET /v1/stream/ws: the client sends one JSON request
// frame, then receives one JSON frame per StreamChunk, terminated by a
// frame `{"done":true}`.
func (h *WSDebugHandler) Stream(c *gin.Context) {
	conn, err := debugUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var req wsChatRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	domainReq := chat.Request{Model: req.Model, Messages: req.Messages, SessionID: req.SessionID, Stream: true}
	stream, _, err := h.orchestrator.StreamOrchestrate(c.Request.Context(), domainReq)
	if err != nil {
		conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}

	for chunk := range stream {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	conn.WriteJSON(gin.H{"done": true})
}
