package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/domain/session"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// SessionsHandler implements the /v1/sessions endpoints over the narrow
// session.Store interface — it never knows whether that's Redis or memory
// backed.
type SessionsHandler struct {
	store      session.Store
	defaultTTL time.Duration
	logger     *zap.Logger
}

func NewSessionsHandler(store session.Store, defaultTTL time.Duration, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{store: store, defaultTTL: defaultTTL, logger: logger}
}

type createSessionRequest struct {
	TTLSeconds int            `json:"ttl_seconds,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// CreateSession handles POST /v1/sessions.
func (h *SessionsHandler) CreateSession(c *gin.Context) {
	var body createSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		writeError(c, gwerrors.NewValidation(err.Error()))
		return
	}

	ttl := h.defaultTTL
	if body.TTLSeconds > 0 {
		ttl = time.Duration(body.TTLSeconds) * time.Second
	}

	sess, err := h.store.Create(c.Request.Context(), ttl, body.Context)
	if err != nil {
		writeError(c, gwerrors.NewInternal("create session", err))
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetSession handles GET /v1/sessions/{id}.
func (h *SessionsHandler) GetSession(c *gin.Context) {
	id := c.Param("id")
	sess, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, gwerrors.NewInternal("load session", err))
		return
	}
	if sess == nil {
		writeError(c, gwerrors.NewNotFound("session not found"))
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteSession handles DELETE /v1/sessions/{id}.
func (h *SessionsHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	existed, err := h.store.Delete(c.Request.Context(), id)
	if err != nil {
		writeError(c, gwerrors.NewInternal("delete session", err))
		return
	}
	if !existed {
		writeError(c, gwerrors.NewNotFound("session not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
