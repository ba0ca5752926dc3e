package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domtool "github.com/riftgate/llmgateway/internal/domain/tool"
	infratool "github.com/riftgate/llmgateway/internal/infrastructure/tool"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// ToolsHandler implements the /v1/tools and /v1/tools/execute endpoints
// over the tool registry and executor.
type ToolsHandler struct {
	registry domtool.Registry
	executor *infratool.Executor
	logger   *zap.Logger
}

func NewToolsHandler(registry domtool.Registry, executor *infratool.Executor, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{registry: registry, executor: executor, logger: logger}
}

// toolDefinitionView is the HTTP-facing derived view of a registry
// Definition — never constructed independently of it.
type toolDefinitionView struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ListTools handles GET /v1/tools.
func (h *ToolsHandler) ListTools(c *gin.Context) {
	defs := h.registry.List()
	views := make([]toolDefinitionView, 0, len(defs))
	for _, d := range defs {
		views = append(views, toolDefinitionView{Name: d.Name, Description: d.Description, Parameters: d.Schema})
	}
	c.JSON(http.StatusOK, gin.H{"tools": views})
}

type executeToolRequest struct {
	Name      string                 `json:"name" binding:"required"`
	Arguments map[string]interface{} `json:"arguments"`
}

type executeToolResponse struct {
	Name    string `json:"name"`
	Result  string `json:"result"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ExecuteTool handles POST /v1/tools/execute.
func (h *ToolsHandler) ExecuteTool(c *gin.Context) {
	var body executeToolRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, gwerrors.NewValidation(err.Error()))
		return
	}

	if !h.registry.Has(body.Name) {
		writeError(c, gwerrors.NewNotFound("unknown tool "+body.Name))
		return
	}
	if err := h.registry.Validate(body.Name, body.Arguments); err != nil {
		writeError(c, gwerrors.NewValidation("invalid arguments: "+err.Error()))
		return
	}

	result := h.executor.Execute(c.Request.Context(), infratool.Call{Name: body.Name, Args: body.Arguments})
	c.JSON(http.StatusOK, executeToolResponse{
		Name:    body.Name,
		Result:  result.Content,
		Success: !result.IsError,
		Error:   errOrEmpty(result),
	})
}

func errOrEmpty(r *domtool.Result) string {
	if r.IsError {
		return r.Content
	}
	return ""
}
