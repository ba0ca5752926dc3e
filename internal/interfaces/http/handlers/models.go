package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riftgate/llmgateway/internal/infrastructure/llm"
)

// ModelsHandler implements GET /v1/models, aggregating the live Models() of
// every configured adapter rather than a static table, so operators only
// see the providers they've actually configured API keys for.
type ModelsHandler struct {
	router *llm.Router
}

func NewModelsHandler(router *llm.Router) *ModelsHandler {
	return &ModelsHandler{router: router}
}

type modelView struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ListModels handles GET /v1/models.
func (h *ModelsHandler) ListModels(c *gin.Context) {
	now := time.Now().Unix()
	var data []modelView
	for _, p := range h.router.Providers() {
		for _, model := range p.Models() {
			data = append(data, modelView{ID: model, Object: "model", Created: now, OwnedBy: p.Name()})
		}
	}
	if data == nil {
		data = []modelView{}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
