package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"matchengine/internal/model"
)

// EmbeddingAPI stores externally computed vectors.
type EmbeddingAPI interface {
	UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem, dimensions int) *model.EmbeddingBatchResponse
}

// EmbeddingHandler handles embedding-related HTTP requests
type EmbeddingHandler struct {
	svc        EmbeddingAPI
	dimensions int
}

// NewEmbeddingHandler creates a new embedding handler. A non-positive
// dimensions disables the length check.
func NewEmbeddingHandler(svc EmbeddingAPI, dimensions int) *EmbeddingHandler {
	return &EmbeddingHandler{svc: svc, dimensions: dimensions}
}

// BatchUpdate handles POST /api/v1/embeddings/batch
func (h *EmbeddingHandler) BatchUpdate(c *gin.Context) {
	var req model.EmbeddingBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if len(req.Embeddings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No embeddings provided"})
		return
	}

	response := h.svc.UpdateEmbeddings(c.Request.Context(), req.Embeddings, h.dimensions)
	if response.Failed > 0 {
		c.JSON(http.StatusPartialContent, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
