package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"matchengine/internal/model"
)

// FeedbackAPI records agent verdicts.
type FeedbackAPI interface {
	RecordFeedback(ctx context.Context, req model.FeedbackRequest) (*model.Feedback, error)
}

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	svc FeedbackAPI
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(svc FeedbackAPI) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Must be one of: interested, visited, not_interested, pending"})
		return
	}

	if _, err := h.svc.RecordFeedback(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.FeedbackResponse{
		Success: true,
		Message: "Feedback recorded",
	})
}
