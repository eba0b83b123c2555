package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"matchengine/internal/model"
)

// MatchAPI is what the match and buyer endpoints need from the service layer.
type MatchAPI interface {
	Match(ctx context.Context, req model.MatchRequest) (*model.MatchResponse, error)
	UpdateCriteria(ctx context.Context, buyerID string, c model.Criteria) (*model.MatchResponse, error)
	ListMatches(ctx context.Context, buyerID string, passed *bool) (*model.MatchListResponse, error)
	ExclusionSummary(ctx context.Context, buyerID string) (*model.ExclusionSummaryResponse, error)
	ListRuns(ctx context.Context, buyerID string, limit int) ([]model.MatchRun, error)
}

// MatchHandler handles matching-related HTTP requests
type MatchHandler struct {
	svc MatchAPI
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(svc MatchAPI) *MatchHandler {
	return &MatchHandler{svc: svc}
}

// Match handles POST /api/v1/matches
func (h *MatchHandler) Match(c *gin.Context) {
	var req model.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	resp, err := h.svc.Match(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateCriteria handles PUT /api/v1/buyers/:id/criteria
func (h *MatchHandler) UpdateCriteria(c *gin.Context) {
	var req model.CriteriaUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	resp, err := h.svc.UpdateCriteria(c.Request.Context(), c.Param("id"), req.Criteria)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListMatches handles GET /api/v1/buyers/:id/matches
func (h *MatchHandler) ListMatches(c *gin.Context) {
	var passed *bool
	if raw := c.Query("passed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid passed filter, expected true or false"})
			return
		}
		passed = &v
	}

	resp, err := h.svc.ListMatches(c.Request.Context(), c.Param("id"), passed)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Exclusions handles GET /api/v1/buyers/:id/exclusions
func (h *MatchHandler) Exclusions(c *gin.Context) {
	resp, err := h.svc.ExclusionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Runs handles GET /api/v1/buyers/:id/runs
func (h *MatchHandler) Runs(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	runs, err := h.svc.ListRuns(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buyer_id": c.Param("id"), "runs": runs, "total": len(runs)})
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// parseLimit reads ?limit=, capping it at maxLimit. It writes the 400 itself.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}
