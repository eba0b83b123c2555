package model

// MatchRequest is the explicit, agent-initiated entry point.
// SaveResults defaults to true; false is preview mode and writes nothing.
type MatchRequest struct {
	BuyerID     string `json:"buyer_id" binding:"required"`
	SaveResults *bool  `json:"save_results,omitempty"`
}

// Save resolves the SaveResults default.
func (r *MatchRequest) Save() bool {
	return r.SaveResults == nil || *r.SaveResults
}

// MatchResult is one ranked match with the denormalized property.
type MatchResult struct {
	PropertyID  string    `json:"property_id"`
	MatchScore  int       `json:"match_score"`
	MatchReason string    `json:"match_reason"`
	Property    *Property `json:"property"`
}

// MatchResponse is returned by both entry points.
type MatchResponse struct {
	RunID                string        `json:"run_id"`
	BuyerName            string        `json:"buyer_name"`
	Matches              []MatchResult `json:"matches"`
	TotalFiltered        int           `json:"total_filtered"`
	FailedCount          int           `json:"failed_count"`
	FiltersApplied       Criteria      `json:"filters_applied"`
	Message              string        `json:"message,omitempty"`
	Saved                bool          `json:"saved"`
	NotificationsCreated int           `json:"notifications_created"`
	Took                 int64         `json:"took_ms"`
}

// CriteriaUpdateRequest replaces a buyer's hard constraints.
type CriteriaUpdateRequest struct {
	Criteria
}

// MatchListResponse lists persisted match records for a buyer.
type MatchListResponse struct {
	BuyerID string        `json:"buyer_id"`
	Records []MatchRecord `json:"records"`
	Total   int           `json:"total"`
}

// ExclusionSummaryResponse aggregates failing records by reason.
type ExclusionSummaryResponse struct {
	BuyerID    string           `json:"buyer_id"`
	Exclusions []ExclusionCount `json:"exclusions"`
}

// EmbeddingKind selects which table an embedding belongs to.
type EmbeddingKind string

const (
	EmbeddingKindProperty EmbeddingKind = "property"
	EmbeddingKindBuyer    EmbeddingKind = "buyer"
)

// EmbeddingBatchRequest represents a batch embedding update request
type EmbeddingBatchRequest struct {
	Embeddings []EmbeddingItem `json:"embeddings" binding:"required"`
}

// EmbeddingItem is one vector for a property or a buyer taste profile
type EmbeddingItem struct {
	Kind      EmbeddingKind `json:"kind" binding:"required"`
	ID        string        `json:"id" binding:"required"`
	Embedding []float32     `json:"embedding" binding:"required"`
}

// EmbeddingBatchResponse represents the response for batch embedding update
type EmbeddingBatchResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// FeedbackRequest records an agent's verdict on an offered property
type FeedbackRequest struct {
	BuyerID    string         `json:"buyer_id" binding:"required"`
	PropertyID string         `json:"property_id" binding:"required"`
	AgentID    string         `json:"agent_id,omitempty"`
	Status     FeedbackStatus `json:"status" binding:"required"`
	Note       string         `json:"note,omitempty"`
}

// FeedbackResponse represents feedback response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
