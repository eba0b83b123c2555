package model

import "time"

// MatchRecord is the persisted outcome for one (buyer, property) pair.
// Failing records keep score 0 and the exclusion reason; passing records
// carry the oracle score and fit explanation.
type MatchRecord struct {
	BuyerID          string    `json:"buyer_id" db:"buyer_id"`
	PropertyID       string    `json:"property_id" db:"property_id"`
	MatchScore       *int      `json:"match_score" db:"match_score"`
	MatchReason      string    `json:"match_reason" db:"match_reason"`
	HardFilterPassed bool      `json:"hard_filter_passed" db:"hard_filter_passed"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// ExcludedCandidate is a property that failed the hard filter pipeline.
type ExcludedCandidate struct {
	PropertyID string `json:"property_id"`
	Reason     string `json:"reason"`
	Rule       string `json:"rule"`
}

// RankedMatch is one scored entry returned by the ranking oracle.
type RankedMatch struct {
	PropertyID string `json:"property_id"`
	Score      int    `json:"score"`
	Reason     string `json:"reason"`
}

// ExclusionCount aggregates failing records by reason.
type ExclusionCount struct {
	Reason string `json:"reason" db:"reason"`
	Count  int    `json:"count" db:"count"`
}

// Trigger identifies what started a matching run.
type Trigger string

const (
	TriggerManual          Trigger = "manual"
	TriggerCriteriaChanged Trigger = "criteria_changed"
	TriggerCLI             Trigger = "cli"
)

// Run statuses recorded in match_runs.
const (
	RunStatusSucceeded      = "succeeded"
	RunStatusNoTasteProfile = "no_taste_profile"
	RunStatusFailed         = "failed"
)

// MatchRun is the audit row written for every run.
type MatchRun struct {
	ID            string     `json:"id" db:"id"`
	BuyerID       string     `json:"buyer_id" db:"buyer_id"`
	Trigger       Trigger    `json:"trigger" db:"triggered_by"`
	Saved         bool       `json:"saved" db:"saved"`
	PassedCount   int        `json:"passed_count" db:"passed_count"`
	FailedCount   int        `json:"failed_count" db:"failed_count"`
	RankedCount   int        `json:"ranked_count" db:"ranked_count"`
	NotifiedCount int        `json:"notified_count" db:"notified_count"`
	Status        string     `json:"status" db:"status"`
	Error         *string    `json:"error,omitempty" db:"error"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Notification is an alert addressed to the buyer's primary agent.
// The engine only ever inserts notifications.
type Notification struct {
	ID         string    `json:"id" db:"id"`
	AgentID    string    `json:"agent_id" db:"agent_id"`
	BuyerID    string    `json:"buyer_id" db:"buyer_id"`
	PropertyID string    `json:"property_id" db:"property_id"`
	RunID      string    `json:"run_id" db:"run_id"`
	MatchScore int       `json:"match_score" db:"match_score"`
	Title      string    `json:"title" db:"title"`
	Message    string    `json:"message" db:"message"`
	IsRead     bool      `json:"is_read" db:"is_read"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// FeedbackStatus is an agent's verdict on a property offered to a buyer.
type FeedbackStatus string

const (
	FeedbackInterested    FeedbackStatus = "interested"
	FeedbackVisited       FeedbackStatus = "visited"
	FeedbackNotInterested FeedbackStatus = "not_interested"
	FeedbackPending       FeedbackStatus = "pending"
)

// Valid reports whether s is a known status.
func (s FeedbackStatus) Valid() bool {
	switch s {
	case FeedbackInterested, FeedbackVisited, FeedbackNotInterested, FeedbackPending:
		return true
	}
	return false
}

// Liked reports whether the status counts as positive signal for ranking.
func (s FeedbackStatus) Liked() bool {
	return s == FeedbackInterested || s == FeedbackVisited
}

// Disliked reports whether the status counts as negative signal for ranking.
func (s FeedbackStatus) Disliked() bool {
	return s == FeedbackNotInterested
}

// Feedback is a stored agent verdict joined with the property summary fields
// needed by the ranking prompt.
type Feedback struct {
	ID         int64          `json:"id" db:"id"`
	BuyerID    string         `json:"buyer_id" db:"buyer_id"`
	PropertyID string         `json:"property_id" db:"property_id"`
	AgentID    *string        `json:"agent_id,omitempty" db:"agent_id"`
	Status     FeedbackStatus `json:"status" db:"status"`
	Note       *string        `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`

	Address      string   `json:"address,omitempty" db:"address"`
	City         string   `json:"city,omitempty" db:"city"`
	Neighborhood *string  `json:"neighborhood,omitempty" db:"neighborhood"`
	Rooms        *float64 `json:"rooms,omitempty" db:"rooms"`
	Price        *float64 `json:"price,omitempty" db:"price"`
}
