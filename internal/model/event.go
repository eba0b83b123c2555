package model

import "time"

// Event type names and versions carried in AMQP headers.
const (
	EventCriteriaChanged     = "BuyerCriteriaChangedEvent"
	EventNotificationCreated = "MatchNotificationCreatedEvent"
	EventVersionV1           = "1.0.0"
)

// CriteriaChangedEvent is emitted by the CRM whenever a buyer's hard-filter
// criteria are edited.
type CriteriaChangedEvent struct {
	EventID       string    `json:"event_id" mapstructure:"event_id"`
	BuyerID       string    `json:"buyer_id" mapstructure:"buyer_id"`
	ChangedFields []string  `json:"changed_fields" mapstructure:"changed_fields"`
	OccurredAt    time.Time `json:"occurred_at" mapstructure:"occurred_at"`
}

// NotificationCreatedEvent is published for every notification the engine stores.
type NotificationCreatedEvent struct {
	EventID        string    `json:"event_id"`
	NotificationID string    `json:"notification_id"`
	AgentID        string    `json:"agent_id"`
	BuyerID        string    `json:"buyer_id"`
	PropertyID     string    `json:"property_id"`
	RunID          string    `json:"run_id"`
	MatchScore     int       `json:"match_score"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}
