package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matchengine/internal/logger"
	"matchengine/internal/metrics"
	"matchengine/internal/model"
)

// NotifyThreshold is the lowest score that alerts the buyer's agent.
const NotifyThreshold = 70

// NotificationStore is the persistence the dispatcher needs.
type NotificationStore interface {
	PrimaryAgent(ctx context.Context, buyerID string) (string, bool, error)
	InsertNotifications(ctx context.Context, notifications []model.Notification) error
}

// NotificationSink receives every stored notification. Delivery is best-effort.
type NotificationSink interface {
	Publish(ctx context.Context, event model.NotificationCreatedEvent) error
}

// Dispatcher turns strong matches into agent notifications. Repeated high
// scores across runs notify again; read state is the consumer's concern.
type Dispatcher struct {
	store  NotificationStore
	sink   NotificationSink
	logger *zap.Logger
}

func NewDispatcher(store NotificationStore, sink NotificationSink, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{store: store, sink: sink, logger: log}
}

// Dispatch stores one notification per ranked match scoring at least
// NotifyThreshold and returns how many were created. A buyer without an agent
// is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, buyer *model.Buyer, runID string, ranked []model.RankedMatch, properties map[string]model.Property) (int, error) {
	qualifying := make([]model.RankedMatch, 0, len(ranked))
	seen := make(map[string]struct{}, len(ranked))
	for _, m := range ranked {
		if m.Score < NotifyThreshold {
			continue
		}
		if _, dup := seen[m.PropertyID]; dup {
			continue
		}
		seen[m.PropertyID] = struct{}{}
		qualifying = append(qualifying, m)
	}
	if len(qualifying) == 0 {
		return 0, nil
	}

	agentID, ok, err := d.store.PrimaryAgent(ctx, buyer.ID)
	if err != nil {
		return 0, fmt.Errorf("lookup primary agent: %w", err)
	}
	if !ok {
		d.logger.Info("buyer has no agent, skipping notifications",
			zap.String(logger.FieldBuyerID, buyer.ID),
			zap.Int("qualifying", len(qualifying)),
		)
		return 0, nil
	}

	notifications := make([]model.Notification, 0, len(qualifying))
	for _, m := range qualifying {
		notifications = append(notifications, model.Notification{
			ID:         uuid.NewString(),
			AgentID:    agentID,
			BuyerID:    buyer.ID,
			PropertyID: m.PropertyID,
			RunID:      runID,
			MatchScore: m.Score,
			Title:      fmt.Sprintf("Strong match for %s", buyer.Name),
			Message:    notificationMessage(m, properties),
		})
	}

	if err := d.store.InsertNotifications(ctx, notifications); err != nil {
		return 0, fmt.Errorf("store notifications: %w", err)
	}
	metrics.AddNotifications(len(notifications))

	d.logger.Info("notifications created",
		zap.String(logger.FieldBuyerID, buyer.ID),
		zap.String("agent_id", agentID),
		zap.Int("count", len(notifications)),
	)

	d.publish(ctx, notifications)
	return len(notifications), nil
}

func (d *Dispatcher) publish(ctx context.Context, notifications []model.Notification) {
	if d.sink == nil {
		return
	}
	for _, n := range notifications {
		event := model.NotificationCreatedEvent{
			EventID:        uuid.NewString(),
			NotificationID: n.ID,
			AgentID:        n.AgentID,
			BuyerID:        n.BuyerID,
			PropertyID:     n.PropertyID,
			RunID:          n.RunID,
			MatchScore:     n.MatchScore,
			Title:          n.Title,
			Message:        n.Message,
			CreatedAt:      n.CreatedAt,
		}
		if err := d.sink.Publish(ctx, event); err != nil {
			d.logger.Warn("failed to publish notification event",
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
		}
	}
}

func notificationMessage(m model.RankedMatch, properties map[string]model.Property) string {
	where := m.PropertyID
	if p, ok := properties[m.PropertyID]; ok {
		if s := p.Summary(); s != "" {
			where = s
		}
	}
	if m.Reason == "" {
		return fmt.Sprintf("%s scored %d.", where, m.Score)
	}
	return fmt.Sprintf("%s scored %d. %s", where, m.Score, m.Reason)
}
