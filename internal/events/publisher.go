package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"matchengine/internal/logger"
	"matchengine/internal/model"
)

// RoutingNotificationCreated is the routing key of notification events.
const RoutingNotificationCreated = "match.notification.created"

const publishTimeout = 10 * time.Second

// PublishChannel is the subset of *amqp.Channel the publisher needs.
type PublishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// NotificationPublisher announces stored notifications on a topic exchange.
type NotificationPublisher struct {
	ch       PublishChannel
	exchange string
	log      *zap.Logger
	now      func() time.Time
}

func NewNotificationPublisher(ch PublishChannel, exchange string, log *zap.Logger) *NotificationPublisher {
	return &NotificationPublisher{
		ch:       ch,
		exchange: exchange,
		log:      logger.WithFields(log, zap.String("exchange", exchange)),
		now:      time.Now,
	}
}

// Declare creates the durable topic exchange if it does not exist.
func (p *NotificationPublisher) Declare() error {
	if err := p.ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

// Publish sends event as a persistent JSON message after checking it against
// its own contract.
func (p *NotificationPublisher) Publish(ctx context.Context, event model.NotificationCreatedEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}
	if err := Validate(model.EventNotificationCreated, model.EventVersionV1, body); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    p.now().UTC(),
		Type:         model.EventNotificationCreated,
		Headers: amqp.Table{
			HeaderEventType:    model.EventNotificationCreated,
			HeaderEventVersion: model.EventVersionV1,
		},
		Body: body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingNotificationCreated, false, false, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", event.NotificationID, err)
	}
	p.log.Debug("notification event published",
		zap.String("notification_id", event.NotificationID),
		zap.String(logger.FieldPropertyID, event.PropertyID))
	return nil
}
