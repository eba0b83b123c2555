package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"matchengine/internal/logger"
	"matchengine/internal/model"
	"matchengine/internal/service"
)

// Header keys carrying the contract of a message.
const (
	HeaderEventType    = "event-type"
	HeaderEventVersion = "event-version"
)

// CriteriaHandler reacts to a validated criteria change.
type CriteriaHandler interface {
	OnCriteriaChanged(ctx context.Context, event model.CriteriaChangedEvent) error
}

// ConsumeChannel is the subset of *amqp.Channel the consumer needs.
type ConsumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

// CriteriaConsumer drains the criteria-changed queue into a CriteriaHandler.
type CriteriaConsumer struct {
	ch       ConsumeChannel
	queue    string
	prefetch int
	handler  CriteriaHandler
	log      *zap.Logger
	tag      string
}

func NewCriteriaConsumer(ch ConsumeChannel, queue string, prefetch int, handler CriteriaHandler, log *zap.Logger) *CriteriaConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &CriteriaConsumer{
		ch:       ch,
		queue:    queue,
		prefetch: prefetch,
		handler:  handler,
		log:      logger.WithFields(log, zap.String("queue", queue)),
		tag:      "matchengine-criteria",
	}
}

// Start consumes until ctx is cancelled or the broker closes the delivery channel.
func (c *CriteriaConsumer) Start(ctx context.Context) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.log.Info("criteria consumer started", zap.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			if err := c.ch.Cancel(c.tag, false); err != nil {
				c.log.Warn("cancel consumer", zap.Error(err))
			}
			c.log.Info("criteria consumer stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *CriteriaConsumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.log.With(zap.String("message_id", d.MessageId), zap.Bool("redelivered", d.Redelivered))

	eventType := headerString(d.Headers, HeaderEventType, model.EventCriteriaChanged)
	version := headerString(d.Headers, HeaderEventVersion, model.EventVersionV1)
	if eventType != model.EventCriteriaChanged {
		log.Warn("dropping unexpected event type", zap.String("event_type", eventType))
		c.ack(log, d)
		return
	}

	event, err := DecodeCriteriaChanged(version, d.Body)
	if err != nil {
		log.Error("dropping invalid criteria event", zap.Error(err))
		c.ack(log, d)
		return
	}
	log = log.With(zap.String(logger.FieldBuyerID, event.BuyerID), zap.String("event_id", event.EventID))

	err = c.handler.OnCriteriaChanged(ctx, event)
	switch {
	case err == nil:
		log.Debug("criteria event processed")
		c.ack(log, d)
	case service.IsRetryable(err) && !d.Redelivered:
		log.Warn("criteria event failed, requeueing", zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("nack delivery", zap.Error(nackErr))
		}
	case service.IsRetryable(err):
		log.Error("criteria event failed after redelivery, dropping", zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("nack delivery", zap.Error(nackErr))
		}
	default:
		log.Warn("criteria event rejected", zap.Error(err))
		c.ack(log, d)
	}
}

func (c *CriteriaConsumer) ack(log *zap.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Error("ack delivery", zap.Error(err))
	}
}

// DecodeCriteriaChanged validates body against its contract and decodes it.
func DecodeCriteriaChanged(version string, body []byte) (model.CriteriaChangedEvent, error) {
	var event model.CriteriaChangedEvent
	if err := Validate(model.EventCriteriaChanged, version, body); err != nil {
		return event, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return event, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
		TagName:    "mapstructure",
		Result:     &event,
	})
	if err != nil {
		return event, err
	}
	if err := decoder.Decode(raw); err != nil {
		return event, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	event.BuyerID = strings.TrimSpace(event.BuyerID)
	if event.BuyerID == "" {
		return event, fmt.Errorf("%w: empty buyer_id", ErrInvalidEvent)
	}
	return event, nil
}

func headerString(headers amqp.Table, key, fallback string) string {
	if headers == nil {
		return fallback
	}
	switch v := headers[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	case []byte:
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return fallback
}
