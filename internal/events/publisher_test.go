package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"matchengine/internal/model"
)

type fakePublishChannel struct {
	exchange   string
	kind       string
	key        string
	msgs       []amqp.Publishing
	deadline   bool
	publishErr error
}

func (f *fakePublishChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.exchange, f.kind = name, kind
	return nil
}

func (f *fakePublishChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	_, f.deadline = ctx.Deadline()
	f.key = key
	f.msgs = append(f.msgs, msg)
	return f.publishErr
}

func notificationEvent() model.NotificationCreatedEvent {
	return model.NotificationCreatedEvent{
		EventID:        "ev-1",
		NotificationID: "n-1",
		AgentID:        "agent-1",
		BuyerID:        "dana",
		PropertyID:     "A",
		RunID:          "run-1",
		MatchScore:     82,
		Title:          "Strong match for Dana",
		Message:        "Herzl 10, Tel Aviv",
		CreatedAt:      time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestNotificationPublisherPublish(t *testing.T) {
	ch := &fakePublishChannel{}
	p := NewNotificationPublisher(ch, "matchengine.notifications", zap.NewNop())
	if err := p.Declare(); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if ch.exchange != "matchengine.notifications" || ch.kind != amqp.ExchangeTopic {
		t.Fatalf("unexpected exchange %s (%s)", ch.exchange, ch.kind)
	}

	if err := p.Publish(context.Background(), notificationEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.msgs) != 1 || ch.key != RoutingNotificationCreated || !ch.deadline {
		t.Fatalf("unexpected publish: key=%s deadline=%v msgs=%d", ch.key, ch.deadline, len(ch.msgs))
	}
	msg := ch.msgs[0]
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" || msg.MessageId != "ev-1" {
		t.Fatalf("unexpected message properties: %+v", msg)
	}
	if msg.Headers[HeaderEventType] != model.EventNotificationCreated || msg.Headers[HeaderEventVersion] != model.EventVersionV1 {
		t.Fatalf("unexpected headers: %v", msg.Headers)
	}
	var decoded model.NotificationCreatedEvent
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.NotificationID != "n-1" || decoded.MatchScore != 82 {
		t.Fatalf("unexpected body: %+v", decoded)
	}
}

func TestNotificationPublisherAssignsEventID(t *testing.T) {
	ch := &fakePublishChannel{}
	p := NewNotificationPublisher(ch, "x", nil)
	event := notificationEvent()
	event.EventID = ""
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.msgs[0].MessageId == "" {
		t.Fatal("expected generated message id")
	}
}

func TestNotificationPublisherRejectsOffContract(t *testing.T) {
	ch := &fakePublishChannel{}
	p := NewNotificationPublisher(ch, "x", nil)
	event := notificationEvent()
	event.MatchScore = 40
	if err := p.Publish(context.Background(), event); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
	if len(ch.msgs) != 0 {
		t.Fatal("off-contract event must not be published")
	}
}

func TestNotificationPublisherBrokerError(t *testing.T) {
	ch := &fakePublishChannel{publishErr: errors.New("channel closed")}
	p := NewNotificationPublisher(ch, "x", nil)
	if err := p.Publish(context.Background(), notificationEvent()); err == nil {
		t.Fatal("expected broker error")
	}
}
