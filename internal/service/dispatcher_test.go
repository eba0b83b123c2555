package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"matchengine/internal/model"
)

type fakeNotificationStore struct {
	agent    string
	hasAgent bool
	agentErr error
	inserted []model.Notification
	err      error
}

func (f *fakeNotificationStore) PrimaryAgent(ctx context.Context, buyerID string) (string, bool, error) {
	return f.agent, f.hasAgent, f.agentErr
}

func (f *fakeNotificationStore) InsertNotifications(ctx context.Context, notifications []model.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, notifications...)
	return nil
}

type recordingSink struct {
	events []model.NotificationCreatedEvent
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, event model.NotificationCreatedEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func TestDispatchThreshold(t *testing.T) {
	store := &fakeNotificationStore{agent: "agent-1", hasAgent: true}
	sink := &recordingSink{}
	d := NewDispatcher(store, sink, zap.NewNop())

	buyer := &model.Buyer{ID: "b1", Name: "Dana"}
	ranked := []model.RankedMatch{
		{PropertyID: "a", Score: 82, Reason: "quiet street"},
		{PropertyID: "b", Score: 70, Reason: "edge"},
		{PropertyID: "c", Score: 69, Reason: "close"},
		{PropertyID: "a", Score: 82, Reason: "duplicate"},
	}
	props := map[string]model.Property{"a": {ID: "a", Address: "Herzl 1", City: "Tel Aviv"}}

	n, err := d.Dispatch(context.Background(), buyer, "run-1", ranked, props)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n != 2 || len(store.inserted) != 2 {
		t.Fatalf("expected 2 notifications, got %d (%d stored)", n, len(store.inserted))
	}

	first := store.inserted[0]
	if first.AgentID != "agent-1" || first.PropertyID != "a" || first.RunID != "run-1" || first.MatchScore != 82 {
		t.Fatalf("unexpected notification: %+v", first)
	}
	if first.ID == "" || first.ID == store.inserted[1].ID {
		t.Fatalf("notification ids must be unique and set")
	}
	if first.Title != "Strong match for Dana" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if !strings.Contains(first.Message, "Herzl 1") || !strings.Contains(first.Message, "quiet street") {
		t.Fatalf("unexpected message %q", first.Message)
	}
	if len(sink.events) != 2 || sink.events[0].NotificationID != first.ID {
		t.Fatalf("unexpected published events: %+v", sink.events)
	}
}

func TestDispatchWithoutAgentIsNoop(t *testing.T) {
	store := &fakeNotificationStore{}
	d := NewDispatcher(store, nil, nil)

	n, err := d.Dispatch(context.Background(), &model.Buyer{ID: "b1"}, "run-1", []model.RankedMatch{{PropertyID: "a", Score: 95}}, nil)
	if err != nil || n != 0 || len(store.inserted) != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
}

func TestDispatchNothingQualifies(t *testing.T) {
	store := &fakeNotificationStore{agentErr: errors.New("must not be called")}
	d := NewDispatcher(store, nil, nil)

	n, err := d.Dispatch(context.Background(), &model.Buyer{ID: "b1"}, "run-1", []model.RankedMatch{{PropertyID: "a", Score: 50}}, nil)
	if err != nil || n != 0 {
		t.Fatalf("expected 0, nil; got %d, %v", n, err)
	}
}

func TestDispatchPublishFailureKeepsNotifications(t *testing.T) {
	store := &fakeNotificationStore{agent: "agent-1", hasAgent: true}
	sink := &recordingSink{err: errors.New("broker down")}
	d := NewDispatcher(store, sink, zap.NewNop())

	n, err := d.Dispatch(context.Background(), &model.Buyer{ID: "b1"}, "run-1", []model.RankedMatch{{PropertyID: "a", Score: 90}}, nil)
	if err != nil || n != 1 || len(store.inserted) != 1 {
		t.Fatalf("expected stored notification despite publish failure, got n=%d err=%v", n, err)
	}
}

func TestDispatchStoreError(t *testing.T) {
	store := &fakeNotificationStore{agent: "agent-1", hasAgent: true, err: errors.New("disk full")}
	d := NewDispatcher(store, nil, nil)

	if _, err := d.Dispatch(context.Background(), &model.Buyer{ID: "b1"}, "run-1", []model.RankedMatch{{PropertyID: "a", Score: 90}}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
