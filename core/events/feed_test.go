package events

import (
	"testing"

	"lendledger/core/types"
)

type stubEvent struct {
	payload *types.Event
}

func (e stubEvent) EventType() string {
	if e.payload == nil {
		return "stub"
	}
	return e.payload.Type
}

func (e stubEvent) Event() *types.Event { return e.payload }

func TestFeedRetainsEmissionOrder(t *testing.T) {
	feed := NewFeed()
	feed.Emit(stubEvent{payload: &types.Event{Type: "first", Attributes: map[string]string{"k": "1"}}})
	feed.Emit(stubEvent{payload: &types.Event{Type: "second", Attributes: map[string]string{"k": "2"}}})

	log := feed.Events()
	if len(log) != 2 {
		t.Fatalf("expected 2 events, got %d", len(log))
	}
	if log[0].Type != "first" || log[1].Type != "second" {
		t.Fatalf("unexpected order: %q, %q", log[0].Type, log[1].Type)
	}
	if log[0].Attributes["k"] != "1" {
		t.Fatalf("payload attributes must survive, got %v", log[0].Attributes)
	}
}

func TestFeedSnapshotIsolated(t *testing.T) {
	feed := NewFeed()
	feed.Emit(stubEvent{payload: &types.Event{Type: "first", Attributes: map[string]string{}}})
	snapshot := feed.Events()
	feed.Emit(stubEvent{payload: &types.Event{Type: "second", Attributes: map[string]string{}}})
	if len(snapshot) != 1 {
		t.Fatalf("snapshot must not grow, got %d", len(snapshot))
	}
}

func TestFeedSubscribeAndCancel(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe(4)

	feed.Emit(stubEvent{payload: &types.Event{Type: "live", Attributes: map[string]string{}}})
	select {
	case evt := <-ch:
		if evt.Type != "live" {
			t.Fatalf("unexpected event %q", evt.Type)
		}
	default:
		t.Fatalf("expected a buffered event")
	}

	cancel()
	if _, open := <-ch; open {
		t.Fatalf("expected channel closed on cancel")
	}
	// Emitting after cancel must not panic.
	feed.Emit(stubEvent{payload: &types.Event{Type: "after", Attributes: map[string]string{}}})
}

func TestFeedDropsWhenSubscriberFull(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe(1)
	defer cancel()

	feed.Emit(stubEvent{payload: &types.Event{Type: "first", Attributes: map[string]string{}}})
	feed.Emit(stubEvent{payload: &types.Event{Type: "second", Attributes: map[string]string{}}})

	if got := len(feed.Events()); got != 2 {
		t.Fatalf("log must retain every event, got %d", got)
	}
	evt := <-ch
	if evt.Type != "first" {
		t.Fatalf("expected the buffered first event, got %q", evt.Type)
	}
	select {
	case evt := <-ch:
		t.Fatalf("second event should have been dropped, got %q", evt.Type)
	default:
	}
}
