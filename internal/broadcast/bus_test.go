package broadcast

import (
	"testing"

	"kitchen-display/internal/domain"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	a := make(chan domain.Event, 1)
	b := make(chan domain.Event, 1)
	if err := bus.Subscribe("a", a); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if err := bus.Subscribe("b", b); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	bus.Publish(domain.Event{Type: domain.EventNewOrder, OrderRef: "ORD-1", ScreenID: 7})

	for name, ch := range map[string]chan domain.Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.OrderRef != "ORD-1" || ev.ScreenID != 7 {
				t.Errorf("subscriber %s got wrong event: %+v", name, ev)
			}
		default:
			t.Errorf("subscriber %s received nothing", name)
		}
	}

	stats := bus.Stats()
	if stats.Published != 1 || stats.Sent != 2 || stats.Dropped != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := New()
	defer bus.Close()

	full := make(chan domain.Event, 1)
	full <- domain.Event{} // no room left
	if err := bus.Subscribe("slow", full); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus.Publish(domain.Event{OrderRef: "ORD-2"})

	stats := bus.Stats()
	if stats.Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", stats.Dropped)
	}
	if stats.Sent != 0 {
		t.Errorf("expected 0 sent, got %d", stats.Sent)
	}
}

func TestDuplicateSubscriberID(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan domain.Event, 1)
	if err := bus.Subscribe("x", ch); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if err := bus.Subscribe("x", ch); err != ErrSubscriberExists {
		t.Errorf("expected ErrSubscriberExists, got %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan domain.Event, 4)
	if err := bus.Subscribe("x", ch); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Unsubscribe("x"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := bus.Unsubscribe("x"); err != ErrSubscriberNotFound {
		t.Errorf("expected ErrSubscriberNotFound, got %v", err)
	}

	bus.Publish(domain.Event{OrderRef: "ORD-3"})
	if len(ch) != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", len(ch))
	}
}

func TestClosedBusRejectsOperations(t *testing.T) {
	bus := New()
	bus.Close()
	bus.Close() // idempotent

	if err := bus.Subscribe("x", make(chan domain.Event, 1)); err != ErrBusClosed {
		t.Errorf("expected ErrBusClosed on subscribe, got %v", err)
	}
	// Publish on a closed bus is a silent no-op.
	bus.Publish(domain.Event{OrderRef: "ORD-4"})
	if got := bus.Stats().Sent; got != 0 {
		t.Errorf("expected 0 sent after close, got %d", got)
	}
}
