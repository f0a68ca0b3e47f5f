// Package broadcast is the same-process delivery channel: a non-blocking
// fan-out of events to subscriber channels. If a subscriber's channel is
// full the event is dropped rather than queued; receivers reconcile via
// snapshot refresh, so a dropped wake-up costs at most one poll cycle.
package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"

	"kitchen-display/internal/domain"
)

var (
	ErrSubscriberExists   = errors.New("subscriber id already exists")
	ErrSubscriberNotFound = errors.New("subscriber id not found")
	ErrBusClosed          = errors.New("bus is closed")
)

type Stats struct {
	Published uint64
	Sent      uint64
	Dropped   uint64
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- domain.Event
	closed      bool

	published atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

func New() *Bus {
	return &Bus{subscribers: make(map[string]chan<- domain.Event)}
}

func (b *Bus) Subscribe(id string, ch chan<- domain.Event) error {
	if ch == nil {
		return errors.New("subscriber channel cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	b.subscribers[id] = ch
	return nil
}

func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Publish delivers the event to every subscriber whose channel has room.
// Never blocks, even with slow subscribers.
func (b *Bus) Publish(ev domain.Event) {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
			b.sent.Add(1)
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Sent:      b.sent.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Close is idempotent. Subscriber channels are not closed; their owners
// manage that lifecycle.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
