package service

import (
	"sync"
	"time"

	"kitchen-display/internal/domain"
)

// dedupCache remembers recently processed event keys so a screen reacts
// once to a logical event that arrives on up to three channels. Bounded
// two ways: at most maxKeys entries, each valid for ttl.
type dedupCache struct {
	mu      sync.Mutex
	maxKeys int
	ttl     time.Duration
	seen    map[string]time.Time
	order   []string
}

func newDedupCache(maxKeys int, ttl time.Duration) *dedupCache {
	return &dedupCache{
		maxKeys: maxKeys,
		ttl:     ttl,
		seen:    make(map[string]time.Time, maxKeys),
	}
}

// Seen reports whether key was already processed within the TTL, and
// records it otherwise.
func (d *dedupCache) Seen(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}
	if _, ok := d.seen[key]; !ok {
		d.order = append(d.order, key)
		if len(d.order) > d.maxKeys {
			evict := d.order[0]
			d.order = d.order[1:]
			delete(d.seen, evict)
		}
	}
	d.seen[key] = now
	return false
}

// history keeps the last accepted notifications for the session, newest
// first, capped at max.
type history struct {
	mu     sync.Mutex
	max    int
	events []domain.Event
}

func newHistory(max int) *history { return &history{max: max} }

func (h *history) Add(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append([]domain.Event{ev}, h.events...)
	if len(h.events) > h.max {
		h.events = h.events[:h.max]
	}
}

func (h *history) All() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Event, len(h.events))
	copy(out, h.events)
	return out
}
