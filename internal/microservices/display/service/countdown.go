package service

import (
	"math"
	"sync"

	"kitchen-display/internal/domain"
)

// CountdownTracker holds the preparation-time countdown for every visible
// order on one screen. All countdowns are advanced by a single shared 1Hz
// tick, never one timer per order.
type CountdownTracker struct {
	mu     sync.Mutex
	states map[int]*countdownEntry
}

type countdownEntry struct {
	minutes   int
	seconds   int
	completed bool
}

func NewCountdownTracker() *CountdownTracker {
	return &CountdownTracker{states: make(map[int]*countdownEntry)}
}

// Observe reconciles countdown state against a fresh snapshot:
//   - first sight of a waiting order with a positive estimate starts its
//     countdown at floor(minutes) and the fractional remainder in seconds
//   - ready orders are frozen completed without an alert
//   - orders gone from the visible set are dropped
//
// Completed is terminal per order id.
func (t *CountdownTracker) Observe(orders []domain.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()

	visible := make(map[int]struct{}, len(orders))
	for _, o := range orders {
		visible[o.ID] = struct{}{}

		e := t.states[o.ID]
		switch {
		case o.Status == domain.StatusWaiting && o.AvgPrepareTime > 0 && e == nil:
			minutes := int(math.Floor(o.AvgPrepareTime))
			seconds := int(math.Round((o.AvgPrepareTime - float64(minutes)) * 60))
			if seconds >= 60 {
				minutes++
				seconds -= 60
			}
			if minutes == 0 && seconds == 0 {
				continue
			}
			t.states[o.ID] = &countdownEntry{minutes: minutes, seconds: seconds}
		case o.Status == domain.StatusReady && e != nil && !e.completed:
			e.minutes, e.seconds, e.completed = 0, 0, true
		}
	}

	for id := range t.states {
		if _, ok := visible[id]; !ok {
			delete(t.states, id)
		}
	}
}

// Tick advances every running countdown by one second and returns the
// order ids that reached 0:00 on this tick — those fire the timer alert.
func (t *CountdownTracker) Tick() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []int
	for id, e := range t.states {
		if e.completed {
			continue
		}
		e.seconds--
		if e.seconds < 0 {
			e.minutes--
			e.seconds = 59
		}
		if e.minutes <= 0 && e.seconds == 0 {
			e.minutes, e.seconds, e.completed = 0, 0, true
			expired = append(expired, id)
		}
	}
	return expired
}

func (t *CountdownTracker) Snapshot() map[int]domain.CountdownState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int]domain.CountdownState, len(t.states))
	for id, e := range t.states {
		out[id] = domain.CountdownState{Minutes: e.minutes, Seconds: e.seconds, Completed: e.completed}
	}
	return out
}
