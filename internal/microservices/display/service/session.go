package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/domain"
	"kitchen-display/internal/microservices/display/repository"
)

// StatusWriter mutates order status through the data service. The
// dispatcher service satisfies it, so status changes made on a screen go
// through the same write-then-notify path as everything else.
type StatusWriter interface {
	SetOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) error
}

// SessionOptions tune the session's timers; zero values take defaults.
type SessionOptions struct {
	PollInterval  time.Duration // snapshot poll fallback, default 20s
	TickInterval  time.Duration // countdown tick, default 1s
	DebounceDelay time.Duration // event-to-refresh settle delay, default 750ms
}

func (o *SessionOptions) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = 20 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = 750 * time.Millisecond
	}
}

// ScreenSession is one kitchen display: it owns the screen id, POS config
// and sound state, subscribes to every delivery channel, deduplicates and
// filters events, refreshes the snapshot and drives the countdowns. All
// state updates happen on one loop goroutine; the only concurrency is the
// independent event sources feeding it.
type ScreenSession struct {
	screen   domain.Screen
	configID int

	db       repository.DisplayRepositoryInterface
	status   StatusWriter
	cache    *SnapshotCache
	tracker  *CountdownTracker
	dedup    *dedupCache
	hist     *history
	notifier Notifier
	log      *logger.Logger
	sources  []EventSource
	opts     SessionOptions

	soundMu sync.Mutex
	sound   SoundSettings

	events    chan domain.Event
	quit      chan struct{}
	stops     []func()
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewScreenSession(db repository.DisplayRepositoryInterface, status StatusWriter,
	notifier Notifier, log *logger.Logger, opts SessionOptions, sources ...EventSource) *ScreenSession {
	opts.fill()
	return &ScreenSession{
		db:       db,
		status:   status,
		notifier: notifier,
		log:      log,
		sources:  sources,
		opts:     opts,
		tracker:  NewCountdownTracker(),
		dedup:    newDedupCache(50, 5*time.Second),
		hist:     newHistory(50),
		events:   make(chan domain.Event, 16),
		quit:     make(chan struct{}),
	}
}

// Open loads the screen configuration, attaches every available delivery
// channel and starts the session loop. A missing screen is fatal for the
// session; an unavailable channel only degrades it.
func (s *ScreenSession) Open(ctx context.Context, screenID, posConfigID int) error {
	screen, err := s.db.GetScreenConfig(ctx, screenID)
	if err != nil {
		return fmt.Errorf("cannot open screen session: %w", err)
	}
	s.screen = screen
	s.configID = posConfigID
	if s.configID == 0 {
		s.configID = screen.ConfigID
	}
	s.log = s.log.WithFields(map[string]any{"screen_id": screen.ID, "config_id": s.configID})
	s.sound = SoundSettings{
		Enabled:   screen.SoundEnabled,
		File:      screen.SoundFile,
		Volume:    screen.SoundVolume,
		CustomURL: screen.CustomSoundURL,
	}
	if screen.AutoRefreshSec > 0 {
		s.opts.PollInterval = time.Duration(screen.AutoRefreshSec) * time.Second
	}
	s.cache = NewSnapshotCache(s.db, screen.ID, s.configID, s.log)

	attached := 0
	for _, src := range s.sources {
		stop, err := src.Start(s.events)
		if err != nil {
			s.log.Warn("channel_unavailable", err, map[string]any{"channel": src.Name()})
			continue
		}
		s.stops = append(s.stops, stop)
		attached++
	}
	if attached == 0 {
		// Degraded but correct: the polling path alone keeps the
		// snapshot converging.
		s.log.Warn("no_realtime_channels", nil, nil)
	}

	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("screen_session_opened", map[string]any{
		"screen_name": screen.Name, "channels": attached,
		"poll_interval": s.opts.PollInterval.String(),
	})
	return nil
}

// Close synchronously detaches every channel listener and stops the poll
// and countdown timers. No state mutation happens after it returns.
func (s *ScreenSession) Close() {
	s.closeOnce.Do(func() {
		for _, stop := range s.stops {
			stop()
		}
		close(s.quit)
		s.wg.Wait()
		s.log.Info("screen_session_closed", nil)
	})
}

type refreshOutcome struct {
	snap     domain.Snapshot
	fromPoll bool
}

func (s *ScreenSession) run(ctx context.Context) {
	defer s.wg.Done()

	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()
	tick := time.NewTicker(s.opts.TickInterval)
	defer tick.Stop()

	debounce := time.NewTimer(s.opts.DebounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	refreshPending := false
	refreshDone := make(chan refreshOutcome, 2)

	lastCount := -1 // no poll baseline until the first snapshot lands
	eventSeen := false

	s.startRefresh(ctx, refreshDone, false)

	for {
		select {
		case ev := <-s.events:
			if !s.accept(ev) {
				continue
			}
			eventSeen = true
			// Let the durable write settle before re-reading; bursts
			// coalesce into one refresh.
			if !refreshPending {
				refreshPending = true
				debounce.Reset(s.opts.DebounceDelay)
			}

		case <-debounce.C:
			refreshPending = false
			s.startRefresh(ctx, refreshDone, false)

		case <-poll.C:
			s.startRefresh(ctx, refreshDone, true)

		case out := <-refreshDone:
			s.tracker.Observe(out.snap.Orders)
			visible := len(out.snap.Orders)
			if out.fromPoll && !eventSeen && lastCount >= 0 && visible > lastCount {
				// The transport lost a new_order somewhere; the poll
				// caught it, so raise the same alert path.
				s.log.Info("missed_order_detected", map[string]any{
					"previous": lastCount, "current": visible,
				})
				s.notifier.NewOrder(domain.Event{
					Type:      domain.EventNewOrder,
					ScreenID:  s.screen.ID,
					ConfigID:  s.configID,
					Timestamp: time.Now().UTC(),
				}, s.Sound())
			}
			lastCount = visible
			eventSeen = false

		case <-tick.C:
			for _, orderID := range s.tracker.Tick() {
				s.notifier.TimerExpired(orderID, s.Sound())
			}

		case <-ctx.Done():
			return
		case <-s.quit:
			return
		}
	}
}

// accept is the common dispatch wrapped by every channel listener. Screen
// identity is checked before anything else: a screen must never react to
// another screen's event even when the config matches. Rejected events
// leave no trace in the dedup cache or the history.
func (s *ScreenSession) accept(ev domain.Event) bool {
	switch ev.Type {
	case domain.EventNewOrder, domain.EventStatusChange, domain.EventLineUpdated:
	default:
		s.log.Debug("event_unknown_type", map[string]any{"type": string(ev.Type)})
		return false
	}
	if ev.ScreenID != s.screen.ID {
		s.log.Debug("event_foreign_screen", map[string]any{"event_screen_id": ev.ScreenID})
		return false
	}
	if ev.ConfigID != 0 && ev.ConfigID != s.configID {
		s.log.Debug("event_foreign_config", map[string]any{"event_config_id": ev.ConfigID})
		return false
	}
	if s.dedup.Seen(ev.DedupKey(), time.Now()) {
		s.log.Debug("event_duplicate", map[string]any{"key": ev.DedupKey()})
		return false
	}

	s.hist.Add(ev)
	switch ev.Type {
	case domain.EventNewOrder:
		s.notifier.NewOrder(ev, s.Sound())
	case domain.EventStatusChange:
		s.notifier.StatusChange(ev, s.Sound())
	case domain.EventLineUpdated:
		// refresh only, no alert
	}
	return true
}

func (s *ScreenSession) startRefresh(ctx context.Context, done chan<- refreshOutcome, fromPoll bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		snap, performed := s.cache.Refresh(ctx)
		if !performed {
			return
		}
		select {
		case done <- refreshOutcome{snap: snap, fromPoll: fromPoll}:
		case <-s.quit:
		}
	}()
}

// Snapshot is the reactive state handed to the UI layer.
func (s *ScreenSession) Snapshot() domain.Snapshot {
	snap := s.cache.Current()
	snap.Countdown = s.tracker.Snapshot()
	return snap
}

func (s *ScreenSession) History() []domain.Event { return s.hist.All() }

func (s *ScreenSession) Sound() SoundSettings {
	s.soundMu.Lock()
	defer s.soundMu.Unlock()
	return s.sound
}

// ToggleSound flips the alert sound and persists the preference. A failed
// persist keeps the in-memory setting; it is not worth failing the
// operator's click over.
func (s *ScreenSession) ToggleSound(ctx context.Context, enabled bool) SoundSettings {
	s.soundMu.Lock()
	s.sound.Enabled = enabled
	current := s.sound
	s.soundMu.Unlock()

	if err := s.db.SetSoundEnabled(ctx, s.screen.ID, enabled); err != nil {
		s.log.Warn("sound_preference_not_persisted", err, nil)
	}
	return current
}

func (s *ScreenSession) AcceptOrder(ctx context.Context, orderID int) error {
	return s.status.SetOrderStatus(ctx, orderID, domain.StatusWaiting)
}

func (s *ScreenSession) CompleteOrder(ctx context.Context, orderID int) error {
	return s.status.SetOrderStatus(ctx, orderID, domain.StatusReady)
}

func (s *ScreenSession) CancelOrder(ctx context.Context, orderID int) error {
	return s.status.SetOrderStatus(ctx, orderID, domain.StatusCancel)
}

// TestNotification injects a synthetic new_order through the normal
// dispatch path, alerts included.
func (s *ScreenSession) TestNotification() {
	ev := domain.Event{
		Type:      domain.EventNewOrder,
		MessageID: uuid.NewString(),
		ScreenID:  s.screen.ID,
		ConfigID:  s.configID,
		OrderRef:  "TEST-001",
		Timestamp: time.Now().UTC(),
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("test_notification_dropped", nil, nil)
	}
}
