package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/domain"
)

func testLogger() *logger.Logger { return logger.New("test") }

type fakeNotifier struct {
	mu            sync.Mutex
	newOrders     []domain.Event
	statusChanges []domain.Event
	timersExpired []int
}

func (n *fakeNotifier) NewOrder(ev domain.Event, _ SoundSettings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newOrders = append(n.newOrders, ev)
}

func (n *fakeNotifier) StatusChange(ev domain.Event, _ SoundSettings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusChanges = append(n.statusChanges, ev)
}

func (n *fakeNotifier) TimerExpired(orderID int, _ SoundSettings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timersExpired = append(n.timersExpired, orderID)
}

func (n *fakeNotifier) newOrderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.newOrders)
}

func (n *fakeNotifier) statusChangeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.statusChanges)
}

func (n *fakeNotifier) expiredCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.timersExpired)
}

// fakeSource hands the test a way to inject events as if they arrived on
// a delivery channel.
type fakeSource struct {
	name    string
	mu      sync.Mutex
	out     chan<- domain.Event
	stopped bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Start(out chan<- domain.Event) (func(), error) {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	stop := func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}
	return stop, nil
}

func (f *fakeSource) Emit(ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || f.out == nil {
		return
	}
	f.out <- ev
}

type fakeStatus struct {
	mu     sync.Mutex
	orders []int
	states []domain.OrderStatus
	err    error
}

func (f *fakeStatus) SetOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, orderID)
	f.states = append(f.states, status)
	return nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testScreen() domain.Screen {
	return domain.Screen{
		ID:           5,
		Name:         "Grill",
		ConfigID:     1,
		SoundEnabled: true,
		SoundFile:    "bell",
		SoundVolume:  0.5,
	}
}

// quietOpts parks the poll and tick timers so a test only sees the
// behavior it drives explicitly.
func quietOpts() SessionOptions {
	return SessionOptions{
		PollInterval:  time.Hour,
		TickInterval:  time.Hour,
		DebounceDelay: 10 * time.Millisecond,
	}
}

func openSession(t *testing.T, repo *fakeDisplayRepo, opts SessionOptions, sources ...EventSource) (*ScreenSession, *fakeNotifier, *fakeStatus) {
	t.Helper()
	notifier := &fakeNotifier{}
	status := &fakeStatus{}
	s := NewScreenSession(repo, status, notifier, testLogger(), opts, sources...)
	if err := s.Open(context.Background(), repo.screen.ID, 0); err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(s.Close)
	return s, notifier, status
}

func TestSessionOpenFailsOnUnknownScreen(t *testing.T) {
	repo := &fakeDisplayRepo{screenErr: errors.New("screen not found")}
	s := NewScreenSession(repo, &fakeStatus{}, &fakeNotifier{}, testLogger(), quietOpts())
	if err := s.Open(context.Background(), 99, 0); err == nil {
		t.Fatal("expected error for unknown screen")
	}
}

func TestSessionDuplicateEventAlertsOnce(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	amqp := &fakeSource{name: "amqp"}
	bus := &fakeSource{name: "bus"}
	_, notifier, _ := openSession(t, repo, quietOpts(), amqp, bus)

	waitFor(t, func() bool { return repo.fetchCount() >= 1 }, "initial refresh never ran")

	ev := domain.Event{
		Type:     domain.EventNewOrder,
		ScreenID: 5,
		ConfigID: 1,
		OrderRef: "ORD-50",
	}
	// The same logical event arrives on both realtime channels, twice on
	// one of them.
	amqp.Emit(ev)
	bus.Emit(ev)
	amqp.Emit(ev)

	waitFor(t, func() bool { return notifier.newOrderCount() == 1 }, "alert never fired")
	waitFor(t, func() bool { return repo.fetchCount() == 2 }, "debounced refresh never ran")

	// Give any stray duplicate time to surface.
	time.Sleep(50 * time.Millisecond)
	if got := notifier.newOrderCount(); got != 1 {
		t.Errorf("expected exactly 1 alert, got %d", got)
	}
	if got := repo.fetchCount(); got != 2 {
		t.Errorf("expected exactly 2 fetches (seed + one coalesced), got %d", got)
	}
}

func TestSessionIgnoresForeignEvents(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	src := &fakeSource{name: "bus"}
	_, notifier, _ := openSession(t, repo, quietOpts(), src)

	waitFor(t, func() bool { return repo.fetchCount() >= 1 }, "initial refresh never ran")

	// Wrong screen, even though the config matches.
	src.Emit(domain.Event{Type: domain.EventNewOrder, ScreenID: 6, ConfigID: 1, OrderRef: "ORD-51"})
	// Right screen, wrong config.
	src.Emit(domain.Event{Type: domain.EventNewOrder, ScreenID: 5, ConfigID: 2, OrderRef: "ORD-52"})

	time.Sleep(60 * time.Millisecond)
	if got := notifier.newOrderCount(); got != 0 {
		t.Errorf("expected no alerts for foreign events, got %d", got)
	}
	if got := repo.fetchCount(); got != 1 {
		t.Errorf("expected no refresh beyond the seed, got %d fetches", got)
	}
}

func TestSessionUnknownEventTypeLeavesNoTrace(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	src := &fakeSource{name: "bus"}
	s, notifier, _ := openSession(t, repo, quietOpts(), src)

	waitFor(t, func() bool { return repo.fetchCount() >= 1 }, "initial refresh never ran")

	src.Emit(domain.Event{Type: "order_exploded", ScreenID: 5, ConfigID: 1, OrderRef: "ORD-55"})

	time.Sleep(60 * time.Millisecond)
	if got := notifier.newOrderCount() + notifier.statusChangeCount(); got != 0 {
		t.Errorf("expected no alerts for unknown event type, got %d", got)
	}
	if got := repo.fetchCount(); got != 1 {
		t.Errorf("expected no refresh for unknown event type, got %d fetches", got)
	}
	if hist := s.History(); len(hist) != 0 {
		t.Errorf("rejected event must not enter history, got %+v", hist)
	}
}

func TestSessionStatusChangeAlert(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	src := &fakeSource{name: "bus"}
	_, notifier, _ := openSession(t, repo, quietOpts(), src)

	src.Emit(domain.Event{
		Type:        domain.EventStatusChange,
		ScreenID:    5,
		ConfigID:    1,
		OrderRef:    "ORD-53",
		OrderStatus: domain.StatusReady,
	})

	waitFor(t, func() bool { return notifier.statusChangeCount() == 1 }, "status alert never fired")
}

func TestSessionLineUpdatedRefreshesWithoutAlert(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	src := &fakeSource{name: "bus"}
	_, notifier, _ := openSession(t, repo, quietOpts(), src)

	waitFor(t, func() bool { return repo.fetchCount() >= 1 }, "initial refresh never ran")

	src.Emit(domain.Event{Type: domain.EventLineUpdated, ScreenID: 5, ConfigID: 1, OrderRef: "ORD-54"})

	waitFor(t, func() bool { return repo.fetchCount() == 2 }, "line update did not trigger a refresh")
	if notifier.newOrderCount() != 0 || notifier.statusChangeCount() != 0 {
		t.Error("line updates must refresh silently")
	}
}

func TestSessionPollDetectsMissedOrder(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	repo.setOrders(domain.Order{ID: 1, Status: domain.StatusWaiting})

	opts := quietOpts()
	opts.PollInterval = 25 * time.Millisecond
	_, notifier, _ := openSession(t, repo, opts)

	// Let the seed refresh establish the baseline of one visible order.
	waitFor(t, func() bool { return repo.fetchCount() >= 1 }, "initial refresh never ran")
	time.Sleep(40 * time.Millisecond)

	// A new order lands with no event delivered on any channel; only the
	// poll can see it.
	repo.setOrders(
		domain.Order{ID: 1, Status: domain.StatusWaiting},
		domain.Order{ID: 2, Status: domain.StatusDraft},
	)

	waitFor(t, func() bool { return notifier.newOrderCount() == 1 }, "missed order never alerted")

	// Later polls see a stable count and stay silent.
	time.Sleep(100 * time.Millisecond)
	if got := notifier.newOrderCount(); got != 1 {
		t.Errorf("expected exactly 1 missed-order alert, got %d", got)
	}
}

func TestSessionCountdownFiresTimerAlert(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	// 0.05 minutes is a 3 second countdown.
	repo.setOrders(domain.Order{ID: 9, Status: domain.StatusWaiting, AvgPrepareTime: 0.05})

	opts := quietOpts()
	opts.TickInterval = 5 * time.Millisecond
	_, notifier, _ := openSession(t, repo, opts)

	waitFor(t, func() bool { return notifier.expiredCount() == 1 }, "timer alert never fired")

	notifier.mu.Lock()
	expired := notifier.timersExpired[0]
	notifier.mu.Unlock()
	if expired != 9 {
		t.Errorf("expected timer alert for order 9, got %d", expired)
	}

	time.Sleep(50 * time.Millisecond)
	if got := notifier.expiredCount(); got != 1 {
		t.Errorf("timer alert must fire once, got %d", got)
	}
}

func TestSessionCountsFollowOrderLifecycle(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	opts := quietOpts()
	opts.PollInterval = 20 * time.Millisecond
	s, _, _ := openSession(t, repo, opts)

	counts := func() domain.StatusCounts { return s.Snapshot().Counts }

	repo.setOrders(domain.Order{ID: 1, Status: domain.StatusDraft})
	waitFor(t, func() bool { return counts().Draft == 1 }, "draft never counted")

	repo.setOrders(domain.Order{ID: 1, Status: domain.StatusWaiting})
	waitFor(t, func() bool {
		c := counts()
		return c.Draft == 0 && c.Waiting == 1
	}, "waiting never counted")

	repo.setOrders(domain.Order{ID: 1, Status: domain.StatusReady})
	waitFor(t, func() bool {
		c := counts()
		return c.Waiting == 0 && c.Ready == 1
	}, "ready never counted")

	// Cancelling drops the order from the visible set entirely; every
	// bucket returns to zero.
	repo.setOrders()
	waitFor(t, func() bool {
		c := counts()
		return c.Draft == 0 && c.Waiting == 0 && c.Ready == 0
	}, "counts never returned to zero after cancel")
}

func TestSessionSnapshotIncludesCountdowns(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	repo.setOrders(domain.Order{ID: 3, Status: domain.StatusWaiting, AvgPrepareTime: 2.5})
	s, _, _ := openSession(t, repo, quietOpts())

	waitFor(t, func() bool {
		return len(s.Snapshot().Orders) == 1 && len(s.Snapshot().Countdown) == 1
	}, "snapshot never converged")

	cd := s.Snapshot().Countdown[3]
	if cd.Minutes != 2 || cd.Seconds != 30 {
		t.Errorf("expected countdown 2:30, got %+v", cd)
	}
}

func TestSessionToggleSoundPersists(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	s, _, _ := openSession(t, repo, quietOpts())

	got := s.ToggleSound(context.Background(), false)
	if got.Enabled {
		t.Error("expected sound disabled")
	}
	if s.Sound().Enabled {
		t.Error("session sound state not updated")
	}

	repo.mu.Lock()
	persisted := append([]bool(nil), repo.soundSet...)
	repo.mu.Unlock()
	if len(persisted) != 1 || persisted[0] != false {
		t.Errorf("expected one persisted value false, got %v", persisted)
	}
}

func TestSessionOrderActionsGoThroughStatusWriter(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	s, _, status := openSession(t, repo, quietOpts())
	ctx := context.Background()

	if err := s.AcceptOrder(ctx, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := s.CompleteOrder(ctx, 2); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.CancelOrder(ctx, 3); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	status.mu.Lock()
	defer status.mu.Unlock()
	want := []domain.OrderStatus{domain.StatusWaiting, domain.StatusReady, domain.StatusCancel}
	for i, st := range want {
		if status.states[i] != st || status.orders[i] != i+1 {
			t.Errorf("call %d: got order %d status %s", i, status.orders[i], status.states[i])
		}
	}
}

func TestSessionTestNotification(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	s, notifier, _ := openSession(t, repo, quietOpts())

	s.TestNotification()

	waitFor(t, func() bool { return notifier.newOrderCount() == 1 }, "test notification never alerted")

	hist := s.History()
	if len(hist) == 0 || hist[0].OrderRef != "TEST-001" {
		t.Errorf("expected TEST-001 in history, got %+v", hist)
	}
}

func TestSessionCloseStopsActivity(t *testing.T) {
	repo := &fakeDisplayRepo{screen: testScreen()}
	opts := quietOpts()
	opts.PollInterval = 20 * time.Millisecond
	s, notifier, _ := openSession(t, repo, opts)

	waitFor(t, func() bool { return repo.fetchCount() >= 1 }, "initial refresh never ran")

	s.Close()
	s.Close() // idempotent

	after := repo.fetchCount()
	time.Sleep(80 * time.Millisecond)
	if got := repo.fetchCount(); got != after {
		t.Errorf("polling continued after close: %d -> %d", after, got)
	}
	if got := notifier.expiredCount(); got != 0 {
		t.Errorf("unexpected timer alerts after close: %d", got)
	}
}
