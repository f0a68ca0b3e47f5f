package service

import (
	"context"
	"sync"
	"testing"

	"kitchen-display/internal/domain"
)

// fakeDisplayRepo is the in-memory data service used by the snapshot and
// session tests. block/entered let a test hold a fetch open to observe
// single-flight behavior.
type fakeDisplayRepo struct {
	mu        sync.Mutex
	screen    domain.Screen
	screenErr error
	orders    []domain.Order
	lines     []domain.OrderLine
	ordersErr error
	prepTimes map[int]float64
	fetches   int
	soundSet  []bool

	block   chan struct{}
	entered chan struct{}
}

func (f *fakeDisplayRepo) GetScreenConfig(ctx context.Context, screenID int) (domain.Screen, error) {
	if f.screenErr != nil {
		return domain.Screen{}, f.screenErr
	}
	return f.screen, nil
}

func (f *fakeDisplayRepo) GetOrdersForScreen(ctx context.Context, configID, screenID int) ([]domain.Order, []domain.OrderLine, error) {
	f.mu.Lock()
	f.fetches++
	orders := append([]domain.Order(nil), f.orders...)
	lines := append([]domain.OrderLine(nil), f.lines...)
	err := f.ordersErr
	entered, block := f.entered, f.block
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, nil, err
	}
	return orders, lines, nil
}

func (f *fakeDisplayRepo) GetPrepTimes(ctx context.Context, productIDs []int) (map[int]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]float64)
	for _, id := range productIDs {
		if t, ok := f.prepTimes[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (f *fakeDisplayRepo) CountOrdersToday(ctx context.Context, configID, screenID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders), nil
}

func (f *fakeDisplayRepo) SetSoundEnabled(ctx context.Context, screenID int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.soundSet = append(f.soundSet, enabled)
	return nil
}

func (f *fakeDisplayRepo) setOrders(orders ...domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = orders
}

func (f *fakeDisplayRepo) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func TestRefreshComputesCounts(t *testing.T) {
	repo := &fakeDisplayRepo{
		orders: []domain.Order{
			{ID: 1, Status: domain.StatusDraft},
			{ID: 2, Status: domain.StatusWaiting},
			{ID: 3, Status: domain.StatusWaiting},
			{ID: 4, Status: domain.StatusReady},
			{ID: 5, Status: domain.StatusCancel},
		},
		lines:     []domain.OrderLine{{ID: 1, OrderID: 2, ProductID: 101, Qty: 1}},
		prepTimes: map[int]float64{101: 7},
	}
	cache := NewSnapshotCache(repo, 5, 1, testLogger())

	snap, performed := cache.Refresh(context.Background())
	if !performed {
		t.Fatal("refresh was dropped with nothing in flight")
	}
	// A cancelled order lands in no status bucket.
	if snap.Counts.Draft != 1 || snap.Counts.Waiting != 2 || snap.Counts.Ready != 1 {
		t.Errorf("unexpected counts: %+v", snap.Counts)
	}
	if snap.Counts.TotalToday != 5 {
		t.Errorf("expected total 5, got %d", snap.Counts.TotalToday)
	}
	if snap.PrepTimes[101] != 7 {
		t.Errorf("expected prep time 7 for product 101, got %v", snap.PrepTimes[101])
	}
	if got := cache.Current(); len(got.Orders) != 5 {
		t.Errorf("expected cached snapshot with 5 orders, got %d", len(got.Orders))
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	repo := &fakeDisplayRepo{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	cache := NewSnapshotCache(repo, 5, 1, testLogger())

	done := make(chan bool, 1)
	go func() {
		_, performed := cache.Refresh(context.Background())
		done <- performed
	}()
	<-repo.entered

	// A second caller while the first is still fetching is dropped.
	if _, performed := cache.Refresh(context.Background()); performed {
		t.Error("concurrent refresh should have been dropped")
	}

	close(repo.block)
	if performed := <-done; !performed {
		t.Error("first refresh should have performed the fetch")
	}
	if n := repo.fetchCount(); n != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", n)
	}

	// After the in-flight refresh finishes, the next one runs normally.
	if _, performed := cache.Refresh(context.Background()); !performed {
		t.Error("follow-up refresh should run")
	}
}

func TestRefreshFailureClearsCache(t *testing.T) {
	repo := &fakeDisplayRepo{
		orders: []domain.Order{{ID: 1, Status: domain.StatusWaiting}},
	}
	cache := NewSnapshotCache(repo, 5, 1, testLogger())
	cache.Refresh(context.Background())
	if len(cache.Current().Orders) != 1 {
		t.Fatal("seed refresh did not populate the cache")
	}

	repo.mu.Lock()
	repo.ordersErr = context.DeadlineExceeded
	repo.mu.Unlock()

	snap, performed := cache.Refresh(context.Background())
	if !performed {
		t.Fatal("refresh was dropped")
	}
	if len(snap.Orders) != 0 || len(cache.Current().Orders) != 0 {
		t.Error("failed fetch must clear the cache, not keep stale orders")
	}
}
