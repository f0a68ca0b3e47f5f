package service

import (
	"context"
	"sync"
	"sync/atomic"

	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/domain"
	"kitchen-display/internal/microservices/display/repository"
)

// SnapshotCache holds the latest known orders/lines for one screen and
// refreshes them from the data service. A refresh already in flight
// short-circuits concurrent requests: the redundant caller is dropped,
// staleness self-heals on the next poll or event.
type SnapshotCache struct {
	db       repository.DisplayRepositoryInterface
	log      *logger.Logger
	screenID int
	configID int

	inFlight atomic.Bool

	mu   sync.RWMutex
	snap domain.Snapshot
}

func NewSnapshotCache(db repository.DisplayRepositoryInterface, screenID, configID int, log *logger.Logger) *SnapshotCache {
	return &SnapshotCache{
		db:       db,
		log:      log,
		screenID: screenID,
		configID: configID,
		snap:     emptySnapshot(),
	}
}

// Refresh fetches orders+lines, then prep times for the distinct products
// referenced, and recomputes status counts. Returns (snapshot, true) when
// this call performed the refresh and (zero, false) when it was dropped in
// favor of one already in flight. A failed fetch clears the cache to empty
// rather than keeping possibly-wrong stale data.
func (c *SnapshotCache) Refresh(ctx context.Context) (domain.Snapshot, bool) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return domain.Snapshot{}, false
	}
	defer c.inFlight.Store(false)

	orders, lines, err := c.db.GetOrdersForScreen(ctx, c.configID, c.screenID)
	if err != nil {
		c.log.Error("snapshot_fetch_failed", err, map[string]any{"screen_id": c.screenID})
		snap := emptySnapshot()
		c.store(snap)
		return snap, true
	}

	prepTimes, err := c.db.GetPrepTimes(ctx, distinctLineProducts(lines))
	if err != nil {
		c.log.Warn("prep_time_fetch_failed", err, map[string]any{"screen_id": c.screenID})
		prepTimes = map[int]float64{}
	}

	counts := countByStatus(orders)
	if total, err := c.db.CountOrdersToday(ctx, c.configID, c.screenID); err == nil {
		counts.TotalToday = total
	} else {
		c.log.Warn("today_count_failed", err, map[string]any{"screen_id": c.screenID})
	}

	snap := domain.Snapshot{
		Orders:    orders,
		Lines:     lines,
		PrepTimes: prepTimes,
		Counts:    counts,
	}
	c.store(snap)
	c.log.Debug("snapshot_refreshed", map[string]any{
		"screen_id": c.screenID, "orders": len(orders), "lines": len(lines),
	})
	return snap, true
}

func (c *SnapshotCache) Current() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *SnapshotCache) store(snap domain.Snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func emptySnapshot() domain.Snapshot {
	return domain.Snapshot{PrepTimes: map[int]float64{}}
}

func countByStatus(orders []domain.Order) domain.StatusCounts {
	var counts domain.StatusCounts
	for _, o := range orders {
		switch o.Status {
		case domain.StatusDraft:
			counts.Draft++
		case domain.StatusWaiting:
			counts.Waiting++
		case domain.StatusReady:
			counts.Ready++
		}
	}
	return counts
}

func distinctLineProducts(lines []domain.OrderLine) []int {
	seen := make(map[int]struct{}, len(lines))
	var out []int
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}
