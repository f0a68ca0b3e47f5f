package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"kitchen-display/internal/connections/database"
	"kitchen-display/internal/domain"
)

// ErrScreenNotFound means the session was opened with a screen id that
// does not exist; fatal for that session, the operator must pick a valid
// screen.
var ErrScreenNotFound = errors.New("screen not found")

type DisplayRepositoryInterface interface {
	GetScreenConfig(ctx context.Context, screenID int) (domain.Screen, error)
	GetOrdersForScreen(ctx context.Context, configID, screenID int) ([]domain.Order, []domain.OrderLine, error)
	GetPrepTimes(ctx context.Context, productIDs []int) (map[int]float64, error)
	CountOrdersToday(ctx context.Context, configID, screenID int) (int, error)
	SetSoundEnabled(ctx context.Context, screenID int, enabled bool) error
}

type DisplayRepository struct {
	db *database.Conn
}

func NewDisplayRepository(db *database.Conn) DisplayRepositoryInterface {
	return &DisplayRepository{db: db}
}

func (r *DisplayRepository) GetScreenConfig(ctx context.Context, screenID int) (domain.Screen, error) {
	var s domain.Screen
	err := r.db.QueryRow(ctx, `
SELECT s.id, s.name, s.config_id, s.sound_enabled, s.sound_file, s.sound_volume,
       COALESCE(s.custom_sound_url, ''), s.auto_refresh_seconds,
       COALESCE((SELECT array_agg(sc.category_id) FROM screen_categories sc WHERE sc.screen_id = s.id), '{}')
FROM screens s
WHERE s.id = $1 AND s.active
`, screenID).Scan(&s.ID, &s.Name, &s.ConfigID, &s.SoundEnabled, &s.SoundFile,
		&s.SoundVolume, &s.CustomSoundURL, &s.AutoRefreshSec, &s.CategoryIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Screen{}, ErrScreenNotFound
	}
	if err != nil {
		return domain.Screen{}, fmt.Errorf("failed to load screen %d config: %w", screenID, err)
	}
	sort.Ints(s.CategoryIDs)
	return s, nil
}

// GetOrdersForScreen is the single authority on which orders a screen
// shows: the stored submission-time screen membership, the screen's POS
// config, and status != cancel — all filtered server-side. The client
// never re-runs category matching.
func (r *DisplayRepository) GetOrdersForScreen(ctx context.Context, configID, screenID int) ([]domain.Order, []domain.OrderLine, error) {
	rows, err := r.db.Query(ctx, `
SELECT o.id, o.order_ref, o.config_id, o.status, o.avg_prepare_time,
       EXTRACT(HOUR FROM o.ordered_at AT TIME ZONE 'UTC')::int,
       EXTRACT(MINUTE FROM o.ordered_at AT TIME ZONE 'UTC')::int
FROM orders o
JOIN order_screens os ON os.order_id = o.id
WHERE os.screen_id = $2 AND o.config_id = $1 AND o.status <> 'cancel'
ORDER BY o.id
`, configID, screenID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query orders for screen %d: %w", screenID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	var orderIDs []int
	for rows.Next() {
		var o domain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.Ref, &o.ConfigID, &status, &o.AvgPrepareTime,
			&o.OrderedHour, &o.OrderedMinute); err != nil {
			return nil, nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(orders) == 0 {
		return nil, nil, nil
	}

	lineRows, err := r.db.Query(ctx, `
SELECT id, order_id, product_id, qty, COALESCE(note, ''), status
FROM order_lines
WHERE order_id = ANY($1)
ORDER BY id
`, orderIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer lineRows.Close()

	var lines []domain.OrderLine
	for lineRows.Next() {
		var l domain.OrderLine
		var status string
		if err := lineRows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Qty, &l.Note, &status); err != nil {
			return nil, nil, fmt.Errorf("failed to scan line row: %w", err)
		}
		l.Status = domain.OrderStatus(status)
		lines = append(lines, l)
	}
	return orders, lines, lineRows.Err()
}

func (r *DisplayRepository) GetPrepTimes(ctx context.Context, productIDs []int) (map[int]float64, error) {
	if len(productIDs) == 0 {
		return map[int]float64{}, nil
	}
	rows, err := r.db.Query(ctx, `
SELECT id, COALESCE(prep_time_minutes, 0) FROM products WHERE id = ANY($1)
`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query prep times: %w", err)
	}
	defer rows.Close()

	out := make(map[int]float64, len(productIDs))
	for rows.Next() {
		var id int
		var minutes float64
		if err := rows.Scan(&id, &minutes); err != nil {
			return nil, fmt.Errorf("failed to scan prep time row: %w", err)
		}
		out[id] = minutes
	}
	return out, rows.Err()
}

func (r *DisplayRepository) CountOrdersToday(ctx context.Context, configID, screenID int) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
SELECT COUNT(*)
FROM orders o
JOIN order_screens os ON os.order_id = o.id
WHERE os.screen_id = $2 AND o.config_id = $1 AND o.created_at >= date_trunc('day', NOW())
`, configID, screenID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's orders: %w", err)
	}
	return n, nil
}

func (r *DisplayRepository) SetSoundEnabled(ctx context.Context, screenID int, enabled bool) error {
	_, err := r.db.Exec(ctx, `
UPDATE screens SET sound_enabled = $2 WHERE id = $1
`, screenID, enabled)
	if err != nil {
		return fmt.Errorf("failed to persist sound preference: %w", err)
	}
	return nil
}
