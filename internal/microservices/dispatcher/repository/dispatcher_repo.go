package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kitchen-display/internal/connections/database"
	"kitchen-display/internal/domain"
)

type DispatcherRepositoryInterface interface {
	GetScreensForConfig(ctx context.Context, configID int) ([]domain.ScreenRef, error)
	GetProductCategories(ctx context.Context, productIDs []int) (map[int][]int, error)
	GetPrepTimes(ctx context.Context, productIDs []int) (map[int]float64, error)
	CreateKitchenOrder(ctx context.Context, order domain.Order, lines []domain.SubmitOrderLine) (int, error)
	SetOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) (domain.Order, error)
	SetLineStatus(ctx context.Context, lineID int, status domain.OrderStatus) (domain.Order, error)
}

type DispatcherRepository struct {
	db *database.Conn
}

func NewDispatcherRepository(db *database.Conn) DispatcherRepositoryInterface {
	return &DispatcherRepository{db: db}
}

func (r *DispatcherRepository) GetScreensForConfig(ctx context.Context, configID int) ([]domain.ScreenRef, error) {
	rows, err := r.db.Query(ctx, `
SELECT s.id, s.name,
       COALESCE(array_agg(sc.category_id) FILTER (WHERE sc.category_id IS NOT NULL), '{}')
FROM screens s
LEFT JOIN screen_categories sc ON sc.screen_id = s.id
WHERE s.config_id = $1 AND s.active
GROUP BY s.id, s.name
ORDER BY s.id
`, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to query screens for config %d: %w", configID, err)
	}
	defer rows.Close()

	var out []domain.ScreenRef
	for rows.Next() {
		var s domain.ScreenRef
		if err := rows.Scan(&s.ID, &s.Name, &s.CategoryIDs); err != nil {
			return nil, fmt.Errorf("failed to scan screen row: %w", err)
		}
		sort.Ints(s.CategoryIDs)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *DispatcherRepository) GetProductCategories(ctx context.Context, productIDs []int) (map[int][]int, error) {
	if len(productIDs) == 0 {
		return map[int][]int{}, nil
	}
	rows, err := r.db.Query(ctx, `
SELECT product_id, category_id FROM product_categories WHERE product_id = ANY($1)
`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query product categories: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]int, len(productIDs))
	for rows.Next() {
		var pid, cid int
		if err := rows.Scan(&pid, &cid); err != nil {
			return nil, fmt.Errorf("failed to scan product category row: %w", err)
		}
		out[pid] = append(out[pid], cid)
	}
	return out, rows.Err()
}

func (r *DispatcherRepository) GetPrepTimes(ctx context.Context, productIDs []int) (map[int]float64, error) {
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

// CreateKitchenOrder persists the order, its lines and its target-screen
// set in one transaction. The screen set is written once here and never
// recomputed: routing is a snapshot at submission time.
func (r *DispatcherRepository) CreateKitchenOrder(ctx context.Context, order domain.Order, lines []domain.SubmitOrderLine) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderID int
	err = tx.QueryRow(ctx, `
INSERT INTO orders (order_ref, config_id, status, avg_prepare_time, ordered_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
RETURNING id
`, order.Ref, order.ConfigID, string(order.Status), order.AvgPrepareTime, time.Now().UTC()).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, line := range lines {
		_, err = tx.Exec(ctx, `
INSERT INTO order_lines (order_id, product_id, qty, note, status, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
`, orderID, line.ProductID, line.Qty, line.Note, string(order.Status))
		if err != nil {
			return 0, fmt.Errorf("failed to insert order line for product %d: %w", line.ProductID, err)
		}
	}

	for _, screenID := range order.ScreenIDs {
		_, err = tx.Exec(ctx, `
INSERT INTO order_screens (order_id, screen_id) VALUES ($1, $2)
`, orderID, screenID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert order screen %d: %w", screenID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return orderID, nil
}

func (r *DispatcherRepository) SetOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) (domain.Order, error) {
	var o domain.Order
	err := r.db.QueryRow(ctx, `
UPDATE orders SET status = $2, updated_at = NOW()
WHERE id = $1
RETURNING id, order_ref, config_id, status
`, orderID, string(status)).Scan(&o.ID, &o.Ref, &o.ConfigID, &o.Status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to update order %d status: %w", orderID, err)
	}
	o.ScreenIDs, err = r.orderScreens(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *DispatcherRepository) SetLineStatus(ctx context.Context, lineID int, status domain.OrderStatus) (domain.Order, error) {
	var orderID int
	err := r.db.QueryRow(ctx, `
UPDATE order_lines SET status = $2
WHERE id = $1
RETURNING order_id
`, lineID, string(status)).Scan(&orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to update line %d status: %w", lineID, err)
	}

	var o domain.Order
	err = r.db.QueryRow(ctx, `
SELECT id, order_ref, config_id, status FROM orders WHERE id = $1
`, orderID).Scan(&o.ID, &o.Ref, &o.ConfigID, &o.Status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	o.ScreenIDs, err = r.orderScreens(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *DispatcherRepository) orderScreens(ctx context.Context, orderID int) ([]int, error) {
	rows, err := r.db.Query(ctx, `
SELECT screen_id FROM order_screens WHERE order_id = $1 ORDER BY screen_id
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order screens: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order screen row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
