package service

import (
	"context"
	"fmt"
	"sort"

	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/domain"
	"kitchen-display/internal/microservices/dispatcher/repository"
)

// Resolver computes which kitchen screens must display an order, from the
// union of its lines' product categories.
type Resolver struct {
	db  repository.DispatcherRepositoryInterface
	log *logger.Logger
}

func NewResolver(db repository.DispatcherRepositoryInterface, log *logger.Logger) *Resolver {
	return &Resolver{db: db, log: log}
}

// Resolve returns the screens of posConfigID whose configured category set
// intersects the order's category union. A screen with no configured
// categories matches everything. An order with no lines or no categorized
// products resolves to no screens; that is not an error, the caller still
// records the order. A failed screens fetch returns an empty set and the
// error — kitchen routing failure must never fail checkout.
func (r *Resolver) Resolve(ctx context.Context, lines []domain.SubmitOrderLine, posConfigID int) ([]domain.ScreenRef, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	productIDs := distinctProductIDs(lines)
	byProduct, err := r.db.GetProductCategories(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load product categories: %w", err)
	}

	union := make(map[int]struct{})
	for _, cats := range byProduct {
		for _, c := range cats {
			union[c] = struct{}{}
		}
	}
	if len(union) == 0 {
		r.log.Debug("order_without_categories", map[string]any{"config_id": posConfigID})
		return nil, nil
	}

	screens, err := r.db.GetScreensForConfig(ctx, posConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to load screens for config %d: %w", posConfigID, err)
	}

	var matched []domain.ScreenRef
	for _, s := range screens {
		if len(s.CategoryIDs) == 0 || intersects(s.CategoryIDs, union) {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func distinctProductIDs(lines []domain.SubmitOrderLine) []int {
	seen := make(map[int]struct{}, len(lines))
	var out []int
	for _, l := range lines {
		if l.ProductID == 0 {
			continue
		}
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}

func intersects(ids []int, set map[int]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
