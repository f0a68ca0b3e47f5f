package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/domain"
	"kitchen-display/internal/microservices/dispatcher/repository"
)

type DispatcherServiceInterface interface {
	SubmitOrder(ctx context.Context, req domain.SubmitOrderRequest) (domain.SubmitOrderResponse, error)
	SetOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) error
	SetLineStatus(ctx context.Context, lineID int, status domain.OrderStatus) error
}

type DispatcherService struct {
	db       repository.DispatcherRepositoryInterface
	resolver *Resolver
	fanout   *Fanout
	log      *logger.Logger
}

func NewDispatcherService(db repository.DispatcherRepositoryInterface, resolver *Resolver, fanout *Fanout, log *logger.Logger) DispatcherServiceInterface {
	return &DispatcherService{db: db, resolver: resolver, fanout: fanout, log: log}
}

// SubmitOrder persists a kitchen order and notifies its target screens.
// Routing and notification failures never fail the submission; only a
// failed durable write does.
func (s *DispatcherService) SubmitOrder(ctx context.Context, req domain.SubmitOrderRequest) (domain.SubmitOrderResponse, error) {
	if req.OrderRef == "" {
		return domain.SubmitOrderResponse{}, errors.New("order_ref is required")
	}
	if req.ConfigID <= 0 {
		return domain.SubmitOrderResponse{}, errors.New("config_id is required")
	}
	if len(req.Lines) == 0 {
		return domain.SubmitOrderResponse{}, errors.New("at least one line is required")
	}
	for _, l := range req.Lines {
		if l.ProductID <= 0 {
			return domain.SubmitOrderResponse{}, errors.New("invalid product id")
		}
		if l.Qty <= 0 {
			return domain.SubmitOrderResponse{}, fmt.Errorf("invalid quantity for product %d", l.ProductID)
		}
	}

	screens, err := s.resolver.Resolve(ctx, req.Lines, req.ConfigID)
	if err != nil {
		// Recoverable: the order still gets recorded, just without
		// kitchen-display routing.
		s.log.Error("screen_resolution_failed", err, map[string]any{
			"order_ref": req.OrderRef, "config_id": req.ConfigID,
		})
		screens = nil
	}

	now := time.Now().UTC()
	order := domain.Order{
		Ref:            req.OrderRef,
		ConfigID:       req.ConfigID,
		Status:         domain.StatusDraft,
		OrderedHour:    now.Hour(),
		OrderedMinute:  now.Minute(),
		ScreenIDs:      screenIDs(screens),
		AvgPrepareTime: s.expectedPrepTime(ctx, req.Lines),
	}

	orderID, err := s.db.CreateKitchenOrder(ctx, order, req.Lines)
	if err != nil {
		return domain.SubmitOrderResponse{}, fmt.Errorf("failed to save kitchen order: %w", err)
	}

	s.log.Info("order_submitted", map[string]any{
		"order_ref": req.OrderRef, "order_id": orderID,
		"config_id": req.ConfigID, "screens": order.ScreenIDs,
	})

	s.fanout.Dispatch(ctx, domain.Event{
		Type:        domain.EventNewOrder,
		ConfigID:    req.ConfigID,
		OrderRef:    req.OrderRef,
		OrderStatus: domain.StatusDraft,
		Timestamp:   now,
		LinesCount:  len(req.Lines),
	}, screens)

	return domain.SubmitOrderResponse{
		OrderID:   orderID,
		OrderRef:  req.OrderRef,
		Status:    string(domain.StatusDraft),
		ScreenIDs: order.ScreenIDs,
	}, nil
}

func (s *DispatcherService) SetOrderStatus(ctx context.Context, orderID int, status domain.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid order status %q", status)
	}
	order, err := s.db.SetOrderStatus(ctx, orderID, status)
	if err != nil {
		return err
	}
	s.log.Info("order_status_changed", map[string]any{
		"order_id": orderID, "order_ref": order.Ref, "status": string(status),
	})
	s.fanout.Dispatch(ctx, domain.Event{
		Type:        domain.EventStatusChange,
		ConfigID:    order.ConfigID,
		OrderRef:    order.Ref,
		OrderStatus: status,
		Timestamp:   time.Now().UTC(),
	}, refsFromIDs(order.ScreenIDs))
	return nil
}

func (s *DispatcherService) SetLineStatus(ctx context.Context, lineID int, status domain.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid line status %q", status)
	}
	order, err := s.db.SetLineStatus(ctx, lineID, status)
	if err != nil {
		return err
	}
	s.fanout.Dispatch(ctx, domain.Event{
		Type:        domain.EventLineUpdated,
		ConfigID:    order.ConfigID,
		OrderRef:    order.Ref,
		OrderStatus: order.Status,
		Timestamp:   time.Now().UTC(),
	}, refsFromIDs(order.ScreenIDs))
	return nil
}

// expectedPrepTime derives the order-level estimate: the max of its lines'
// product estimates, one shared per-product figure with no quantity
// scaling.
func (s *DispatcherService) expectedPrepTime(ctx context.Context, lines []domain.SubmitOrderLine) float64 {
	times, err := s.db.GetPrepTimes(ctx, distinctProductIDs(lines))
	if err != nil {
		s.log.Warn("prep_time_fetch_failed", err, nil)
		return 0
	}
	var max float64
	for _, l := range lines {
		if t := times[l.ProductID]; t > max {
			max = t
		}
	}
	return max
}

func screenIDs(screens []domain.ScreenRef) []int {
	out := make([]int, 0, len(screens))
	for _, s := range screens {
		out = append(out, s.ID)
	}
	return out
}

// refsFromIDs rebuilds routing refs from the screen set stored with the
// order. Status changes go to the submission-time screens, not to a fresh
// resolution.
func refsFromIDs(ids []int) []domain.ScreenRef {
	out := make([]domain.ScreenRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ScreenRef{ID: id})
	}
	return out
}
