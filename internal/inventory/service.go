package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/gardenfresh/order-payments/internal"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	"github.com/gardenfresh/order-payments/internal/core/events"
)

// Repository is the persistence surface for stock consumption. MarkConsumed
// must be a conditional write that succeeds at most once per order.
type Repository interface {
	MarkConsumed(orderID int64, at time.Time) (bool, error)
	ItemsForOrder(orderID int64) ([]ordermodel.OrderItem, error)
	DecrementStock(dishID int64, quantity int) error
}

// Service decrements dish stock for paid orders. Consumption is idempotent:
// the order's consumed marker is claimed first with a conditional update, so
// duplicate webhook deliveries and the COD path can all call it safely.
type Service struct {
	repo   Repository
	bus    *events.EventBus
	logger *slog.Logger
}

func NewService(repo Repository, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{repo: repo, bus: bus, logger: logger}
}

func (s *Service) ConsumeForOrder(ctx context.Context, orderID int64) error {
	claimed, err := s.repo.MarkConsumed(orderID, time.Now())
	if err != nil {
		return errors.NewInternalError("failed to claim stock consumption", err)
	}
	if !claimed {
		s.logger.Debug("stock already consumed for order", "order_id", orderID)
		return nil
	}

	items, err := s.repo.ItemsForOrder(orderID)
	if err != nil {
		return errors.NewInternalError("failed to load order items", err)
	}

	for _, item := range items {
		if err := s.repo.DecrementStock(item.DishID, item.Quantity); err != nil {
			s.logger.Error("failed to decrement dish stock",
				"error", err,
				"order_id", orderID,
				"dish_id", item.DishID,
				"quantity", item.Quantity)
			return fmt.Errorf("decrement stock for dish %d: %w", item.DishID, err)
		}
	}

	s.logger.Info("stock consumed for order", "order_id", orderID, "items", len(items))
	s.bus.Publish(ctx, events.NewStockConsumedEvent(orderID))
	return nil
}
