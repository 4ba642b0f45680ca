package postgres

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	dishmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/dish"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	"github.com/gardenfresh/order-payments/internal/inventory"
)

type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) inventory.Repository {
	return &InventoryRepository{db: db}
}

// MarkConsumed claims the consumption marker. The IS NULL guard makes the
// claim succeed exactly once per order regardless of concurrent callers.
func (r *InventoryRepository) MarkConsumed(orderID int64, at time.Time) (bool, error) {
	result := r.db.Model(&ordermodel.Order{}).
		Where("id = ? AND stock_consumed_at IS NULL", orderID).
		Update("stock_consumed_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *InventoryRepository) ItemsForOrder(orderID int64) ([]ordermodel.OrderItem, error) {
	var items []ordermodel.OrderItem
	err := r.db.Where("order_id = ?", orderID).Find(&items).Error
	return items, err
}

// DecrementStock refuses to take stock below zero.
func (r *InventoryRepository) DecrementStock(dishID int64, quantity int) error {
	result := r.db.Model(&dishmodel.Dish{}).
		Where("id = ? AND stock >= ?", dishID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("insufficient stock for dish %d", dishID)
	}
	return nil
}
