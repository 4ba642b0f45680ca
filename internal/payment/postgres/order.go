package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/gardenfresh/order-payments/internal"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	paymentpkg "github.com/gardenfresh/order-payments/internal/payment"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) paymentpkg.OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByID(id int64) (*ordermodel.Order, error) {
	var o ordermodel.Order
	if err := r.db.First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) UpdatePaymentStatus(id int64, status string, method *string, paidAt *time.Time) error {
	updates := map[string]interface{}{
		"payment_status": status,
		"updated_at":     time.Now(),
	}
	if method != nil {
		updates["payment_method"] = *method
	}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}

	return r.db.Model(&ordermodel.Order{}).Where("id = ?", id).Updates(updates).Error
}
