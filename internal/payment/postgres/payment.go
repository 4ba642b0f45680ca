package postgres

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/gardenfresh/order-payments/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.PaymentRepository {
	return &PaymentRepository{db: db}
}

// Upsert writes the latest-attempt slot for an order, replacing any prior
// attempt in place.
func (r *PaymentRepository) Upsert(p *paymentmodel.Payment) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"amount", "method", "status", "gateway", "gateway_code",
			"external_ref", "checkout_url", "qr_code", "paid_at", "updated_at",
		}),
	}).Create(p).Error
}

func (r *PaymentRepository) GetByOrderID(orderID int64) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.Where("order_id = ?", orderID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByExternalRef(ref string) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.Where("external_ref = ?", ref).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByGatewayCode(code int64) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.Where("gateway_code = ?", code).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateOnNotification mutates the slot from a gateway notification. Empty
// external ref and zero amount mean "leave the stored value alone".
func (r *PaymentRepository) UpdateOnNotification(orderID int64, status, externalRef string, amount int64, paidAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if externalRef != "" {
		updates["external_ref"] = externalRef
	}
	if amount > 0 {
		updates["amount"] = amount
	}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}

	return r.db.Model(&paymentmodel.Payment{}).Where("order_id = ?", orderID).Updates(updates).Error
}

func (r *PaymentRepository) AppendLog(l *paymentmodel.PaymentLog) error {
	return r.db.Create(l).Error
}

func (r *PaymentRepository) ListStalePending(olderThan time.Time, limit int) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	err := r.db.
		Where("status = ? AND created_at < ?", paymentmodel.StatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
