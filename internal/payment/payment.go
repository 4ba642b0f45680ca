package payment

import (
	"context"
	"time"

	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
)

// OrderRepository is the slice of order persistence the payment flow needs.
type OrderRepository interface {
	GetByID(id int64) (*ordermodel.Order, error)
	UpdatePaymentStatus(id int64, status string, method *string, paidAt *time.Time) error
}

// PaymentRepository manages the single latest-attempt payment slot per
// order plus the append-only notification log.
type PaymentRepository interface {
	Upsert(p *paymentmodel.Payment) error
	GetByOrderID(orderID int64) (*paymentmodel.Payment, error)
	GetByExternalRef(ref string) (*paymentmodel.Payment, error)
	GetByGatewayCode(code int64) (*paymentmodel.Payment, error)
	UpdateOnNotification(orderID int64, status, externalRef string, amount int64, paidAt *time.Time) error
	AppendLog(l *paymentmodel.PaymentLog) error
	ListStalePending(olderThan time.Time, limit int) ([]*paymentmodel.Payment, error)
}

// InventoryAPI decrements dish stock for a paid order. Implementations must
// be idempotent: reconciliation may invoke it once per duplicate delivery.
type InventoryAPI interface {
	ConsumeForOrder(ctx context.Context, orderID int64) error
}
