package payment

import (
	"encoding/json"
	"time"
)

// Latest-attempt statuses for the single mutable payment row per order.
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusMismatch = "mismatch"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
)

// Payment is the latest payment attempt for an order. There is exactly one
// row per order; gateway notifications update it in place. The raw gateway
// traffic is preserved separately in PaymentLog.
type Payment struct {
	ID          int64      `gorm:"primaryKey"`
	OrderID     int64      `gorm:"column:order_id;not null;uniqueIndex"`
	Amount      int64      `gorm:"column:amount;not null"`
	Method      string     `gorm:"column:method;default:bank"`
	Status      string     `gorm:"column:status;default:pending"`
	Gateway     string     `gorm:"column:gateway;not null"`
	GatewayCode int64      `gorm:"column:gateway_code;index"`
	ExternalRef string     `gorm:"column:external_ref;index"`
	CheckoutURL string     `gorm:"column:checkout_url"`
	QRCode      string     `gorm:"column:qr_code"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;default:now()"`
}

// PaymentLog is an append-only record of every gateway notification,
// including duplicates and mismatches that did not change order state.
type PaymentLog struct {
	ID          int64           `gorm:"primaryKey"`
	OrderID     int64           `gorm:"column:order_id;index"`
	GatewayCode int64           `gorm:"column:gateway_code"`
	ExternalRef string          `gorm:"column:external_ref"`
	Amount      int64           `gorm:"column:amount"`
	RawStatus   string          `gorm:"column:raw_status"`
	Signal      string          `gorm:"column:signal"`
	Outcome     string          `gorm:"column:outcome"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;default:now()"`
}
