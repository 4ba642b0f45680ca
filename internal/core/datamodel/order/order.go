package order

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Payment lifecycle of an order. Transitions only move forward: once an
// order reaches a terminal status it stays there, with the single exception
// of the demo-paid upgrade to paid.
const (
	StatusUnpaid         = "unpaid"
	StatusPendingConfirm = "pending_confirm"
	StatusPaid           = "paid"
	StatusPaidDemo       = "paid_demo"
	StatusCanceled       = "canceled"
	StatusExpired        = "expired"
	StatusFailed         = "failed"
)

const (
	MethodBank = "bank"
	MethodCOD  = "cod"
)

// JSONB round-trips raw JSON through a jsonb column. Postgres hands the
// value back as []byte, the sqlite test backend as string.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
	return nil
}

type Order struct {
	ID              int64      `gorm:"primaryKey"`
	Code            string     `gorm:"column:code;not null;uniqueIndex"`
	PaymentStatus   string     `gorm:"column:payment_status;default:unpaid"`
	PaymentMethod   *string    `gorm:"column:payment_method"`
	TotalAmount     int64      `gorm:"column:total_amount;not null"`
	PaidAt          *time.Time `gorm:"column:paid_at"`
	StockConsumedAt *time.Time `gorm:"column:stock_consumed_at"`
	Note            JSONB      `gorm:"column:note;type:jsonb"`
	CreatedAt       time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;default:now()"`
}

type OrderItem struct {
	ID       int64 `gorm:"primaryKey"`
	OrderID  int64 `gorm:"column:order_id;not null;index"`
	DishID   int64 `gorm:"column:dish_id;not null"`
	Quantity int   `gorm:"column:quantity;not null"`
}

// CodeForID renders the human-readable display code for an order id.
func CodeForID(id int64) string {
	return fmt.Sprintf("GDN-%06d", id)
}

// IsTerminal reports whether a status admits no further transitions other
// than the paid_demo -> paid upgrade.
func IsTerminal(status string) bool {
	switch status {
	case StatusPaid, StatusPaidDemo, StatusCanceled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// IsSettled reports whether the order has been accepted as paid in some form.
func IsSettled(status string) bool {
	return status == StatusPaid || status == StatusPaidDemo
}
