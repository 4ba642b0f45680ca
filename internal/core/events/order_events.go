package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderStatusChanged = "order.status_changed"
	EventTypeStockConsumed      = "order.stock_consumed"
)

// OrderStatusChangedEvent is published whenever reconciliation (or a COD
// confirmation) moves an order's payment status. The realtime publisher
// relays it to subscribed clients.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        int64      `json:"order_id"`
	OrderCode      string     `json:"order_code"`
	PreviousStatus string     `json:"previous_status"`
	NewStatus      string     `json:"new_status"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

func NewOrderStatusChangedEvent(orderID int64, orderCode, previousStatus, newStatus string, paidAt *time.Time) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":        orderID,
				"order_code":      orderCode,
				"previous_status": previousStatus,
				"new_status":      newStatus,
			},
		},
		OrderID:        orderID,
		OrderCode:      orderCode,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		PaidAt:         paidAt,
	}
}

type StockConsumedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
}

func NewStockConsumedEvent(orderID int64) *StockConsumedEvent {
	return &StockConsumedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeStockConsumed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id": orderID,
			},
		},
		OrderID: orderID,
	}
}
