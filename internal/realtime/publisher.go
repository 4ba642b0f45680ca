package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gardenfresh/order-payments/internal/core/events"
)

// StatusUpdate is the wire shape of an order status change on the realtime
// channel.
type StatusUpdate struct {
	OrderID        int64  `json:"order_id"`
	OrderCode      string `json:"order_code"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
}

// Publisher relays order status change events from the in-process bus onto
// a durable topic exchange, one routing key per order, so clients can
// subscribe to just their order.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial realtime broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open realtime channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare realtime exchange: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *Publisher) PublishStatusChange(ctx context.Context, update StatusUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	key := RoutingKey(update.OrderID)
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/json",
		Body:         body,
	})
}

// RoutingKey is the per-order topic key status updates publish under.
func RoutingKey(orderID int64) string {
	return fmt.Sprintf("orders.%d.status", orderID)
}

// BindToBus subscribes the publisher to order status change events so every
// reconciliation transition reaches the realtime channel.
func (p *Publisher) BindToBus(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeOrderStatusChanged, func(ctx context.Context, event events.Event) error {
		statusEvent, ok := event.(*events.OrderStatusChangedEvent)
		if !ok {
			return fmt.Errorf("expected OrderStatusChangedEvent, got %T", event)
		}

		update := StatusUpdate{
			OrderID:        statusEvent.OrderID,
			OrderCode:      statusEvent.OrderCode,
			PreviousStatus: statusEvent.PreviousStatus,
			NewStatus:      statusEvent.NewStatus,
		}
		if err := p.PublishStatusChange(ctx, update); err != nil {
			p.logger.Error("failed to publish status update",
				"error", err, "order_id", update.OrderID)
			return err
		}
		return nil
	})

	p.logger.Info("realtime publisher bound to event bus", "exchange", p.exchange)
}
