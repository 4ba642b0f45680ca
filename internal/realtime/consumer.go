package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer feeds order status updates from the realtime exchange into a
// channel. It backs the push leg of the client payment orchestration.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewConsumer(url, exchange string, logger *slog.Logger) (*Consumer, error) {
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

	return &Consumer{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

func (c *Consumer) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Subscribe binds an exclusive auto-deleted queue to one order's routing key
// and streams its status updates until ctx is done.
func (c *Consumer) Subscribe(ctx context.Context, orderID int64) (<-chan StatusUpdate, error) {
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare subscription queue: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, RoutingKey(orderID), c.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind subscription queue: %w", err)
	}

	deliveries, err := c.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume subscription queue: %w", err)
	}

	updates := make(chan StatusUpdate)
	go func() {
		defer close(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var update StatusUpdate
				if err := json.Unmarshal(d.Body, &update); err != nil {
					c.logger.Error("malformed status update", "error", err)
					continue
				}
				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return updates, nil
}
