package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery and is responsible for acking it.
type Handler func(ctx context.Context, msg amqp091.Delivery)

type Consumer struct {
	conn     *amqp091.Connection
	queue    string
	tag      string
	prefetch int
	logger   *slog.Logger
}

// NewRabbitConsumer binds a durable named queue to a fanout exchange.
func NewRabbitConsumer(url, exchange, queue string, logger *slog.Logger) (*Consumer, error) {
	return newConsumer(url, exchange, queue, true, logger)
}

// NewEphemeralConsumer binds a server-named exclusive queue that is dropped
// together with the connection. Used for short-lived per-order listeners.
func NewEphemeralConsumer(url, exchange string, logger *slog.Logger) (*Consumer, error) {
	return newConsumer(url, exchange, "", false, logger)
}

func newConsumer(url, exchange, queue string, durable bool, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareFanout(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	// Durable queues survive restarts; ephemeral ones are exclusive and go
	// away with the connection.
	q, err := ch.QueueDeclare(queue, durable, !durable, !durable, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind %s to %s: %w", q.Name, exchange, err)
	}

	prefetch := 32
	if !durable {
		prefetch = 8
	}
	return &Consumer{
		conn:     conn,
		queue:    q.Name,
		tag:      "checkout-" + uuid.NewString()[:8],
		prefetch: prefetch,
		logger:   logger.With("queue", q.Name),
	}, nil
}

func (c *Consumer) Queue() string {
	return c.queue
}

// Start delivers messages to handler until ctx is done or the broker closes
// the channel. A panicking handler nacks its delivery without requeue.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ch.Cancel(c.tag, false)
	})
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("consumer channel closed")
				return nil
			}
			c.dispatch(ctx, handler, msg)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, handler Handler, msg amqp091.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked", "message_id", msg.MessageId, "panic", r)
			_ = msg.Nack(false, false)
		}
	}()
	handler(ctx, msg)
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}
