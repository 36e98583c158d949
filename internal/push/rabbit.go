package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"pickandplay/pkg/contracts"
	"pickandplay/pkg/messaging"

	"github.com/rabbitmq/amqp091-go"
)

// RabbitSubscriber listens on the payments fanout exchange with a private
// queue per subscription and keeps only the events of the watched order.
type RabbitSubscriber struct {
	url      string
	exchange string
	logger   *slog.Logger
}

func NewRabbitSubscriber(url, exchange string, logger *slog.Logger) *RabbitSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &RabbitSubscriber{url: url, exchange: exchange, logger: logger}
}

func (s *RabbitSubscriber) Subscribe(ctx context.Context, orderID string) (Subscription, error) {
	consumer, err := messaging.NewEphemeralConsumer(s.url, s.exchange, s.logger)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", s.exchange, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &rabbitSubscription{
		consumer: consumer,
		cancel:   cancel,
		events:   make(chan contracts.PaymentEvent, 16),
	}
	logger := s.logger.With("order_id", orderID, "queue", consumer.Queue())

	go func() {
		defer close(sub.events)
		err := consumer.Start(subCtx, func(ctx context.Context, msg amqp091.Delivery) {
			sub.deliver(ctx, orderID, msg, logger)
		})
		if err != nil && subCtx.Err() == nil {
			logger.Warn("payment event consumer stopped", "err", err)
		}
	}()

	return sub, nil
}

type rabbitSubscription struct {
	consumer *messaging.Consumer
	cancel   context.CancelFunc
	events   chan contracts.PaymentEvent
	once     sync.Once
}

func (s *rabbitSubscription) Events() <-chan contracts.PaymentEvent {
	return s.events
}

func (s *rabbitSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.consumer.Close()
	})
	return err
}

func (s *rabbitSubscription) deliver(ctx context.Context, orderID string, msg amqp091.Delivery, logger *slog.Logger) {
	var evt contracts.PaymentEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		logger.Error("invalid payment event", "err", err)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)

	if evt.OrderID != orderID {
		return
	}
	select {
	case s.events <- evt:
	case <-ctx.Done():
	}
}
