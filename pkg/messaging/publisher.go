package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// PublishJSON encodes v and hands it to p.
func PublishJSON(ctx context.Context, p Publisher, routingKey string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", routingKey, err)
	}
	return p.Publish(ctx, routingKey, payload)
}

// RabbitPublisher publishes to one fanout exchange over a shared channel.
// The channel is reopened on the next publish after the broker closes it.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string

	mu sync.Mutex
	ch *amqp091.Channel
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	p := &RabbitPublisher{conn: conn, exchange: exchange}
	ch, err := p.channelLocked()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := declareFanout(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
}

func (p *RabbitPublisher) channelLocked() (*amqp091.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	return p.conn.Close()
}

func declareFanout(ch *amqp091.Channel, exchange string) error {
	err := ch.ExchangeDeclare(exchange, amqp091.ExchangeFanout, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}
