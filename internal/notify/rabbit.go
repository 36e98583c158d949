package notify

import (
	"context"
	"fmt"
	"time"

	"pickandplay/pkg/contracts"
	"pickandplay/pkg/messaging"

	"github.com/google/uuid"
)

const RoutingKeyCheckoutCompleted = "checkout.completed"

// RabbitNotifier announces completed checkouts on the checkout exchange
// instead of calling the backend's notify endpoint.
type RabbitNotifier struct {
	publisher messaging.Publisher
	now       func() time.Time
}

func NewRabbitNotifier(publisher messaging.Publisher) *RabbitNotifier {
	return &RabbitNotifier{publisher: publisher, now: time.Now}
}

func (n *RabbitNotifier) NotifyCompleted(ctx context.Context, orderID string) error {
	evt := contracts.CheckoutCompletedEvent{
		EventID:     uuid.New().String(),
		OrderID:     orderID,
		CompletedAt: n.now().UTC(),
	}
	if err := messaging.PublishJSON(ctx, n.publisher, RoutingKeyCheckoutCompleted, evt); err != nil {
		return fmt.Errorf("publish checkout event: %w", err)
	}
	return nil
}

func (n *RabbitNotifier) Close() error {
	return n.publisher.Close()
}
