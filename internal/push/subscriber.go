// Package push delivers server-side payment events for a single order.
package push

import (
	"context"

	"pickandplay/pkg/contracts"
)

// Subscriber opens a push channel scoped to one order.
type Subscriber interface {
	Subscribe(ctx context.Context, orderID string) (Subscription, error)
}

// Subscription streams events until Close is called or the transport
// fails. Either way the Events channel is closed.
type Subscription interface {
	Events() <-chan contracts.PaymentEvent
	Close() error
}
