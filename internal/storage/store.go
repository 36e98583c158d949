package storage

import (
	"context"
	"errors"

	"pickandplay/internal/cart"
)

const (
	KeyPendingOrder = "pending_order_id"
	KeyCart         = "cart"
)

var ErrUnknownKey = errors.New("unknown storage key")

// Store is the durable client-side state of one shopper: the pending order
// id and the cart. Every implementation is namespaced to a single shopper.
type Store interface {
	PendingOrderID(ctx context.Context) (string, error)
	SetPendingOrderID(ctx context.Context, orderID string) error
	ClearPendingOrderID(ctx context.Context) error

	LoadCart(ctx context.Context) (cart.Cart, error)
	SaveCart(ctx context.Context, c cart.Cart) error
	// ClearCart stores an empty cart.
	ClearCart(ctx context.Context) error
	// DeleteKey removes the raw value under one of the Key* names.
	DeleteKey(ctx context.Context, key string) error

	Close() error
}

func validKey(key string) error {
	switch key {
	case KeyPendingOrder, KeyCart:
		return nil
	default:
		return ErrUnknownKey
	}
}
