package storage

import (
	"context"
	"sync"
	"time"

	"pickandplay/internal/cart"
)

type MemoryStore struct {
	mu      sync.Mutex
	pending string
	cart    *cart.Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) PendingOrderID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *MemoryStore) SetPendingOrderID(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = orderID
	return nil
}

func (s *MemoryStore) ClearPendingOrderID(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
	return nil
}

func (s *MemoryStore) LoadCart(_ context.Context) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil {
		return cart.Cart{}, nil
	}
	c := *s.cart
	c.Items = append([]cart.Item(nil), s.cart.Items...)
	return c, nil
}

func (s *MemoryStore) SaveCart(_ context.Context, c cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Items = append([]cart.Item(nil), c.Items...)
	s.cart = &c
	return nil
}

func (s *MemoryStore) ClearCart(ctx context.Context) error {
	return s.SaveCart(ctx, cart.Cart{UpdatedAt: time.Now().UTC()})
}

func (s *MemoryStore) DeleteKey(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case KeyPendingOrder:
		s.pending = ""
	case KeyCart:
		s.cart = nil
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
