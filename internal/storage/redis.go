package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pickandplay/internal/cart"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisStore keeps the shopper's state under namespaced keys. A zero ttl
// keeps keys forever.
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisStore) key(name string) string {
	if name == KeyCart {
		return fmt.Sprintf("cart:user:%s", s.namespace)
	}
	return fmt.Sprintf("checkout:%s:%s", s.namespace, name)
}

func (s *RedisStore) PendingOrderID(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key(KeyPendingOrder)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pending order: %w", err)
	}
	return val, nil
}

func (s *RedisStore) SetPendingOrderID(ctx context.Context, orderID string) error {
	if err := s.client.Set(ctx, s.key(KeyPendingOrder), orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("set pending order: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearPendingOrderID(ctx context.Context) error {
	return s.DeleteKey(ctx, KeyPendingOrder)
}

func (s *RedisStore) LoadCart(ctx context.Context) (cart.Cart, error) {
	data, err := s.client.Get(ctx, s.key(KeyCart)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.Cart{}, nil
	}
	if err != nil {
		return cart.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	var c cart.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return cart.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

func (s *RedisStore) SaveCart(ctx context.Context, c cart.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, s.key(KeyCart), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set cart: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearCart(ctx context.Context) error {
	return s.SaveCart(ctx, cart.Cart{UpdatedAt: time.Now().UTC()})
}

func (s *RedisStore) DeleteKey(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
