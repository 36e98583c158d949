package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pickandplay/internal/cart"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func NewPostgresStore(pool *pgxpool.Pool, namespace string) *PostgresStore {
	return &PostgresStore{pool: pool, namespace: namespace}
}

func (s *PostgresStore) get(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value
		FROM client_state
		WHERE namespace = $1 AND key = $2`,
		s.namespace, key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PostgresStore) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO client_state (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		s.namespace, key, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) PendingOrderID(ctx context.Context) (string, error) {
	var id string
	if _, err := s.get(ctx, KeyPendingOrder, &id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) SetPendingOrderID(ctx context.Context, orderID string) error {
	return s.put(ctx, KeyPendingOrder, orderID)
}

func (s *PostgresStore) ClearPendingOrderID(ctx context.Context) error {
	return s.DeleteKey(ctx, KeyPendingOrder)
}

func (s *PostgresStore) LoadCart(ctx context.Context) (cart.Cart, error) {
	var c cart.Cart
	if _, err := s.get(ctx, KeyCart, &c); err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

func (s *PostgresStore) SaveCart(ctx context.Context, c cart.Cart) error {
	return s.put(ctx, KeyCart, c)
}

func (s *PostgresStore) ClearCart(ctx context.Context) error {
	return s.SaveCart(ctx, cart.Cart{UpdatedAt: time.Now().UTC()})
}

func (s *PostgresStore) DeleteKey(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM client_state
		WHERE namespace = $1 AND key = $2`,
		s.namespace, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
