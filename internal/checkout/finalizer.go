package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pickandplay/internal/storage"
)

type CartStore interface {
	ClearCart(ctx context.Context) error
	DeleteKey(ctx context.Context, key string) error
}

// Finalizer runs the side effects of a confirmed payment. One Finalizer
// lives as long as the shopper's session and remembers which orders were
// already announced.
type Finalizer struct {
	carts     CartStore
	notifier  Notifier
	navigator Navigator
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	notified map[string]struct{}
	wg       sync.WaitGroup
}

func NewFinalizer(carts CartStore, notifier Notifier, navigator Navigator, timeout time.Duration, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultOptions().DetachedTimeout
	}
	return &Finalizer{
		carts:     carts,
		notifier:  notifier,
		navigator: navigator,
		timeout:   timeout,
		logger:    logger,
		notified:  make(map[string]struct{}),
	}
}

// Finalize clears the cart, announces the order and navigates to the
// confirmation view. A failing step never stops the next one.
func (f *Finalizer) Finalize(ctx context.Context, orderID string) {
	f.step("clear cart", orderID, func() error {
		return f.clearCart(ctx)
	})
	f.step("notify", orderID, func() error {
		f.NotifyOnce(ctx, orderID)
		return nil
	})
	f.step("navigate", orderID, func() error {
		if f.navigator != nil {
			f.navigator.ShowConfirmation(orderID)
		}
		return nil
	})
}

func (f *Finalizer) step(name, orderID string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("finalize step panicked", "step", name, "order_id", orderID, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		f.logger.Error("finalize step failed", "step", name, "order_id", orderID, "err", err)
	}
}

func (f *Finalizer) clearCart(ctx context.Context) error {
	err := f.carts.ClearCart(ctx)
	if err == nil {
		return nil
	}
	f.logger.Warn("cart clear failed, removing raw cart key", "err", err)
	if delErr := f.carts.DeleteKey(ctx, storage.KeyCart); delErr != nil {
		return errors.Join(err, delErr)
	}
	return nil
}

// NotifyOnce fires the completion notification in the background the first
// time it sees orderID. It reports whether a notification was sent.
func (f *Finalizer) NotifyOnce(ctx context.Context, orderID string) bool {
	f.mu.Lock()
	if _, done := f.notified[orderID]; done {
		f.mu.Unlock()
		return false
	}
	f.notified[orderID] = struct{}{}
	f.mu.Unlock()

	if f.notifier == nil {
		return true
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("notification panicked", "order_id", orderID, "panic", r)
			}
		}()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		if err := f.notifier.NotifyCompleted(nctx, orderID); err != nil {
			f.logger.Warn("completion notification failed", "order_id", orderID, "err", err)
			return
		}
		f.logger.Info("completion notification sent", "order_id", orderID)
	}()
	return true
}

func (f *Finalizer) Notified(orderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.notified[orderID]
	return ok
}

// Wait blocks until background notifications are done.
func (f *Finalizer) Wait() {
	f.wg.Wait()
}
