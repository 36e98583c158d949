package checkout

import (
	"context"
	"log/slog"

	"pickandplay/internal/cart"
	"pickandplay/internal/order"
)

type PendingOrders interface {
	PendingOrderID(ctx context.Context) (string, error)
	ClearPendingOrderID(ctx context.Context) error
}

// Resolver turns the cart into an order id, reusing a still-pending order
// when one is known and creating a new one otherwise.
type Resolver struct {
	orders  OrderAPI
	pending PendingOrders
	opts    Options
	logger  *slog.Logger
}

func NewResolver(orders OrderAPI, pending PendingOrders, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{orders: orders, pending: pending, opts: opts.withDefaults(), logger: logger}
}

type ResolveRequest struct {
	Customer string
	Cart     cart.Cart
	// Candidate is an order resolved earlier in the same session. It takes
	// precedence over the stored pending order id.
	Candidate string
}

func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (string, error) {
	items := req.Cart.LineItems()

	candidate := req.Candidate
	if candidate == "" {
		id, err := r.pending.PendingOrderID(ctx)
		if err != nil {
			r.logger.Warn("read pending order id", "err", err)
		}
		candidate = id
	}

	if candidate != "" {
		reused, err := r.reuse(ctx, candidate, items)
		if err != nil {
			return "", err
		}
		if reused {
			r.confirm(ctx, candidate)
			return candidate, nil
		}
	}

	orderID, err := r.orders.CreateOrder(ctx, order.CreateRequest{
		CustomerName:  req.Customer,
		Shipping:      r.opts.Shipping,
		Total:         order.Total(items),
		PaymentMethod: r.opts.PaymentMethod,
		Items:         items,
	})
	if err != nil {
		return "", abort(err)
	}
	r.logger.Info("order created", "order_id", orderID, "items", len(items))

	r.confirm(ctx, orderID)
	return orderID, nil
}

// reuse replaces the items of a pending order. A stale or unreadable order is
// forgotten so the caller creates a fresh one; a rejected update aborts.
func (r *Resolver) reuse(ctx context.Context, orderID string, items []order.LineItem) (bool, error) {
	o, err := r.orders.GetOrder(ctx, orderID)
	if err != nil || !o.Status.Reusable() {
		attrs := []any{"order_id", orderID}
		if err != nil {
			attrs = append(attrs, "err", err)
		} else {
			attrs = append(attrs, "status", o.Status)
		}
		r.logger.Info("discarding stale pending order", attrs...)
		if err := r.pending.ClearPendingOrderID(ctx); err != nil {
			r.logger.Warn("clear pending order id", "err", err)
		}
		return false, nil
	}

	if err := r.orders.UpdateOrderItems(ctx, orderID, items); err != nil {
		return false, abort(err)
	}
	r.logger.Info("pending order reused", "order_id", orderID, "items", len(items))
	return true, nil
}

func (r *Resolver) confirm(ctx context.Context, orderID string) {
	if err := r.pending.ClearPendingOrderID(ctx); err != nil {
		r.logger.Warn("clear pending order id", "order_id", orderID, "err", err)
	}
}
