package checkout

import (
	"context"
	"time"

	"pickandplay/internal/order"
	"pickandplay/internal/payment"

	"github.com/shopspring/decimal"
)

type OrderAPI interface {
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	UpdateOrderItems(ctx context.Context, orderID string, items []order.LineItem) error
	CreateOrder(ctx context.Context, req order.CreateRequest) (string, error)
}

type PaymentAPI interface {
	RequestArtifact(ctx context.Context, orderID string, amount decimal.Decimal) (*payment.Artifact, error)
	GetPaymentStatus(ctx context.Context, orderID string) (*payment.StatusReport, error)
	SubmitScan(ctx context.Context, req payment.ScanRequest) error
}

type Notifier interface {
	NotifyCompleted(ctx context.Context, orderID string) error
}

// Navigator hands the shopper over to the order confirmation view.
type Navigator interface {
	ShowConfirmation(orderID string)
}

type NavigatorFunc func(orderID string)

func (f NavigatorFunc) ShowConfirmation(orderID string) {
	f(orderID)
}

type Options struct {
	Currency      string
	PaymentMethod string
	Shipping      order.Shipping

	PollInterval    time.Duration
	PollMaxAttempts int

	// AutoConfirm simulates a scan after a countdown. Development only.
	AutoConfirm        bool
	AutoConfirmSeconds int
	CountdownTick      time.Duration

	SubmitCooldown  time.Duration
	DetachedTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Currency:           "USD",
		PaymentMethod:      "qr",
		Shipping:           order.PlaceholderShipping,
		PollInterval:       20 * time.Second,
		PollMaxAttempts:    6,
		AutoConfirmSeconds: 5,
		CountdownTick:      time.Second,
		SubmitCooldown:     time.Second,
		DetachedTimeout:    10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Currency == "" {
		o.Currency = def.Currency
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = def.PaymentMethod
	}
	if o.Shipping == (order.Shipping{}) {
		o.Shipping = def.Shipping
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.PollMaxAttempts <= 0 {
		o.PollMaxAttempts = def.PollMaxAttempts
	}
	if o.AutoConfirmSeconds <= 0 {
		o.AutoConfirmSeconds = def.AutoConfirmSeconds
	}
	if o.CountdownTick <= 0 {
		o.CountdownTick = def.CountdownTick
	}
	if o.SubmitCooldown < 0 {
		o.SubmitCooldown = 0
	}
	if o.DetachedTimeout <= 0 {
		o.DetachedTimeout = def.DetachedTimeout
	}
	return o
}
