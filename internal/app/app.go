package app

import (
	"context"
	"fmt"
	"log/slog"

	"pickandplay/internal/checkout"
	"pickandplay/internal/config"
	"pickandplay/internal/notify"
	"pickandplay/internal/push"
	"pickandplay/internal/shopapi"
	"pickandplay/internal/storage"
	"pickandplay/pkg/messaging"
)

// App is one shopper's process-wide checkout context. Sessions created from
// it share the store and the set of already-notified orders.
type App struct {
	cfg        config.Config
	logger     *slog.Logger
	client     *shopapi.Client
	store      storage.Store
	subscriber push.Subscriber
	notifier   checkout.Notifier
	finalizer  *checkout.Finalizer
	closers    []func() error
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, nav checkout.Navigator) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
		client: shopapi.NewClient(cfg.ShopURL, cfg.UserID, cfg.Currency, cfg.HTTPTimeout, logger.With("component", "shopapi")),
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	a.subscriber, err = a.newSubscriber()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.notifier, err = a.newNotifier()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.finalizer = checkout.NewFinalizer(store, a.notifier, nav, cfg.DetachedTimeout, logger.With("component", "finalizer"))
	return a, nil
}

func newStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StateBackend {
	case config.StateMemory, "":
		return storage.NewMemoryStore(), nil
	case config.StateRedis:
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStore(client, cfg.StateNamespace, cfg.StateTTL), nil
	case config.StatePostgres:
		pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(pool, cfg.StateNamespace), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

func (a *App) newSubscriber() (push.Subscriber, error) {
	logger := a.logger.With("component", "push")
	switch a.cfg.PushTransport {
	case config.TransportWebsocket, "":
		return push.NewWebsocketSubscriber(a.cfg.ShopURL, a.cfg.UserID, logger), nil
	case config.TransportRabbit:
		return push.NewRabbitSubscriber(a.cfg.RabbitURL, a.cfg.PaymentsExchange, logger), nil
	case config.TransportNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown push transport %q", a.cfg.PushTransport)
	}
}

func (a *App) newNotifier() (checkout.Notifier, error) {
	switch a.cfg.NotifyTransport {
	case config.TransportHTTP, "":
		return a.client, nil
	case config.TransportRabbit:
		publisher, err := messaging.NewRabbitPublisher(a.cfg.RabbitURL, a.cfg.CheckoutExchange)
		if err != nil {
			return nil, err
		}
		n := notify.NewRabbitNotifier(publisher)
		a.closers = append(a.closers, n.Close)
		return n, nil
	case config.TransportNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown notify transport %q", a.cfg.NotifyTransport)
	}
}

func (a *App) Options() checkout.Options {
	opts := checkout.DefaultOptions()
	opts.Currency = a.cfg.Currency
	opts.PaymentMethod = a.cfg.PaymentMethod
	opts.PollInterval = a.cfg.PollInterval
	opts.PollMaxAttempts = a.cfg.PollMaxAttempts
	opts.AutoConfirm = a.cfg.AutoConfirm
	opts.AutoConfirmSeconds = a.cfg.AutoConfirmSeconds
	opts.SubmitCooldown = a.cfg.SubmitCooldown
	opts.DetachedTimeout = a.cfg.DetachedTimeout
	return opts
}

// NewSession opens a checkout session bound to this app's collaborators.
func (a *App) NewSession(onChange func(checkout.View)) *checkout.Session {
	deps := checkout.Deps{
		Orders:    a.client,
		Payments:  a.client,
		Store:     a.store,
		Finalizer: a.finalizer,
		Logger:    a.logger.With("component", "checkout"),
		OnChange:  onChange,
	}
	if a.subscriber != nil {
		deps.Subscriber = a.subscriber
	}
	return checkout.NewSession(deps, a.Options())
}

func (a *App) Client() *shopapi.Client {
	return a.client
}

func (a *App) Store() storage.Store {
	return a.store
}

func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Close waits for pending notifications and releases connections.
func (a *App) Close() {
	if a.finalizer != nil {
		a.finalizer.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", "err", err)
		}
	}
	a.closers = nil
}
