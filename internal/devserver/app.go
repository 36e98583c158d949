package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pickandplay/internal/config"
	"pickandplay/internal/logging"
	"pickandplay/pkg/contracts"
	"pickandplay/pkg/messaging"

	"github.com/rabbitmq/amqp091-go"
)

type App struct {
	cfg       config.DevServer
	logger    *slog.Logger
	book      *Book
	hub       *Hub
	publisher messaging.Publisher
	consumer  *messaging.Consumer
	httpSrv   *http.Server
}

func New(cfg config.DevServer, logger *slog.Logger) (*App, error) {
	book := NewBook(cfg.Currency, cfg.Stock)
	hub := NewHub()

	a := &App{cfg: cfg, logger: logger, book: book, hub: hub}

	if cfg.RabbitURL != "" {
		publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.PaymentsExchange)
		if err != nil {
			return nil, err
		}
		consumer, err := messaging.NewRabbitConsumer(cfg.RabbitURL, cfg.CheckoutExchange, cfg.CheckoutQueue, logger)
		if err != nil {
			publisher.Close()
			return nil, err
		}
		a.publisher = publisher
		a.consumer = consumer
	}

	a.httpSrv = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewServer(book, hub, a.publisher, logger),
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go a.hub.Run(ctx)

	if a.consumer != nil {
		go func() {
			errCh <- a.consumer.Start(ctx, a.handleCheckoutMessage)
		}()
	}

	go func() {
		a.logger.Info("shop devserver listening", "addr", a.cfg.HTTPAddr, "rabbit", a.consumer != nil)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	if a.consumer != nil {
		a.consumer.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
}

func (a *App) handleCheckoutMessage(ctx context.Context, msg amqp091.Delivery) {
	var evt contracts.CheckoutCompletedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		a.logger.Error("invalid checkout event", "err", err)
		_ = msg.Nack(false, false)
		return
	}

	if _, err := a.book.RecordNotification("", evt.OrderID, "rabbit"); err != nil {
		a.logger.Warn("checkout event for unknown order", "order_id", evt.OrderID, "err", err)
		_ = msg.Nack(false, false)
		return
	}

	a.logger.Info("checkout completion received", "order_id", evt.OrderID, "source", "rabbit")
	_ = msg.Ack(false)
}

func Run() error {
	cfg := config.LoadDevServer()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init devserver: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
