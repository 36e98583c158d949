package devserver_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pickandplay/internal/cart"
	"pickandplay/internal/checkout"
	"pickandplay/internal/devserver"
	"pickandplay/internal/order"
	"pickandplay/internal/payment"
	"pickandplay/internal/push"
	"pickandplay/internal/shopapi"
	"pickandplay/internal/storage"
	"pickandplay/pkg/contracts"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	book   *devserver.Book
	srv    *httptest.Server
	client *shopapi.Client
	logger *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	book := devserver.NewBook("USD", map[string]int{"strat-01": 2})
	hub := devserver.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(devserver.NewServer(book, hub, nil, logger))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &fixture{
		book:   book,
		srv:    srv,
		client: shopapi.NewClient(srv.URL, "shopper-1", "USD", 5*time.Second, logger),
		logger: logger,
	}
}

func strat(qty int) []order.LineItem {
	return []order.LineItem{{ProductID: "strat-01", Quantity: qty, UnitPrice: decimal.NewFromInt(25)}}
}

func TestServer_OrderLifecycleThroughClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.client.CreateOrder(ctx, order.CreateRequest{CustomerName: "Ada", Items: strat(1), PaymentMethod: "qr"})
	require.NoError(t, err)

	require.NoError(t, f.client.UpdateOrderItems(ctx, id, strat(2)))

	o, err := f.client.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "50", o.Total.String())

	art, err := f.client.RequestArtifact(ctx, id, o.Total)
	require.NoError(t, err)
	assert.False(t, art.Degraded)
	assert.NotEmpty(t, art.Code)

	require.NoError(t, f.client.SubmitScan(ctx, payment.ScanRequest{
		OrderID:        id,
		Code:           art.Code,
		TransactionRef: "tx-1",
		Amount:         o.Total,
		Currency:       "USD",
	}))

	report, err := f.client.GetPaymentStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Settled())

	require.NoError(t, f.client.NotifyCompleted(ctx, id))
	assert.Len(t, f.book.Notifications(), 1)
}

func TestServer_StockErrorReachesShopper(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.client.CreateOrder(ctx, order.CreateRequest{CustomerName: "Ada", Items: strat(1)})
	require.NoError(t, err)

	err = f.client.UpdateOrderItems(ctx, id, strat(5))

	var apiErr *shopapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.UserMessage(), "Only 2 of strat-01 left")
}

func TestServer_UnknownOrderIs404(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.GetOrder(context.Background(), "404")

	var apiErr *shopapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.NotFound())
}

func TestServer_WebsocketStreamsPaymentEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.client.CreateOrder(ctx, order.CreateRequest{CustomerName: "Ada", Items: strat(2)})
	require.NoError(t, err)
	art, err := f.client.RequestArtifact(ctx, id, decimal.NewFromInt(50))
	require.NoError(t, err)

	sub, err := push.NewWebsocketSubscriber(f.srv.URL, "shopper-1", f.logger).Subscribe(ctx, id)
	require.NoError(t, err)
	defer sub.Close()

	first := nextEvent(t, sub)
	assert.Equal(t, contracts.PaymentPending, first.Status)
	assert.False(t, first.IndicatesPaid())

	require.NoError(t, f.client.SubmitScan(ctx, payment.ScanRequest{OrderID: id, Code: art.Code, TransactionRef: "tx-1", Amount: decimal.NewFromInt(20)}))
	partial := nextEvent(t, sub)
	assert.Equal(t, "20", partial.Collected.String())
	assert.False(t, partial.IndicatesPaid())

	require.NoError(t, f.client.SubmitScan(ctx, payment.ScanRequest{OrderID: id, Code: art.Code, TransactionRef: "tx-2"}))
	paid := nextEvent(t, sub)
	assert.True(t, paid.IndicatesPaid())
	assert.Equal(t, id, paid.OrderID)
}

func TestServer_WebsocketRejectsUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := push.NewWebsocketSubscriber(f.srv.URL, "", f.logger).Subscribe(context.Background(), "404")

	assert.Error(t, err)
}

func nextEvent(t *testing.T, sub push.Subscription) contracts.PaymentEvent {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "event stream closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no payment event received")
		return contracts.PaymentEvent{}
	}
}

func TestCheckout_EndToEndAutoConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	store := storage.NewMemoryStore()
	var c cart.Cart
	require.NoError(t, c.Add(cart.Item{ProductID: "strat-01", Name: "Stratocaster", Quantity: 1, UnitPrice: decimal.NewFromInt(25)}))
	require.NoError(t, store.SaveCart(ctx, c))

	confirmed := make(chan string, 1)
	finalizer := checkout.NewFinalizer(store, f.client, checkout.NavigatorFunc(func(orderID string) {
		confirmed <- orderID
	}), time.Second, f.logger)

	session := checkout.NewSession(checkout.Deps{
		Orders:     f.client,
		Payments:   f.client,
		Subscriber: push.NewWebsocketSubscriber(f.srv.URL, "shopper-1", f.logger),
		Store:      store,
		Finalizer:  finalizer,
		Logger:     f.logger,
	}, checkout.Options{
		PollInterval:       time.Hour,
		AutoConfirm:        true,
		AutoConfirmSeconds: 2,
		CountdownTick:      20 * time.Millisecond,
	})
	defer session.Close()

	require.NoError(t, session.Checkout(ctx, "Ada"))

	var orderID string
	select {
	case orderID = <-confirmed:
	case <-time.After(3 * time.Second):
		t.Fatal("checkout never confirmed")
	}
	finalizer.Wait()

	assert.Equal(t, checkout.StateCompleted, session.View().State)
	assert.Contains(t, []checkout.Source{checkout.SourceAutoConfirm, checkout.SourcePush}, session.View().CompletedBy)

	saved, err := store.LoadCart(ctx)
	require.NoError(t, err)
	assert.True(t, saved.Empty())

	require.Len(t, f.book.Notifications(), 1)
	assert.Equal(t, orderID, f.book.Notifications()[0].OrderID)

	require.Eventually(t, func() bool {
		report, err := f.book.Status("", orderID)
		return err == nil && report.Settled()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckout_EndToEndPushAfterManualScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	store := storage.NewMemoryStore()
	var c cart.Cart
	require.NoError(t, c.Add(cart.Item{ProductID: "strat-01", Quantity: 2, UnitPrice: decimal.NewFromInt(25)}))
	require.NoError(t, store.SaveCart(ctx, c))

	confirmed := make(chan string, 1)
	session := checkout.NewSession(checkout.Deps{
		Orders:     f.client,
		Payments:   f.client,
		Subscriber: push.NewWebsocketSubscriber(f.srv.URL, "shopper-1", f.logger),
		Store:      store,
		Finalizer: checkout.NewFinalizer(store, nil, checkout.NavigatorFunc(func(orderID string) {
			confirmed <- orderID
		}), time.Second, f.logger),
		Logger: f.logger,
	}, checkout.Options{PollInterval: time.Hour})
	defer session.Close()

	require.NoError(t, session.Checkout(ctx, "Ada"))
	v := session.View()
	require.Equal(t, checkout.StateWatching, v.State)
	require.NotNil(t, v.Artifact)

	// The subscription is opened asynchronously; keep scanning with fresh
	// references until the push producer reports completion.
	require.Eventually(t, func() bool {
		select {
		case id := <-confirmed:
			return id == v.OrderID
		default:
		}
		_ = f.client.SubmitScan(ctx, payment.ScanRequest{
			OrderID:        v.OrderID,
			Code:           v.Artifact.Code,
			TransactionRef: "tx-" + time.Now().Format(time.RFC3339Nano),
			Amount:         decimal.NewFromInt(10),
		})
		return false
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, checkout.SourcePush, session.View().CompletedBy)
}
