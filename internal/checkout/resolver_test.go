package checkout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pickandplay/internal/order"
	"pickandplay/internal/shopapi"
	"pickandplay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_ReusesPendingOrder(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders(99)
	orders.put("42", order.StatusPending)
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetPendingOrderID(ctx, "42"))

	r := NewResolver(orders, store, Options{}, discardLogger())
	id, err := r.Resolve(ctx, ResolveRequest{Customer: "Ada", Cart: sampleCart(t)})

	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Zero(t, orders.createdCount())
	assert.Equal(t, 1, orders.updatedCount("42"))
	assert.Len(t, orders.orders["42"].Items, 2)

	pending, err := store.PendingOrderID(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResolver_DiscardsStalePendingOrder(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders(99)
	orders.put("42", order.StatusPaid)
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetPendingOrderID(ctx, "42"))

	r := NewResolver(orders, store, Options{}, discardLogger())
	id, err := r.Resolve(ctx, ResolveRequest{Customer: "Ada", Cart: sampleCart(t)})

	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.Zero(t, orders.updatedCount("42"))
	require.Equal(t, 1, orders.createdCount())

	created := orders.created[0]
	assert.Equal(t, "Ada", created.CustomerName)
	assert.Equal(t, order.PlaceholderShipping, created.Shipping)
	assert.Equal(t, "qr", created.PaymentMethod)
	assert.Equal(t, "50", created.Total.String())

	pending, _ := store.PendingOrderID(ctx)
	assert.Empty(t, pending)
}

func TestResolver_FetchFailureFallsBackToCreate(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders(99)
	orders.getErr = errors.New("connection reset")
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetPendingOrderID(ctx, "42"))

	r := NewResolver(orders, store, Options{}, discardLogger())
	id, err := r.Resolve(ctx, ResolveRequest{Customer: "Ada", Cart: sampleCart(t)})

	require.NoError(t, err)
	assert.Equal(t, "99", id)
}

func TestResolver_CandidateTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders(99)
	orders.put("12", order.StatusPending)
	orders.put("42", order.StatusPending)
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetPendingOrderID(ctx, "42"))

	r := NewResolver(orders, store, Options{}, discardLogger())
	id, err := r.Resolve(ctx, ResolveRequest{Customer: "Ada", Cart: sampleCart(t), Candidate: "12"})

	require.NoError(t, err)
	assert.Equal(t, "12", id)
	assert.Zero(t, orders.updatedCount("42"))
}

func TestResolver_StockErrorAbortsWithoutCreating(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders(99)
	orders.put("42", order.StatusPending)
	orders.updateErr = &shopapi.APIError{StatusCode: http.StatusBadRequest, Message: "Only 1 Stratocaster left in stock"}
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetPendingOrderID(ctx, "42"))

	r := NewResolver(orders, store, Options{}, discardLogger())
	_, err := r.Resolve(ctx, ResolveRequest{Customer: "Ada", Cart: sampleCart(t)})

	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Only 1 Stratocaster left in stock", ae.Message)
	assert.Zero(t, orders.createdCount())

	pending, _ := store.PendingOrderID(ctx)
	assert.Equal(t, "42", pending)
}

func TestResolver_UnexpectedUpdateFailureIsGeneric(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders(99)
	orders.put("42", order.StatusPending)
	orders.updateErr = &shopapi.APIError{StatusCode: http.StatusInternalServerError, Message: "pq: deadlock detected"}
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetPendingOrderID(ctx, "42"))

	r := NewResolver(orders, store, Options{}, discardLogger())
	_, err := r.Resolve(ctx, ResolveRequest{Customer: "Ada", Cart: sampleCart(t)})

	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, GenericFailureMessage, ae.Message)
	assert.Zero(t, orders.createdCount())
}

func TestResolver_CreateErrorCarriesMessage(t *testing.T) {
	orders := newFakeOrders(99)
	orders.createErr = &shopapi.APIError{StatusCode: http.StatusConflict, Message: "Les Paul is out of stock"}

	r := NewResolver(orders, storage.NewMemoryStore(), Options{}, discardLogger())
	_, err := r.Resolve(context.Background(), ResolveRequest{Customer: "Ada", Cart: sampleCart(t)})

	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Les Paul is out of stock", ae.Message)

	var apiErr *shopapi.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestResolver_ReusesNumericIDOrderFromBackend(t *testing.T) {
	ctx := context.Background()
	var updates, creates atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /orders/42":
			_, _ = io.WriteString(w, `{"id": 42, "status": "pending"}`)
		case "PUT /orders/42/items":
			updates.Add(1)
			w.WriteHeader(http.StatusNoContent)
		case "POST /orders":
			creates.Add(1)
			_, _ = io.WriteString(w, `{"id": 99}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := storage.NewMemoryStore()
	require.NoError(t, store.SetPendingOrderID(ctx, "42"))
	client := shopapi.NewClient(srv.URL, "", "USD", time.Second, discardLogger())

	r := NewResolver(client, store, Options{}, discardLogger())
	id, err := r.Resolve(ctx, ResolveRequest{Customer: "Ada", Cart: sampleCart(t)})

	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.EqualValues(t, 1, updates.Load())
	assert.Zero(t, creates.Load())
}
