package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"pickandplay/internal/cart"
	"pickandplay/internal/order"
	"pickandplay/internal/payment"
	"pickandplay/internal/push"
	"pickandplay/internal/storage"
	"pickandplay/pkg/contracts"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCart(t *testing.T) cart.Cart {
	t.Helper()
	var c cart.Cart
	require.NoError(t, c.Add(cart.Item{ProductID: "strat-01", Name: "Stratocaster", Quantity: 1, UnitPrice: decimal.NewFromInt(30)}))
	require.NoError(t, c.Add(cart.Item{ProductID: "pick-12", Name: "Picks", Quantity: 2, UnitPrice: decimal.NewFromInt(10)}))
	return c
}

type fakeOrders struct {
	mu         sync.Mutex
	nextID     int
	orders     map[string]*order.Order
	created    []order.CreateRequest
	updated    map[string]int
	getErr     error
	updateErr  error
	createErr  error
	createGate chan struct{}
}

func newFakeOrders(firstID int) *fakeOrders {
	return &fakeOrders{
		nextID:  firstID,
		orders:  make(map[string]*order.Order),
		updated: make(map[string]int),
	}
}

func (f *fakeOrders) put(id string, status order.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id] = &order.Order{ID: id, Status: status}
}

func (f *fakeOrders) GetOrder(_ context.Context, orderID string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) UpdateOrderItems(_ context.Context, orderID string, items []order.LineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[orderID]++
	f.orders[orderID].Items = items
	return nil
}

func (f *fakeOrders) CreateOrder(_ context.Context, req order.CreateRequest) (string, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := strconv.Itoa(f.nextID)
	f.nextID++
	f.created = append(f.created, req)
	f.orders[id] = &order.Order{ID: id, Status: order.StatusPending, Items: req.Items, Total: req.Total}
	return id, nil
}

func (f *fakeOrders) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeOrders) updatedCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updated[id]
}

type fakePayments struct {
	mu            sync.Mutex
	artifact      *payment.Artifact
	artifactErrs  []error
	artifactCalls int
	statuses      []payment.StatusReport
	statusCalls   int
	scans         []payment.ScanRequest
	scanErr       error
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		artifact: &payment.Artifact{Amount: decimal.NewFromInt(50), Currency: "USD", Code: "QR-PAYLOAD"},
	}
}

func (p *fakePayments) RequestArtifact(_ context.Context, orderID string, amount decimal.Decimal) (*payment.Artifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.artifactCalls++
	if len(p.artifactErrs) > 0 {
		err := p.artifactErrs[0]
		p.artifactErrs = p.artifactErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	art := p.artifact.Clone()
	art.OrderID = orderID
	art.Amount = amount
	return art, nil
}

// GetPaymentStatus walks through statuses and repeats the last one. With no
// statuses it always reports pending.
func (p *fakePayments) GetPaymentStatus(_ context.Context, orderID string) (*payment.StatusReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	if len(p.statuses) == 0 {
		return &payment.StatusReport{OrderID: orderID, Status: contracts.PaymentPending}, nil
	}
	r := p.statuses[0]
	if len(p.statuses) > 1 {
		p.statuses = p.statuses[1:]
	}
	return &r, nil
}

func (p *fakePayments) SubmitScan(_ context.Context, req payment.ScanRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scans = append(p.scans, req)
	return p.scanErr
}

func (p *fakePayments) statusCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls
}

func (p *fakePayments) scanned() []payment.ScanRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payment.ScanRequest(nil), p.scans...)
}

type fakeSubscription struct {
	orderID string
	events  chan contracts.PaymentEvent
	closed  chan struct{}
	once    sync.Once
}

func (s *fakeSubscription) Events() <-chan contracts.PaymentEvent {
	return s.events
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSubscription) send(t *testing.T, evt contracts.PaymentEvent) {
	t.Helper()
	select {
	case s.events <- evt:
	case <-time.After(time.Second):
		t.Fatal("push event not consumed")
	}
}

func (s *fakeSubscription) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeSubscriber struct {
	err        error
	dropAtOnce bool
	subscribed chan *fakeSubscription
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(chan *fakeSubscription, 8)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, orderID string) (push.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSubscription{
		orderID: orderID,
		events:  make(chan contracts.PaymentEvent),
		closed:  make(chan struct{}),
	}
	if f.dropAtOnce {
		close(sub.events)
	}
	f.subscribed <- sub
	return sub, nil
}

func (f *fakeSubscriber) next(t *testing.T) *fakeSubscription {
	t.Helper()
	select {
	case sub := <-f.subscribed:
		return sub
	case <-time.After(time.Second):
		t.Fatal("no push subscription opened")
		return nil
	}
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *countingNotifier) NotifyCompleted(_ context.Context, orderID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, orderID)
	return n.err
}

func (n *countingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type recordingNavigator struct {
	mu     sync.Mutex
	visits []string
}

func (n *recordingNavigator) ShowConfirmation(orderID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visits = append(n.visits, orderID)
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}

type countingStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	clears    int
	deletes   []string
	clearErr  error
	deleteErr error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *countingStore) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	s.clears++
	err := s.clearErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.ClearCart(ctx)
}

func (s *countingStore) DeleteKey(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.DeleteKey(ctx, key)
}

func (s *countingStore) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

type harness struct {
	orders    *fakeOrders
	payments  *fakePayments
	sub       *fakeSubscriber
	store     *countingStore
	notifier  *countingNotifier
	nav       *recordingNavigator
	finalizer *Finalizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		orders:   newFakeOrders(7),
		payments: newFakePayments(),
		store:    newCountingStore(),
		notifier: &countingNotifier{},
		nav:      &recordingNavigator{},
	}
	require.NoError(t, h.store.SaveCart(context.Background(), sampleCart(t)))
	return h
}

func (h *harness) start(t *testing.T, opts Options) *Session {
	t.Helper()
	h.finalizer = NewFinalizer(h.store, h.notifier, h.nav, time.Second, discardLogger())
	deps := Deps{
		Orders:    h.orders,
		Payments:  h.payments,
		Store:     h.store,
		Finalizer: h.finalizer,
		Logger:    discardLogger(),
	}
	if h.sub != nil {
		deps.Subscriber = h.sub
	}
	s := NewSession(deps, opts)
	t.Cleanup(func() {
		s.Close()
		h.finalizer.Wait()
	})
	return s
}

// fastOptions polls and counts down in milliseconds.
func fastOptions() Options {
	return Options{
		PollInterval:       10 * time.Millisecond,
		PollMaxAttempts:    6,
		AutoConfirmSeconds: 5,
		CountdownTick:      5 * time.Millisecond,
		DetachedTimeout:    time.Second,
	}
}

// quietOptions keeps the poll and countdown from firing during a test.
func quietOptions() Options {
	opts := fastOptions()
	opts.PollInterval = time.Hour
	opts.CountdownTick = time.Hour
	return opts
}

const (
	waitFor = time.Second
	tick    = 2 * time.Millisecond
)
