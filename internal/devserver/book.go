package devserver

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"pickandplay/internal/order"
	"pickandplay/internal/payment"
	"pickandplay/pkg/contracts"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNotPending    = errors.New("order is no longer pending")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrInvalidScan   = errors.New("invalid scan")
)

// StockError is returned when an order asks for more units than the shop
// holds. Its text is shown to the shopper as is.
type StockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Only %d of %s left in stock, %d requested", e.Available, e.ProductID, e.Requested)
}

type Notification struct {
	OrderID string    `json:"order_id"`
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
}

type entry struct {
	order    order.Order
	userID   string
	code     string
	payments []payment.PartialPayment
	refs     map[string]bool
}

func (e *entry) collected() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range e.payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

func (e *entry) report() payment.StatusReport {
	collected := e.collected()
	total := e.order.Total
	r := payment.StatusReport{
		OrderID: e.order.ID,
		Status:  contracts.PaymentPending,
		Total:   &total,
	}
	switch e.order.Status {
	case order.StatusPaid, order.StatusCompleted:
		r.Status = contracts.PaymentPaid
	case order.StatusFailed, order.StatusCancelled:
		r.Status = contracts.PaymentFailed
	}
	if len(e.payments) > 0 {
		r.Collected = &collected
		r.Payments = append([]payment.PartialPayment(nil), e.payments...)
	}
	return r
}

// Book is the development backend's order book. Products missing from the
// stock table are unlimited.
type Book struct {
	mu       sync.Mutex
	nextID   int
	currency string
	stock    map[string]int
	orders   map[string]*entry
	notified []Notification
	now      func() time.Time
}

func NewBook(currency string, stock map[string]int) *Book {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &Book{
		nextID:   1,
		currency: currency,
		stock:    s,
		orders:   make(map[string]*entry),
		now:      time.Now,
	}
}

func (b *Book) Create(userID string, req order.CreateRequest) (order.Order, error) {
	if err := validateCreate(req); err != nil {
		return order.Order{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkItemsLocked(req.Items); err != nil {
		return order.Order{}, err
	}

	now := b.now().UTC()
	id := strconv.Itoa(b.nextID)
	b.nextID++
	e := &entry{
		order: order.Order{
			ID:           id,
			CustomerName: req.CustomerName,
			Status:       order.StatusPending,
			Items:        append([]order.LineItem(nil), req.Items...),
			Total:        order.Total(req.Items),
			Currency:     b.currency,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		userID: userID,
		refs:   make(map[string]bool),
	}
	b.orders[id] = e
	return copyOrder(e.order), nil
}

func (b *Book) Get(userID, orderID string) (order.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(userID, orderID)
	if err != nil {
		return order.Order{}, err
	}
	return copyOrder(e.order), nil
}

// ReplaceItems swaps the line items of a pending order for a new cart
// snapshot and recomputes its total.
func (b *Book) ReplaceItems(userID, orderID string, items []order.LineItem) (order.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(userID, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if !e.order.Status.Reusable() {
		return order.Order{}, fmt.Errorf("%w: status %s", ErrNotPending, e.order.Status)
	}
	if err := b.checkItemsLocked(items); err != nil {
		return order.Order{}, err
	}

	e.order.Items = append([]order.LineItem(nil), items...)
	e.order.Total = order.Total(items)
	e.order.UpdatedAt = b.now().UTC()
	return copyOrder(e.order), nil
}

// MintCode issues a QR payload for a pending order. A zero amount means the
// order total.
func (b *Book) MintCode(userID, orderID string, amount decimal.Decimal, currency string) (payment.Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(userID, orderID)
	if err != nil {
		return payment.Artifact{}, err
	}
	if amount.IsNegative() {
		return payment.Artifact{}, fmt.Errorf("%w: negative amount", ErrInvalidScan)
	}
	if amount.IsZero() {
		amount = e.order.Total
	}
	if currency == "" {
		currency = b.currency
	}

	if e.code == "" {
		e.code = fmt.Sprintf("PNP1|%s|%s|%s|%s", e.order.ID, amount.StringFixed(2), currency, uuid.NewString()[:8])
	}

	art := payment.Artifact{
		OrderID:  e.order.ID,
		Amount:   amount,
		Currency: currency,
		Code:     e.code,
	}
	if len(e.payments) > 0 {
		collected := e.collected()
		art.Collected = &collected
		art.Payments = append([]payment.PartialPayment(nil), e.payments...)
	}
	return art, nil
}

func (b *Book) Status(userID, orderID string) (payment.StatusReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(userID, orderID)
	if err != nil {
		return payment.StatusReport{}, err
	}
	return e.report(), nil
}

// Scan records a payment against the order's code. A repeated transaction
// reference is accepted once. The returned event is meant for subscribers
// of the order.
func (b *Book) Scan(userID string, req payment.ScanRequest) (payment.StatusReport, contracts.PaymentEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(userID, req.OrderID)
	if err != nil {
		return payment.StatusReport{}, contracts.PaymentEvent{}, err
	}
	if e.code == "" || (req.Code != "" && req.Code != e.code) {
		return payment.StatusReport{}, contracts.PaymentEvent{}, fmt.Errorf("%w: unknown payment code", ErrInvalidScan)
	}
	if err := validateScan(req); err != nil {
		return payment.StatusReport{}, contracts.PaymentEvent{}, err
	}

	if !e.refs[req.TransactionRef] && e.order.Status == order.StatusPending {
		e.refs[req.TransactionRef] = true

		amount := req.Amount
		remaining := e.order.Total.Sub(e.collected())
		if amount.IsZero() || amount.GreaterThan(remaining) {
			amount = remaining
		}
		now := b.now().UTC()
		e.payments = append(e.payments, payment.PartialPayment{
			ID:        payment.PaymentID(strconv.Itoa(len(e.payments) + 1)),
			Amount:    amount,
			Reference: req.TransactionRef,
			PaidAt:    now,
		})
		if e.collected().GreaterThanOrEqual(e.order.Total) {
			e.order.Status = order.StatusPaid
			b.takeStockLocked(e.order.Items)
		}
		e.order.UpdatedAt = now
	}

	r := e.report()
	evt := contracts.PaymentEvent{
		EventID:   uuid.NewString(),
		OrderID:   e.order.ID,
		Status:    r.Status,
		Verified:  r.Settled(),
		Collected: r.Collected,
		Total:     r.Total,
		Occurred:  b.now().UTC(),
	}
	return r, evt, nil
}

func (b *Book) RecordNotification(userID, orderID, source string) (Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.lookupLocked(userID, orderID); err != nil {
		return Notification{}, err
	}
	n := Notification{OrderID: orderID, Source: source, At: b.now().UTC()}
	b.notified = append(b.notified, n)
	return n, nil
}

func (b *Book) Notifications() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notification(nil), b.notified...)
}

// SetStatus forces an order status. Used to simulate orders settled or
// cancelled outside the checkout flow.
func (b *Book) SetStatus(orderID string, status order.Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	e.order.Status = status
	e.order.UpdatedAt = b.now().UTC()
	return nil
}

// lookupLocked hides orders of other users. An empty userID sees everything.
func (b *Book) lookupLocked(userID, orderID string) (*entry, error) {
	e, ok := b.orders[orderID]
	if !ok || (userID != "" && e.userID != "" && e.userID != userID) {
		return nil, ErrOrderNotFound
	}
	return e, nil
}

func (b *Book) checkItemsLocked(items []order.LineItem) error {
	if err := validateItems(items); err != nil {
		return err
	}
	requested := make(map[string]int, len(items))
	for _, it := range items {
		requested[it.ProductID] += it.Quantity
	}
	for product, qty := range requested {
		available, limited := b.stock[product]
		if limited && qty > available {
			return &StockError{ProductID: product, Available: available, Requested: qty}
		}
	}
	return nil
}

func (b *Book) takeStockLocked(items []order.LineItem) {
	for _, it := range items {
		if available, limited := b.stock[it.ProductID]; limited {
			b.stock[it.ProductID] = max(available-it.Quantity, 0)
		}
	}
}

func copyOrder(o order.Order) order.Order {
	o.Items = append([]order.LineItem(nil), o.Items...)
	return o
}
