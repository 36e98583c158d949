package order

import (
	"encoding/json"
	"time"

	"pickandplay/pkg/contracts"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Reusable reports whether an order can still receive a new cart snapshot.
func (s Status) Reusable() bool {
	return s == StatusPending
}

type LineItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Shipping struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Phone   string `json:"phone"`
}

// PlaceholderShipping is sent with QR checkouts, where the customer picks
// the guitars up in store.
var PlaceholderShipping = Shipping{Address: "In-store pickup", City: "N/A", Phone: "N/A"}

type Order struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name"`
	Status       Status          `json:"status"`
	Items        []LineItem      `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (o *Order) UnmarshalJSON(b []byte) error {
	type plain Order
	aux := struct {
		*plain
		ID contracts.ID `json:"id"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	o.ID = string(aux.ID)
	return nil
}

type CreateRequest struct {
	CustomerName  string          `json:"customer_name" validate:"required"`
	Shipping      Shipping        `json:"shipping"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Items         []LineItem      `json:"items" validate:"required,min=1,dive"`
}

// Total sums quantity times unit price over the line items.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
