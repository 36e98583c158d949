package contracts

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentEvent is pushed to subscribers of a single order, either as a
// websocket frame or as a message on the payments exchange.
type PaymentEvent struct {
	EventID   string           `json:"event_id,omitempty"`
	OrderID   string           `json:"order_id"`
	Status    PaymentStatus    `json:"status"`
	Verified  bool             `json:"verified,omitempty"`
	Collected *decimal.Decimal `json:"collected,omitempty"`
	Total     *decimal.Decimal `json:"total,omitempty"`
	Occurred  time.Time        `json:"occurred_at,omitzero"`
}

func (e *PaymentEvent) UnmarshalJSON(b []byte) error {
	type plain PaymentEvent
	aux := struct {
		*plain
		OrderID ID `json:"order_id"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.OrderID = string(aux.OrderID)
	return nil
}

// IndicatesPaid is the push channel's success predicate: the status marker
// or the backend's verified flag.
func (e PaymentEvent) IndicatesPaid() bool {
	return e.Status == PaymentPaid || e.Status == PaymentCompleted || e.Verified
}

type CheckoutCompletedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	CompletedAt time.Time `json:"completed_at"`
}
