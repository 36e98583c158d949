package payment

import (
	"encoding/json"
	"time"

	"pickandplay/pkg/contracts"

	"github.com/shopspring/decimal"
)

// PaymentID accepts both numeric and string ids from the backend.
type PaymentID = contracts.ID

type PartialPayment struct {
	ID        PaymentID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    time.Time       `json:"paid_at,omitzero"`
}

// Artifact is the scannable QR payment code shown to the customer.
type Artifact struct {
	OrderID   string           `json:"order_id"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  string           `json:"currency"`
	Code      string           `json:"qr_code"`
	Collected *decimal.Decimal `json:"collected,omitempty"`
	Payments  []PartialPayment `json:"payments,omitempty"`

	// Raw is the backend response as received. Degraded artifacts (no Code)
	// show it instead of a QR code.
	Raw      json.RawMessage `json:"-"`
	Degraded bool            `json:"-"`
}

func (a *Artifact) UnmarshalJSON(b []byte) error {
	type plain Artifact
	aux := struct {
		*plain
		OrderID contracts.ID `json:"order_id"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	a.OrderID = string(aux.OrderID)
	return nil
}

func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	if a.Collected != nil {
		v := *a.Collected
		c.Collected = &v
	}
	c.Payments = append([]PartialPayment(nil), a.Payments...)
	c.Raw = append(json.RawMessage(nil), a.Raw...)
	return &c
}

// Merge copies partial-payment progress from a status report.
func (a *Artifact) Merge(r StatusReport) {
	if r.Collected != nil {
		v := *r.Collected
		a.Collected = &v
	}
	if r.Total != nil {
		a.Amount = *r.Total
	}
	if r.Payments != nil {
		a.Payments = append([]PartialPayment(nil), r.Payments...)
	}
}

// Remaining is the amount still to be collected, or the full amount when no
// partial payments are known.
func (a *Artifact) Remaining() decimal.Decimal {
	if a.Collected == nil {
		return a.Amount
	}
	rest := a.Amount.Sub(*a.Collected)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

type StatusReport struct {
	OrderID   string                  `json:"order_id,omitempty"`
	Status    contracts.PaymentStatus `json:"status"`
	Collected *decimal.Decimal        `json:"collected,omitempty"`
	Total     *decimal.Decimal        `json:"total,omitempty"`
	Payments  []PartialPayment        `json:"payments,omitempty"`
}

func (r *StatusReport) UnmarshalJSON(b []byte) error {
	type plain StatusReport
	aux := struct {
		*plain
		OrderID contracts.ID `json:"order_id"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.OrderID = string(aux.OrderID)
	return nil
}

func (r StatusReport) HasProgress() bool {
	return r.Collected != nil || r.Total != nil || r.Payments != nil
}

// Settled is the poll's success predicate. It only looks at the status
// string; the verified flag is a push-channel field.
func (r StatusReport) Settled() bool {
	return r.Status == contracts.PaymentPaid || r.Status == contracts.PaymentCompleted
}

type ScanRequest struct {
	OrderID        string          `json:"order_id"`
	Code           string          `json:"qr_code"`
	TransactionRef string          `json:"transaction_ref" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}
