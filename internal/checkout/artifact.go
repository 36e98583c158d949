package checkout

import (
	"context"
	"log/slog"

	"pickandplay/internal/payment"

	"github.com/shopspring/decimal"
)

type ArtifactRequester struct {
	payments PaymentAPI
	logger   *slog.Logger
}

func NewArtifactRequester(payments PaymentAPI, logger *slog.Logger) *ArtifactRequester {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactRequester{payments: payments, logger: logger}
}

// Request asks the backend for a QR code tagged with orderID. A response
// without a code is kept and marked Degraded so the raw payload can be shown.
func (r *ArtifactRequester) Request(ctx context.Context, orderID string, amount decimal.Decimal) (*payment.Artifact, error) {
	art, err := r.payments.RequestArtifact(ctx, orderID, amount)
	if err != nil {
		return nil, abort(err)
	}
	art.OrderID = orderID
	if art.Code == "" {
		art.Degraded = true
		r.logger.Warn("payment code missing, showing raw response", "order_id", orderID, "raw", string(art.Raw))
	}
	return art, nil
}

// AlreadySettled performs a single status lookup before the code is shown. A
// failed lookup is not an error: the watcher will ask again.
func (r *ArtifactRequester) AlreadySettled(ctx context.Context, orderID string) (*payment.StatusReport, bool) {
	report, err := r.payments.GetPaymentStatus(ctx, orderID)
	if err != nil {
		r.logger.Warn("initial payment status check failed", "order_id", orderID, "err", err)
		return nil, false
	}
	return report, report.Settled()
}
