package checkout

import (
	"context"
	"time"

	"pickandplay/internal/payment"

	"github.com/google/uuid"
)

// watch shows the artifact and arms the producers. Each producer gets the
// same watch context; cancelling it is the whole teardown.
func (s *Session) watch(orderID string, art *payment.Artifact) error {
	s.mu.Lock()
	if s.closed || s.state != StateAwaitingArtifact || s.orderID != orderID {
		s.mu.Unlock()
		return ErrCancelled
	}

	watchCtx, stop := context.WithCancel(s.ctx)
	s.stopWatch = stop
	s.state = StateWatching
	s.artifact = art
	s.pollAttempts = 0

	armCountdown := s.opts.AutoConfirm && !art.Degraded && !s.autoTriggered[orderID]
	if armCountdown {
		s.autoTriggered[orderID] = true
		s.remaining = s.opts.AutoConfirmSeconds
	}

	if s.subscriber != nil {
		s.goLocked(func() { s.watchPush(watchCtx, orderID) })
	}
	s.goLocked(func() { s.pollStatus(watchCtx, orderID) })
	if armCountdown {
		snapshot := art.Clone()
		s.goLocked(func() { s.countdown(watchCtx, orderID, snapshot) })
	}
	s.mu.Unlock()

	s.logger.Info("awaiting payment", "order_id", orderID, "degraded", art.Degraded, "auto_confirm", armCountdown)
	s.emit()
	return nil
}

func (s *Session) watching(orderID string) bool {
	return s.state == StateWatching && s.orderID == orderID
}

func (s *Session) watchPush(ctx context.Context, orderID string) {
	logger := s.logger.With("order_id", orderID)

	sub, err := s.subscriber.Subscribe(ctx, orderID)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("push subscription unavailable, relying on polling", "err", err)
		}
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				if ctx.Err() == nil {
					logger.Warn("push subscription dropped, relying on polling")
				}
				return
			}
			if evt.OrderID != "" && evt.OrderID != orderID {
				continue
			}
			if evt.IndicatesPaid() {
				s.complete(orderID, SourcePush)
				return
			}
			logger.Debug("payment event", "status", evt.Status)
		}
	}
}

func (s *Session) pollStatus(ctx context.Context, orderID string) {
	logger := s.logger.With("order_id", orderID)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.opts.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.recordPoll(orderID, attempt) {
			return
		}

		report, err := s.payments.GetPaymentStatus(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("payment status poll failed", "attempt", attempt, "err", err)
			continue
		}
		if s.applyReport(orderID, *report) {
			return
		}
	}
	s.pollExhausted(orderID)
}

func (s *Session) recordPoll(orderID string, attempt int) bool {
	s.mu.Lock()
	if !s.watching(orderID) {
		s.mu.Unlock()
		return false
	}
	s.pollAttempts = attempt
	s.mu.Unlock()
	s.emit()
	return true
}

// applyReport merges partial payment progress and reports whether polling
// should stop.
func (s *Session) applyReport(orderID string, report payment.StatusReport) bool {
	s.mu.Lock()
	if !s.watching(orderID) {
		s.mu.Unlock()
		return true
	}
	progressed := report.HasProgress() && s.artifact != nil
	if progressed {
		s.artifact.Merge(report)
	}
	s.mu.Unlock()

	if progressed {
		s.emit()
	}
	if report.Settled() {
		s.complete(orderID, SourcePoll)
		return true
	}
	return false
}

func (s *Session) pollExhausted(orderID string) {
	s.mu.Lock()
	if !s.watching(orderID) {
		s.mu.Unlock()
		return
	}
	s.notice = PollTimeoutMessage
	attempts := s.pollAttempts
	s.mu.Unlock()

	s.logger.Warn("payment status polling exhausted", "order_id", orderID, "attempts", attempts)
	s.emit()
}

func (s *Session) countdown(ctx context.Context, orderID string, art *payment.Artifact) {
	ticker := time.NewTicker(s.opts.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		remaining, ok := s.tick(orderID)
		if !ok {
			return
		}
		if remaining > 0 {
			continue
		}
		s.autoConfirm(orderID, art)
		return
	}
}

func (s *Session) tick(orderID string) (int, bool) {
	s.mu.Lock()
	if !s.watching(orderID) {
		s.mu.Unlock()
		return 0, false
	}
	s.remaining--
	remaining := s.remaining
	s.mu.Unlock()
	s.emit()
	return remaining, true
}

// autoConfirm simulates the shopper scanning the code. The scan runs
// detached and the order completes whatever it returns.
func (s *Session) autoConfirm(orderID string, art *payment.Artifact) {
	req := payment.ScanRequest{
		OrderID:        orderID,
		Code:           art.Code,
		TransactionRef: "DEV-" + uuid.NewString(),
		Amount:         art.Amount,
		Currency:       art.Currency,
	}
	if req.Currency == "" {
		req.Currency = s.opts.Currency
	}
	s.detach(func(ctx context.Context) {
		if err := s.payments.SubmitScan(ctx, req); err != nil {
			s.logger.Warn("simulated scan failed", "order_id", orderID, "ref", req.TransactionRef, "err", err)
			return
		}
		s.logger.Info("simulated scan submitted", "order_id", orderID, "ref", req.TransactionRef)
	})
	s.complete(orderID, SourceAutoConfirm)
}
