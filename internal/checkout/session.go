package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pickandplay/internal/payment"
	"pickandplay/internal/push"
	"pickandplay/internal/storage"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingArtifact State = "awaiting_artifact"
	StateWatching         State = "watching"
	StateCompleted        State = "completed"
	StateCancelled        State = "cancelled"
)

// Source names the producer that declared an order paid.
type Source string

const (
	SourceStatusCheck Source = "status_check"
	SourcePush        Source = "push"
	SourcePoll        Source = "poll"
	SourceAutoConfirm Source = "auto_confirm"
)

// View is a point-in-time copy of the session for rendering.
type View struct {
	State                State
	OrderID              string
	Artifact             *payment.Artifact
	PollAttempts         int
	AutoConfirmRemaining int
	Notice               string
	Submitting           bool
	CompletedBy          Source
}

type Deps struct {
	Orders   OrderAPI
	Payments PaymentAPI
	// Subscriber is optional; without it completion relies on polling.
	Subscriber push.Subscriber
	Store      storage.Store
	Finalizer  *Finalizer
	Logger     *slog.Logger
	// OnChange receives a View after every visible change. It may be called
	// from several goroutines.
	OnChange func(View)
}

// Session drives one shopper's checkout panel. Every completion producer
// reports through complete, which lets the first caller win.
type Session struct {
	payments   PaymentAPI
	subscriber push.Subscriber
	store      storage.Store
	resolver   *Resolver
	requester  *ArtifactRequester
	finalizer  *Finalizer
	opts       Options
	logger     *slog.Logger
	onChange   func(View)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	state         State
	orderID       string
	candidate     string
	artifact      *payment.Artifact
	pollAttempts  int
	remaining     int
	notice        string
	submitting    bool
	completedBy   Source
	stopWatch     context.CancelFunc
	release       *time.Timer
	finalizing    map[string]bool
	autoTriggered map[string]bool
	closed        bool
}

func NewSession(deps Deps, opts Options) *Session {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	finalizer := deps.Finalizer
	if finalizer == nil {
		finalizer = NewFinalizer(deps.Store, nil, nil, opts.DetachedTimeout, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		payments:      deps.Payments,
		subscriber:    deps.Subscriber,
		store:         deps.Store,
		resolver:      NewResolver(deps.Orders, deps.Store, opts, logger),
		requester:     NewArtifactRequester(deps.Payments, logger),
		finalizer:     finalizer,
		opts:          opts,
		logger:        logger,
		onChange:      deps.OnChange,
		ctx:           ctx,
		cancel:        cancel,
		state:         StateIdle,
		finalizing:    make(map[string]bool),
		autoTriggered: make(map[string]bool),
	}
}

// Checkout resolves an order for the stored cart, requests its payment code
// and starts watching for completion. It returns once the code is shown or
// the payment turned out to be settled already; completion itself arrives
// asynchronously.
func (s *Session) Checkout(ctx context.Context, customer string) error {
	candidate, err := s.beginSubmit()
	if err != nil {
		return err
	}
	defer s.endSubmit()
	s.emit()

	c, err := s.store.LoadCart(ctx)
	if err != nil {
		return s.fail(abort(err))
	}
	if c.Empty() {
		return s.fail(&AbortError{Message: EmptyCartMessage, Err: ErrEmptyCart})
	}

	orderID, err := s.resolver.Resolve(ctx, ResolveRequest{
		Customer:  customer,
		Cart:      c,
		Candidate: candidate,
	})
	if err != nil {
		return s.fail(err)
	}
	if !s.adopt(orderID) {
		s.rememberPending(ctx, orderID)
		return ErrCancelled
	}

	art, err := s.requester.Request(ctx, orderID, c.Total())
	if err != nil {
		s.rememberPending(ctx, orderID)
		return s.fail(err)
	}

	report, settled := s.requester.AlreadySettled(ctx, orderID)
	if settled {
		s.complete(orderID, SourceStatusCheck)
		return nil
	}
	if report != nil && report.HasProgress() {
		art.Merge(*report)
	}

	return s.watch(orderID, art)
}

// Cancel stops watching the current order. The order stays on the backend
// and its id is kept so the next checkout can reuse it.
func (s *Session) Cancel(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != StateWatching && s.state != StateAwaitingArtifact {
		s.mu.Unlock()
		return false
	}
	orderID := s.orderID
	stop := s.teardownLocked(StateCancelled)
	s.orderID = ""
	s.candidate = ""
	s.notice = ""
	s.mu.Unlock()
	stop()

	if orderID != "" {
		s.rememberPending(ctx, orderID)
	}
	s.logger.Info("checkout cancelled", "order_id", orderID)
	s.emit()
	return true
}

// Close stops every producer and waits for detached work. It must not be
// called from a Navigator or OnChange callback.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stopWatch
	s.stopWatch = nil
	release := s.release
	s.release = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if release != nil && release.Stop() {
		s.wg.Done()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		State:                s.state,
		OrderID:              s.orderID,
		Artifact:             s.artifact.Clone(),
		PollAttempts:         s.pollAttempts,
		AutoConfirmRemaining: s.remaining,
		Notice:               s.notice,
		Submitting:           s.submitting,
		CompletedBy:          s.completedBy,
	}
}

func (s *Session) beginSubmit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return "", ErrClosed
	case s.submitting:
		return "", ErrSubmissionInProgress
	case s.state == StateWatching || s.state == StateAwaitingArtifact:
		return "", ErrAlreadyActive
	case s.state == StateCompleted:
		return "", ErrCompleted
	}

	s.submitting = true
	s.state = StateAwaitingArtifact
	s.orderID = ""
	s.artifact = nil
	s.notice = ""
	s.pollAttempts = 0
	return s.candidate, nil
}

// endSubmit releases the submission guard after the cooldown so a double
// click during slow feedback is still rejected.
func (s *Session) endSubmit() {
	s.mu.Lock()
	if s.closed || s.opts.SubmitCooldown <= 0 {
		s.submitting = false
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.emit()
		}
		return
	}
	s.wg.Add(1)
	s.release = time.AfterFunc(s.opts.SubmitCooldown, func() {
		defer s.wg.Done()
		s.mu.Lock()
		s.submitting = false
		s.release = nil
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.emit()
		}
	})
	s.mu.Unlock()
}

func (s *Session) adopt(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateAwaitingArtifact {
		return false
	}
	s.orderID = orderID
	s.candidate = orderID
	return true
}

func (s *Session) fail(err error) error {
	ae := abort(err)
	s.mu.Lock()
	if s.state == StateAwaitingArtifact {
		s.state = StateIdle
		s.orderID = ""
		s.notice = ae.Message
	}
	s.mu.Unlock()

	s.logger.Warn("checkout aborted", "message", ae.Message, "err", ae.Err)
	s.emit()
	return ae
}

func (s *Session) rememberPending(ctx context.Context, orderID string) {
	if err := s.store.SetPendingOrderID(context.WithoutCancel(ctx), orderID); err != nil {
		s.logger.Warn("store pending order id", "order_id", orderID, "err", err)
	}
}

// complete is the single completion transition. It reports whether this
// call won; later calls for the same order are no-ops.
func (s *Session) complete(orderID string, source Source) bool {
	s.mu.Lock()
	if s.orderID != orderID || s.finalizing[orderID] ||
		(s.state != StateWatching && s.state != StateAwaitingArtifact) {
		s.mu.Unlock()
		return false
	}
	s.finalizing[orderID] = true
	s.completedBy = source
	stop := s.teardownLocked(StateCompleted)
	s.mu.Unlock()
	stop()

	s.logger.Info("payment confirmed", "order_id", orderID, "source", source)
	s.emit()
	s.finalizer.Finalize(context.WithoutCancel(s.ctx), orderID)
	return true
}

// teardownLocked leaves the watching states. The returned func stops the
// producers and must be called after s.mu is released.
func (s *Session) teardownLocked(next State) context.CancelFunc {
	stop := s.stopWatch
	s.stopWatch = nil
	s.state = next
	s.artifact = nil
	s.remaining = 0
	if stop == nil {
		return func() {}
	}
	return stop
}

// goLocked starts fn as a tracked producer. s.mu must be held.
func (s *Session) goLocked(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// detach runs fn outside the watch lifetime with its own deadline. Its
// outcome never reaches the state machine.
func (s *Session) detach(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.opts.DetachedTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) emit() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.View())
}
