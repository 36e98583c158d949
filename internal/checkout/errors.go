package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrSubmissionInProgress = errors.New("checkout: submission already in progress")
	ErrAlreadyActive        = errors.New("checkout: payment already being awaited")
	ErrCompleted            = errors.New("checkout: order already completed")
	ErrCancelled            = errors.New("checkout: cancelled")
	ErrEmptyCart            = errors.New("checkout: cart is empty")
	ErrClosed               = errors.New("checkout: session closed")
)

const (
	GenericFailureMessage = "We couldn't place your order. Please try again."
	EmptyCartMessage      = "Your cart is empty."
	PollTimeoutMessage    = "We haven't received your payment confirmation yet. If you already paid it will show up shortly, otherwise please try again."
)

// AbortError ends a checkout attempt. Message is safe to show the shopper.
type AbortError struct {
	Message string
	Err     error
}

func (e *AbortError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkout aborted: %s: %v", e.Message, e.Err)
	}
	return "checkout aborted: " + e.Message
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

type userFacing interface {
	UserMessage() string
}

// abort keeps the backend's own wording for client errors (stock, validation)
// and hides everything else behind the generic message.
func abort(err error) *AbortError {
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae
	}
	var uf userFacing
	if errors.As(err, &uf) {
		if msg := uf.UserMessage(); msg != "" {
			return &AbortError{Message: msg, Err: err}
		}
	}
	return &AbortError{Message: GenericFailureMessage, Err: err}
}
