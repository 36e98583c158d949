package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"pickandplay/internal/checkout"
)

// renderer prints a session's views, skipping repeats. Views arrive from
// several goroutines.
type renderer struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) Render(v checkout.View) {
	text := formatView(v)
	r.mu.Lock()
	defer r.mu.Unlock()
	if text == "" || text == r.last {
		return
	}
	r.last = text
	fmt.Fprint(r.out, text)
}

func formatView(v checkout.View) string {
	var b strings.Builder

	switch v.State {
	case checkout.StateAwaitingArtifact:
		fmt.Fprintf(&b, "order %s placed, requesting payment code...\n", v.OrderID)
	case checkout.StateWatching:
		if art := v.Artifact; art != nil {
			if art.Degraded {
				fmt.Fprintf(&b, "payment code unavailable, backend returned:\n%s\n", string(art.Raw))
			} else {
				fmt.Fprintf(&b, "scan to pay %s %s:\n%s\n", art.Remaining().StringFixed(2), art.Currency, art.Code)
			}
			if art.Collected != nil {
				fmt.Fprintf(&b, "received %s of %s\n", art.Collected.StringFixed(2), art.Amount.StringFixed(2))
			}
		}
		if v.AutoConfirmRemaining > 0 {
			fmt.Fprintf(&b, "auto-confirming in %ds\n", v.AutoConfirmRemaining)
		}
		if v.PollAttempts > 0 {
			fmt.Fprintf(&b, "checked payment status %d time(s)\n", v.PollAttempts)
		}
	case checkout.StateCompleted:
		fmt.Fprintf(&b, "payment received for order %s (%s)\n", v.OrderID, v.CompletedBy)
	}

	if v.Notice != "" {
		fmt.Fprintf(&b, "! %s\n", v.Notice)
	}
	return b.String()
}
