// Package recontext derives contexts that keep the values of a parent (the o11y provider and
// active span) while shedding its cancellation.
//
// Work that must complete after the triggering request or loop has gone away, such as
// persisting a capture record or a final log sync at shutdown, runs on one of these.
package recontext

import (
	"context"
	"time"
)

// WithNewTimeout returns a context carrying the values of parent, ignoring its cancellation
// and deadline, and bounded instead by timeout. The timeout is mandatory so that detached
// work can never hang forever.
func WithNewTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
