// Package poll waits in tests for asynchronous work, such as a capture record landing
// in a sink after the response has gone out.
package poll

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

// Interval between checks.
var Interval = 50 * time.Millisecond

// Check reports whether polling is done, along with the outcome to return when it is.
// The error of an unfinished check is kept to explain a timeout.
type Check func() (done bool, err error)

// AssertIt polls check until it is done or timeout elapses, failing t unless it
// finishes without error.
func AssertIt(ctx context.Context, t *testing.T, timeout time.Duration, check Check) {
	t.Helper()
	assert.NilError(t, ForIt(ctx, timeout, check))
}

// ForIt polls check until it is done, returning its error, or until ctx ends or timeout
// elapses.
func ForIt(ctx context.Context, timeout time.Duration, check Check) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(Interval)
	defer tick.Stop()

	var last error
	for {
		done, err := check()
		if done {
			return err
		}
		last = err

		select {
		case <-ctx.Done():
			if last != nil {
				return fmt.Errorf("%w: last check: %v", ctx.Err(), last)
			}
			return ctx.Err()
		case <-tick.C:
		}
	}
}
