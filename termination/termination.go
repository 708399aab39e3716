// Package termination turns process signals into an error that unwinds a running system.
package termination

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/circleci/trafficharness/o11y"
)

// ErrTerminated is returned once an interrupt or terminate signal has been received.
var ErrTerminated = errors.New("terminated")

// Handle blocks until the process is signalled or ctx is done. After a signal it waits for
// delay, giving listeners time to drain in-flight requests, before returning ErrTerminated.
func Handle(ctx context.Context, delay time.Duration) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		o11y.Log(ctx, "termination: signal received",
			o11y.Field("signal", sig.String()),
			o11y.Field("delay_ms", delay.Milliseconds()),
		)
	case <-ctx.Done():
		return nil
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return ErrTerminated
}
