package termination

import (
	"context"
	"syscall"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestHandle_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Check(t, Handle(ctx, time.Second))
}

func TestHandle_Signal(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		done <- Handle(context.Background(), 10*time.Millisecond)
	}()

	// give Handle time to register for the signal
	time.Sleep(50 * time.Millisecond)
	assert.Assert(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		assert.Check(t, cmp.ErrorIs(err, ErrTerminated))
	case <-time.After(5 * time.Second):
		t.Fatal("Handle did not return after SIGTERM")
	}
}
