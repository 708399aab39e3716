package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestForIt_Done(t *testing.T) {
	calls := 0
	err := ForIt(context.Background(), time.Second, func() (bool, error) {
		calls++
		return calls == 3, nil
	})
	assert.Check(t, err)
	assert.Check(t, cmp.Equal(calls, 3))
}

func TestForIt_DoneWithError(t *testing.T) {
	err := ForIt(context.Background(), time.Second, func() (bool, error) {
		return true, errors.New("bad record")
	})
	assert.Check(t, cmp.Error(err, "bad record"))
}

func TestForIt_Timeout(t *testing.T) {
	err := ForIt(context.Background(), 120*time.Millisecond, func() (bool, error) {
		return false, errors.New("0 records")
	})
	assert.Check(t, cmp.ErrorIs(err, context.DeadlineExceeded))
	assert.Check(t, cmp.ErrorContains(err, "last check: 0 records"))
}

func TestForIt_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForIt(ctx, time.Second, func() (bool, error) { return false, nil })
	assert.Check(t, cmp.ErrorIs(err, context.Canceled))
}
