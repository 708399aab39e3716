package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/recontext"
)

// ErrShouldBackoff tells the loop the last call found nothing to do, so it waits for
// the next back-off interval before calling again.
var ErrShouldBackoff = errors.New("should back off")

// Backoff returns an error that makes the loop record err on the span and then wait,
// as it does for ErrShouldBackoff. A nil err is plain ErrShouldBackoff.
func Backoff(err error) error {
	if err == nil {
		return ErrShouldBackoff
	}
	return &backoffError{err: err}
}

type backoffError struct {
	err error
}

func (e *backoffError) Error() string   { return e.err.Error() }
func (e *backoffError) Unwrap() []error { return []error{e.err, ErrShouldBackoff} }

type Config struct {
	Name string
	// NoWorkBackOff paces the loop after an idle call, an exponential back-off from
	// 50ms to 5s when nil.
	NoWorkBackOff backoff.BackOff
	// MaxWorkTime bounds each call, 10s when zero.
	MaxWorkTime time.Duration
	WorkFunc    func(ctx context.Context) error

	waiter func(ctx context.Context, delay time.Duration)
}

// Run calls WorkFunc until ctx is cancelled.
//
// Every call runs in its own span, under a context that keeps the values of ctx but
// not its cancellation. A call that is in flight at shutdown completes.
func Run(ctx context.Context, cfg Config) {
	cfg = withDefaults(cfg)
	cfg.NoWorkBackOff.Reset()

	for ctx.Err() == nil {
		delay, idle := doWork(ctx, cfg)
		if !idle {
			cfg.NoWorkBackOff.Reset()
			continue
		}
		cfg.waiter(ctx, delay)
	}
}

// Every calls fn at a fixed interval until ctx is cancelled. Errors from fn are recorded
// on the call's span and do not stop the loop.
func Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	Run(ctx, Config{
		Name:          name,
		MaxWorkTime:   interval,
		NoWorkBackOff: backoff.NewConstantBackOff(interval),
		WorkFunc: func(ctx context.Context) error {
			return Backoff(fn(ctx))
		},
	})
}

func withDefaults(cfg Config) Config {
	if cfg.waiter == nil {
		cfg.waiter = wait
	}
	if cfg.NoWorkBackOff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 0
		cfg.NoWorkBackOff = b
	}
	if cfg.MaxWorkTime <= 0 {
		cfg.MaxWorkTime = 10 * time.Second
	}
	return cfg
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// doWork makes one call. idle reports that the loop should wait delay before the next.
func doWork(ctx context.Context, cfg Config) (delay time.Duration, idle bool) {
	ctx, cancel := recontext.WithNewTimeout(ctx, cfg.MaxWorkTime)
	defer cancel()

	var err error
	ctx, span := o11y.StartSpan(ctx, "worker: "+cfg.Name)
	defer o11y.End(span, &err)
	span.AddRawField("loop_name", cfg.Name)
	span.RecordMetric(o11y.Timing("worker_loop", "loop_name", "result"))

	// a panic is reported and treated as an idle call, so a persistent panic cannot spin
	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r, nil)
			delay, idle = cfg.NoWorkBackOff.NextBackOff(), true
		}
	}()

	err = cfg.WorkFunc(ctx)
	if !errors.Is(err, ErrShouldBackoff) {
		return 0, false
	}
	if err == ErrShouldBackoff { //nolint:errorlint
		err = nil
	}
	delay = cfg.NoWorkBackOff.NextBackOff()
	span.AddRawField("backoff_ms", delay.Milliseconds())
	return delay, true
}
