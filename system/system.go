package system

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/termination"
)

type System struct {
	group *errgroup.Group
	ctx   context.Context

	services       []func(context.Context) error
	healthChecks   []HealthChecker
	gaugeProducers []GaugeProducer
	cleanups       []func(ctx context.Context) error
}

// HealthChecker is anything that can report readiness and liveness, either func may be nil.
type HealthChecker interface {
	HealthChecks() (name string, ready, live func(ctx context.Context) error)
}

func New(ctx context.Context) *System {
	group, ctx := errgroup.WithContext(ctx)
	return &System{
		group: group,
		ctx:   ctx,
	}
}

var terminationTestHook = termination.Handle

// Run starts every service and blocks until one of them returns an error or the process
// is terminated. The delay is applied between receiving a signal and cancelling services.
func (r *System) Run(delay time.Duration) (err error) {
	_, span := o11y.StartSpan(r.ctx, "system: run")
	defer o11y.End(span, &err)
	span.AddRawField("services", len(r.services))
	span.RecordMetric(o11y.Timing("system.run", "result"))

	r.group.Go(func() error {
		return terminationTestHook(r.ctx, delay)
	})

	for _, f := range r.services {
		f := f
		r.group.Go(func() error {
			return f(r.ctx)
		})
	}

	if len(r.gaugeProducers) > 0 {
		r.group.Go(gaugeReporter(r.ctx, r.gaugeProducers))
	}

	return r.group.Wait()
}

func (r *System) AddService(s func(ctx context.Context) error) {
	r.services = append(r.services, s)
}

func (r *System) AddHealthCheck(h HealthChecker) {
	r.healthChecks = append(r.healthChecks, h)
}

func (r *System) AddGauges(g GaugeProducer) {
	r.gaugeProducers = append(r.gaugeProducers, g)
}

// AddCleanup registers c to run from Cleanup. Cleanups run in the order they were added.
func (r *System) AddCleanup(c func(ctx context.Context) error) {
	r.cleanups = append(r.cleanups, c)
}

func (r *System) HealthChecks() []HealthChecker {
	return r.healthChecks
}

func (r *System) GaugeProducers() []GaugeProducer {
	return r.gaugeProducers
}

func (r *System) Cleanup(ctx context.Context) {
	for _, c := range r.cleanups {
		err := c(ctx)
		if err != nil {
			o11y.LogError(ctx, "system: cleanup", err)
		}
	}
}
