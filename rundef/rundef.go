// Package rundef sizes the Go runtime to the container the harness runs in.
package rundef

import (
	"context"
	"fmt"
	"runtime"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/circleci/trafficharness/o11y"
)

// Defaults sets GOMEMLIMIT and GOMAXPROCS from the cgroup limits, falling back to the
// host's resources when there are none.
func Defaults(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "rundef: defaults")
	defer o11y.End(span, &err)

	eg := errgroup.Group{}
	eg.Go(func() error {
		return MemLimit(ctx)
	})
	eg.Go(func() error {
		return MaxProcs(ctx)
	})
	return eg.Wait()
}

// MemLimit sets GOMEMLIMIT to 90% of the memory available.
func MemLimit(ctx context.Context) (err error) {
	_, span := o11y.StartSpan(ctx, "rundef: mem limit")
	defer o11y.End(span, &err)

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			)))
	if err != nil {
		return err
	}
	span.AddRawField("rundef.mem_limit", limit)
	return nil
}

// MaxProcs sets GOMAXPROCS to the CPU quota, at least 1.
func MaxProcs(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "rundef: max procs")
	defer o11y.End(span, &err)

	_, err = maxprocs.Set(maxprocs.Min(1), maxprocs.Logger(func(s string, i ...interface{}) {
		o11y.Log(ctx, "rundef: "+fmt.Sprintf(s, i...))
	}))
	if err != nil {
		return err
	}
	span.AddRawField("rundef.max_procs", runtime.GOMAXPROCS(0))
	return nil
}
