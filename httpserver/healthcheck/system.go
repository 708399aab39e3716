package healthcheck

import (
	"context"
	"fmt"

	"github.com/circleci/trafficharness/httpserver"
	"github.com/circleci/trafficharness/system"
)

// Load serves the admin API on addr. Call it last, once every health check and gauge
// producer has been added to sys.
func Load(ctx context.Context, addr string, sys *system.System) (*httpserver.HTTPServer, error) {
	api, err := New(ctx, sys.HealthChecks(), sys.GaugeProducers())
	if err != nil {
		return nil, fmt.Errorf("admin api: %w", err)
	}
	return httpserver.Load(ctx, httpserver.Config{
		Name:    "admin",
		Addr:    addr,
		Handler: api.Handler(),
	}, sys)
}
