/*
Package fleet runs the same handler on a set of ports, one HTTP server per port.

The listeners share nothing but the handler and whatever it closes over. A listener that
fails is reported and stops on its own; the rest carry on serving.
*/
package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/circleci/trafficharness/capture"
	"github.com/circleci/trafficharness/capture/gincapture"
	"github.com/circleci/trafficharness/dispatch"
	"github.com/circleci/trafficharness/httpserver"
	"github.com/circleci/trafficharness/httpserver/ginrouter"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/system"
)

// DefaultPorts are the five ports the harness listens on.
var DefaultPorts = []int{3000, 3001, 3002, 3003, 3004}

type Config struct {
	// Name prefixes each listener's server name in o11y
	Name    string
	Host    string
	Ports   []int
	Handler http.Handler
}

// listener is the part of httpserver.HTTPServer the fleet drives.
type listener interface {
	Serve(ctx context.Context) error
	Close() error
	Name() string
	Port() int
	Gauges() system.GaugeProducer
}

type Fleet struct {
	name    string
	servers []listener

	mu     sync.Mutex
	failed map[int]error
}

// New binds every port. If any port cannot be bound the ones already bound are closed.
func New(ctx context.Context, cfg Config) (f *Fleet, err error) {
	ctx, span := o11y.StartSpan(ctx, "fleet: new")
	defer o11y.End(span, &err)

	if cfg.Name == "" {
		cfg.Name = "fleet"
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = DefaultPorts
	}
	if cfg.Handler == nil {
		return nil, errors.New("fleet: no handler")
	}
	span.AddRawField("fleet.name", cfg.Name)
	span.AddRawField("fleet.ports", joinPorts(cfg.Ports))

	f = &Fleet{
		name:   cfg.Name,
		failed: map[int]error{},
	}
	for _, port := range cfg.Ports {
		s, err := httpserver.New(ctx, httpserver.Config{
			Name:    cfg.Name + "-" + strconv.Itoa(port),
			Addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
			Handler: cfg.Handler,
		})
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("fleet port %d: %w", port, err)
		}
		f.servers = append(f.servers, s)
	}
	return f, nil
}

// Serve runs every listener until ctx is done. A listener that fails is logged without
// disturbing the others; the failures are returned together once all have stopped.
func (f *Fleet) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(f.servers))
	for i, s := range f.servers {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serve(ctx)
			if err != nil {
				f.setFailed(s.Port(), err)
				o11y.LogError(ctx, "fleet: listener failed", err,
					o11y.Field("server_name", s.Name()),
					o11y.Field("port", s.Port()),
				)
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Fleet) setFailed(port int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[port] = err
}

// Close stops every listener at once, without draining.
func (f *Fleet) Close() error {
	var errs []error
	for _, s := range f.servers {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Ports are the bound ports, in configured order.
func (f *Fleet) Ports() []int {
	ports := make([]int, 0, len(f.servers))
	for _, s := range f.servers {
		ports = append(ports, s.Port())
	}
	return ports
}

// HealthChecks satisfies system.HealthChecker, the fleet is ready until a listener fails.
func (f *Fleet) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return f.name, func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.failed) == 0 {
			return nil
		}
		ports := make([]int, 0, len(f.failed))
		for p := range f.failed {
			ports = append(ports, p)
		}
		sort.Ints(ports)
		return fmt.Errorf("listeners failed on ports %s", joinPorts(ports))
	}, nil
}

// Load creates the fleet and registers it with sys as a service, a health check and one
// gauge producer per listener.
func Load(ctx context.Context, cfg Config, sys *system.System) (*Fleet, error) {
	f, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sys.AddService(f.Serve)
	sys.AddHealthCheck(f)
	for _, s := range f.servers {
		sys.AddGauges(s.Gauges())
	}
	return f, nil
}

// Pipeline is the handler every listener shares: traced, recovered and captured, with
// the dispatch endpoint answering every request. CORS preflights are answered before
// capture and are not recorded.
func Pipeline(ctx context.Context, rec *capture.Recorder, ep *dispatch.Endpoint) http.Handler {
	r := ginrouter.Default(ctx, "fleet", cors(), gincapture.Middleware(rec))
	ep.Register(r)
	return r
}

func joinPorts(ports []int) string {
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}
