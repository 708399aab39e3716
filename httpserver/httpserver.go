package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/system"
)

type HTTPServer struct {
	name     string
	listener *trackedListener
	server   *http.Server

	shutdownTimeout time.Duration
}

type Config struct {
	// Name is the name of the server in o11y
	Name string
	// Addr is the address to listen on, eg ":3000" or "localhost:0"
	Addr string
	// Handler is the HTTP handler to delegate requests to.
	Handler http.Handler

	// Optional
	// Network must be "tcp", "tcp4", "tcp6", "unix" or "" (which defaults to tcp).
	Network string
	// ShutdownTimeout bounds the drain of in-flight requests, defaults to 10s
	ShutdownTimeout time.Duration
}

// New binds the listener straight away, so a port clash is reported here rather than
// once the server is started.
func New(ctx context.Context, cfg Config) (s *HTTPServer, err error) {
	_, span := o11y.StartSpan(ctx, "httpserver: new")
	defer o11y.End(span, &err)
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	span.AddRawField("server_name", cfg.Name)
	span.AddRawField("network", cfg.Network)
	span.AddRawField("address", cfg.Addr)

	ln, err := net.Listen(cfg.Network, cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", cfg.Network, cfg.Addr, err)
	}
	tl := &trackedListener{
		Listener: ln,
		name:     cfg.Name,
	}
	span.AddRawField("bound_address", tl.Addr().String())

	return &HTTPServer{
		name:     cfg.Name,
		listener: tl,
		server: &http.Server{
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       55 * time.Second,
			WriteTimeout:      55 * time.Second,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

// Serve the http server. On context cancellation the server is shutdown giving some time
// for the in flight requests to be handled.
func (s *HTTPServer) Serve(ctx context.Context) (err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		o11y.Log(ctx, "httpserver: shutdown",
			o11y.Field("server_name", s.name),
			o11y.Field("address", s.Addr()),
		)
		sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(sctx); err != nil {
			return fmt.Errorf("server %q shutdown failed: %w", s.name, err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.server.Serve(s.listener)
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server %q: %w", s.name, err)
		}
		return nil
	})

	return g.Wait()
}

// Close stops the server immediately without draining. It may be used whether or not
// Serve was called.
func (s *HTTPServer) Close() error {
	err := s.server.Close()
	if lerr := s.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) && err == nil {
		err = lerr
	}
	return err
}

func (s *HTTPServer) Name() string {
	return s.name
}

func (s *HTTPServer) Addr() string {
	return s.listener.Addr().String()
}

// Port is the bound TCP port, which differs from the configured one when that was 0.
// It is 0 for non TCP listeners.
func (s *HTTPServer) Port() int {
	if a, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Gauges reports the listener's connection counts.
func (s *HTTPServer) Gauges() system.GaugeProducer {
	return s.listener
}

// Load binds the server and adds it to sys as a service, with its connection gauges.
func Load(ctx context.Context, cfg Config, sys *system.System) (*HTTPServer, error) {
	s, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sys.AddService(s.Serve)
	sys.AddGauges(s.Gauges())
	return s, nil
}
