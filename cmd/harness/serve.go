package main

import (
	"context"
	"fmt"
	"time"

	"github.com/circleci/trafficharness/capture"
	"github.com/circleci/trafficharness/capturelog"
	"github.com/circleci/trafficharness/dispatch"
	"github.com/circleci/trafficharness/fleet"
	"github.com/circleci/trafficharness/httpserver/healthcheck"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/payload"
	"github.com/circleci/trafficharness/rundef"
	"github.com/circleci/trafficharness/system"
)

type serveCmd struct {
	Host      string `env:"HARNESS_HOST" help:"Interface the listeners bind to, all when empty"`
	Ports     []int  `env:"HARNESS_PORTS" default:"3000,3001,3002,3003,3004" help:"Ports to listen on"`
	LogPath   string `name:"log-path" env:"HARNESS_LOG_PATH" default:"access.log.jsonl" help:"Capture log file, appended to"`
	AdminAddr string `env:"ADMIN_ADDR" default:":8001" help:"The address for the admin api to listen on"`

	Kinds        []string      `env:"HARNESS_RESPONSE_KINDS" default:"json" help:"Response payload kinds (json, text, binary)"`
	Canonical    bool          `env:"HARNESS_CANONICAL" help:"Respond with the canonical outcome bodies instead of random payloads"`
	MaxChunks    int           `env:"HARNESS_MAX_CHUNKS" default:"4" help:"Most writes a response body is split into"`
	MaxBodySize  int64         `env:"HARNESS_MAX_BODY_SIZE" default:"52428800" help:"Request bytes captured per request"`
	SyncInterval time.Duration `env:"HARNESS_SYNC_INTERVAL" default:"1s" help:"How often the capture log is synced to disk"`

	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" default:"0s" help:"Delay shutdown by this amount" hidden:""`
}

func (s *serveCmd) Run(f *O11yFlags) (err error) {
	kinds, err := parseKinds(s.Kinds)
	if err != nil {
		return err
	}

	ctx, o11yCleanup, err := loadO11y("serve", f)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: serve")
	defer o11y.End(runSpan, &err)

	o11y.Log(ctx, "starting harness",
		o11y.Field("version", Version),
		o11y.Field("date", Date),
		o11y.Field("ports", fmt.Sprint(s.Ports)),
		o11y.Field("log_path", s.LogPath),
	)
	if err := rundef.Defaults(ctx); err != nil {
		o11y.LogError(ctx, "main: runtime defaults", err)
	}

	sys := system.New(ctx)
	defer sys.Cleanup(ctx)

	if err = s.load(ctx, kinds, sys); err != nil {
		return err
	}

	// Should be last so it collects all the health checks
	if _, err = healthcheck.Load(ctx, s.AdminAddr, sys); err != nil {
		return err
	}

	return sys.Run(s.ShutdownDelay)
}

func (s *serveCmd) load(ctx context.Context, kinds []payload.Kind, sys *system.System) error {
	l, err := capturelog.Open(s.LogPath)
	if err != nil {
		return err
	}
	sys.AddCleanup(func(ctx context.Context) error {
		return l.Close()
	})
	sys.AddService(l.SyncLoop(s.SyncInterval))
	sys.AddHealthCheck(l)
	sys.AddGauges(l)

	rec := capture.New(capture.Config{
		Sink:        l,
		MaxBodySize: s.MaxBodySize,
	})
	sys.AddGauges(rec)

	ep := dispatch.New(dispatch.Config{
		Kinds:     kinds,
		Canonical: s.Canonical,
		MaxChunks: s.MaxChunks,
	})

	_, err = fleet.Load(ctx, fleet.Config{
		Name:    "fleet",
		Host:    s.Host,
		Ports:   s.Ports,
		Handler: fleet.Pipeline(ctx, rec, ep),
	}, sys)
	return err
}

func parseKinds(names []string) ([]payload.Kind, error) {
	kinds := make([]payload.Kind, 0, len(names))
	for _, n := range names {
		k, ok := payload.ParseKind(n)
		if !ok {
			return nil, fmt.Errorf("unknown payload kind %q, want json, text or binary", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
