// Package o11y wires the honeycomb, statsd and rollbar backends into an o11y provider.
package o11y

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rollbar/rollbar-go"

	"github.com/circleci/trafficharness/config/secret"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/o11y/honeycomb"
)

type Config struct {
	// Statsd is the host:port of a dogstatsd agent. Metrics are discarded when empty.
	Statsd         string
	StatsNamespace string

	RollbarToken      secret.String
	RollbarEnv        string
	RollbarServerRoot string

	HoneycombEnabled bool
	HoneycombDataset string
	HoneycombKey     secret.String
	SampleTraces     bool
	// SampleKeyFunc groups spans for SampleRates, by span name when nil.
	SampleKeyFunc func(map[string]interface{}) string
	SampleRates   map[string]int

	// Format of the local event stream: json, text, colour or none.
	Format  string
	Version string
	Service string
	// Mode is the harness subcommand, added to every span and metric.
	Mode string

	Debug                   bool
	RollbarDisabled         bool
	StatsdTelemetryDisabled bool
	// Writer receives the local event stream, stderr when nil.
	Writer io.Writer
}

// Setup builds the provider and returns ctx carrying it, along with the func that
// flushes and closes every backend. Callers defer the close func.
func Setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	hc := honeycomb.Config{
		Dataset:       o.HoneycombDataset,
		Key:           o.HoneycombKey.Raw(),
		Format:        o.Format,
		SendTraces:    o.HoneycombEnabled,
		SampleTraces:  o.SampleTraces,
		SampleKeyFunc: o.SampleKeyFunc,
		SampleRates:   o.SampleRates,
		Writer:        o.Writer,
		ServiceName:   o.Service,
		Debug:         o.Debug,
	}
	if err := hc.Validate(); err != nil {
		return nil, nil, err
	}

	hostname, _ := os.Hostname()
	metrics, err := statsdClient(o, hostname)
	if err != nil {
		return nil, nil, err
	}
	hc.Metrics = metrics

	provider := honeycomb.New(hc)
	provider.AddGlobalField("service", o.Service)
	provider.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		provider.AddGlobalField("mode", o.Mode)
	}

	if o.RollbarToken.IsSet() {
		client := rollbar.NewAsync(o.RollbarToken.Raw(), o.RollbarEnv, o.Version, hostname, o.RollbarServerRoot)
		client.SetEnabled(!o.RollbarDisabled)
		provider = withRollbar{Provider: provider, client: client}
	}

	return o11y.WithProvider(ctx, provider), provider.Close, nil
}

func statsdClient(o Config, hostname string) (o11y.ClosableMetricsProvider, error) {
	if o.Statsd == "" {
		return &statsd.NoOpClient{}, nil
	}

	tags := []string{"service:" + o.Service, "version:" + o.Version, "hostname:" + hostname}
	if o.Mode != "" {
		tags = append(tags, "mode:"+o.Mode)
	}
	opts := []statsd.Option{
		statsd.WithNamespace(o.StatsNamespace),
		statsd.WithTags(tags),
	}
	if o.StatsdTelemetryDisabled {
		opts = append(opts, statsd.WithoutTelemetry())
	}

	client, err := statsd.New(o.Statsd, opts...)
	if err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	return client, nil
}

// withRollbar adds rollbar panic reporting to a provider, see o11y.RollbarReporter.
type withRollbar struct {
	o11y.Provider
	client *rollbar.Client
}

func (p withRollbar) Close(ctx context.Context) {
	p.Provider.Close(ctx)
	_ = p.client.Close()
}

func (p withRollbar) RollBarClient() *rollbar.Client {
	return p.client
}
