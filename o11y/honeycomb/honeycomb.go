// Package honeycomb implements the o11y provider on the honeycomb beeline.
//
// Every span is written locally as it ends (json, text or colour text on stderr by
// default) and is also shipped to honeycomb when SendTraces is set.
package honeycomb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/honeycombio/beeline-go"
	"github.com/honeycombio/beeline-go/client"
	"github.com/honeycombio/beeline-go/propagation"
	"github.com/honeycombio/beeline-go/trace"
	"github.com/honeycombio/libhoney-go"
	"github.com/honeycombio/libhoney-go/transmission"

	"github.com/circleci/trafficharness/o11y"
)

type Config struct {
	Host    string
	Dataset string
	Key     string
	// Format of the local stream: json (the default), text, colour or none.
	Format string
	// SendTraces ships events to the honeycomb API as well as the local stream.
	SendTraces bool
	// Sender replaces the honeycomb API transmission, for tests.
	Sender transmission.Sender

	SampleTraces  bool
	SampleKeyFunc func(map[string]interface{}) string
	SampleRates   map[string]int

	// Writer receives the local stream, stderr when nil.
	Writer      io.Writer
	Metrics     o11y.ClosableMetricsProvider
	ServiceName string

	Debug bool
}

func (c *Config) Validate() error {
	if c.SendTraces && c.Sender == nil && c.Key == "" {
		return errors.New("honeycomb_key key required for honeycomb")
	}
	return nil
}

func (c *Config) transmission() transmission.Sender {
	w := c.Writer
	if w == nil {
		w = os.Stderr
	}

	var senders []transmission.Sender
	switch {
	case c.SendTraces && c.Sender != nil:
		senders = append(senders, c.Sender)
	case c.SendTraces:
		senders = append(senders, &transmission.Honeycomb{
			MaxBatchSize:         libhoney.DefaultMaxBatchSize,
			BatchTimeout:         libhoney.DefaultBatchTimeout,
			MaxConcurrentBatches: libhoney.DefaultMaxConcurrentBatches,
			PendingWorkCapacity:  libhoney.DefaultPendingWorkCapacity,
			UserAgentAddition:    c.ServiceName,
		})
	}

	switch c.Format {
	case "none":
	case "text":
		senders = append(senders, &textSender{w: w})
	case "colour", "color":
		senders = append(senders, &textSender{w: w, colour: true})
	default:
		senders = append(senders, &transmission.WriterSender{W: w})
	}
	return &teeSender{senders: senders}
}

type provider struct {
	metrics o11y.ClosableMetricsProvider
}

// New initialises the beeline and returns a provider backed by it. The beeline is
// process global, so only one provider should be live at a time.
func New(conf Config) o11y.Provider {
	// libhoney only fails on invalid config that transmission() never produces
	hc, _ := libhoney.NewClient(libhoney.ClientConfig{
		APIKey:       conf.Key,
		Dataset:      conf.Dataset,
		APIHost:      conf.Host,
		Transmission: conf.transmission(),
	})

	bc := beeline.Config{
		Client:      hc,
		Debug:       conf.Debug,
		WriteKey:    conf.Key,
		ServiceName: conf.ServiceName,
	}

	emit := metricHook(conf.Metrics)
	if conf.SampleTraces {
		s := newSampler(conf.SampleKeyFunc, conf.SampleRates)
		// metrics must see every span, including the ones sampling drops
		bc.SamplerHook = func(fields map[string]interface{}) (bool, int) {
			emit(fields)
			return s.hook(fields)
		}
	} else {
		bc.PresendHook = emit
	}
	beeline.Init(bc)

	return &provider{metrics: conf.Metrics}
}

func (p *provider) AddGlobalField(key string, val interface{}) {
	mustValidateKey(key)
	client.AddField(key, val)
}

func (p *provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	var s *trace.Span
	if parent := trace.GetSpanFromContext(ctx); parent != nil {
		ctx, s = parent.CreateChild(ctx)
	} else {
		var tr *trace.Trace
		ctx, tr = trace.NewTrace(ctx, nil)
		s = tr.GetRootSpan()
	}
	s.AddField("name", name)
	return ctx, wrap(s)
}

func (p *provider) GetSpan(ctx context.Context) o11y.Span {
	return wrap(trace.GetSpanFromContext(ctx))
}

func (p *provider) AddField(ctx context.Context, key string, val interface{}) {
	mustValidateKey(key)
	beeline.AddField(ctx, key, val)
}

func (p *provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := p.StartSpan(ctx, name)
	for _, f := range fields {
		s.AddField(f.Key, f.Value)
	}
	s.End()
}

func (p *provider) Close(context.Context) {
	beeline.Close()
	if p.metrics != nil {
		_ = p.metrics.Close()
	}
}

func (p *provider) MetricsProvider() o11y.MetricsProvider {
	if p.metrics == nil {
		return nil
	}
	return p.metrics
}

func (p *provider) Helpers() o11y.Helpers {
	return p
}

func (p *provider) ExtractPropagation(ctx context.Context) o11y.PropagationContext {
	s := trace.GetSpanFromContext(ctx)
	if s == nil {
		return o11y.PropagationContext{}
	}
	parent := s.SerializeHeaders()
	return o11y.PropagationContext{
		Parent:  parent,
		Headers: http.Header{propagation.TracePropagationHTTPHeader: {parent}},
	}
}

func (p *provider) InjectPropagation(ctx context.Context, pc o11y.PropagationContext) (context.Context, o11y.Span) {
	header := pc.Parent
	if header == "" {
		header = pc.Headers.Get(propagation.TracePropagationHTTPHeader)
	}
	var prop *propagation.PropagationContext
	if header != "" {
		// a malformed header starts a fresh trace
		prop, _ = propagation.UnmarshalHoneycombTraceContext(header)
	}
	ctx, tr := trace.NewTrace(ctx, prop)
	return ctx, wrap(tr.GetRootSpan())
}

type span struct {
	span    *trace.Span
	metrics []o11y.Metric
}

func wrap(s *trace.Span) o11y.Span {
	if s == nil {
		return nil
	}
	return &span{span: s}
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	mustValidateKey(key)
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	s.span.AddField(key, val)
}

func (s *span) RecordMetric(m o11y.Metric) {
	s.metrics = append(s.metrics, m)
	s.span.AddField(metricsField, s.metrics)
}

func (s *span) End() {
	s.span.Send()
}

// mustValidateKey panics on keys statsd tags and honeycomb columns cannot share.
func mustValidateKey(key string) {
	if strings.Contains(key, "-") {
		panic(fmt.Errorf("key %q cannot contain '-'", key))
	}
}
