// Package o11y is the observability facade used across the harness. Spans double as
// structured log lines and metrics are extracted from span fields when a span ends.
package o11y

import (
	"context"
	"errors"
)

// Provider is the backend behind the package level helpers. A context without a
// provider falls back to a provider that discards everything.
type Provider interface {
	// AddGlobalField attaches key to every span the provider emits, such as the
	// service name or the running mode.
	AddGlobalField(key string, val interface{})

	// StartSpan opens a child of the span in ctx, or a new trace when ctx has none.
	// The caller must end it, normally with
	//
	//   ctx, span := o11y.StartSpan(ctx, "capturelog: append")
	//   defer o11y.End(span, &err)
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetSpan returns the span active in ctx or nil.
	GetSpan(ctx context.Context) Span

	// AddField sets an "app." prefixed field on the span active in ctx.
	AddField(ctx context.Context, key string, val interface{})

	// Log emits a zero duration span carrying fields.
	Log(ctx context.Context, name string, fields ...Pair)

	Close(ctx context.Context)

	// MetricsProvider gives direct access to the metrics backend, for values that do
	// not belong to a span such as gauges.
	MetricsProvider() MetricsProvider

	Helpers() Helpers
}

// Span is one unit of traced work.
type Span interface {
	// AddField sets an "app." prefixed field.
	AddField(key string, val interface{})

	// AddRawField sets a field without a prefix. Plumbing uses it for the shared
	// vocabulary: result, error, http.status_code, capture.port.
	AddRawField(key string, val interface{})

	// RecordMetric asks for metric to be emitted from the span fields once the span ends.
	RecordMetric(metric Metric)

	// End marks the span complete. It must not be used afterwards.
	End()
}

type providerKey struct{}

// WithProvider returns a copy of ctx carrying p.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the provider in ctx, or the discarding provider.
func FromContext(ctx context.Context) Provider {
	if p, ok := ctx.Value(providerKey{}).(Provider); ok {
		return p
	}
	return defaultProvider
}

// StartSpan starts a span with the provider in ctx.
func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return FromContext(ctx).StartSpan(ctx, name)
}

// AddField sets a field on the span active in ctx.
func AddField(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddField(ctx, key, val)
}

// Log emits a zero duration event.
func Log(ctx context.Context, name string, fields ...Pair) {
	FromContext(ctx).Log(ctx, name, fields...)
}

// LogError emits a zero duration event with the result fields set from err.
func LogError(ctx context.Context, name string, err error, fields ...Pair) {
	_, span := StartSpan(ctx, name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	AddResultToSpan(span, err)
	span.End()
}

// End records the result held in *err and ends span. Pass the address of a named
// return so the value seen is the one the function finally returned:
//
//	defer o11y.End(span, &err)
func End(span Span, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	AddResultToSpan(span, e)
	span.End()
}

// AddResultToSpan sets the result field and, depending on err, the error or warning field.
//
// Warnings and context cancellation are not errors. A client hanging up on the
// fleet cancels the request context and should not read as a failure.
func AddResultToSpan(span Span, err error) {
	switch {
	case err == nil:
		span.AddRawField("result", "success")
	case IsWarning(err):
		span.AddRawField("result", "success")
		span.AddRawField("warning", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		span.AddRawField("result", "canceled")
		span.AddRawField("warning", err.Error())
	default:
		span.AddRawField("result", "error")
		span.AddRawField("error", err.Error())
	}
}

// Pair is a single span field.
type Pair struct {
	Key   string
	Value interface{}
}

// Field builds a Pair.
func Field(key string, value interface{}) Pair {
	return Pair{Key: key, Value: value}
}
