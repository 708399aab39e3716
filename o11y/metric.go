package o11y

import "io"

type MetricType string

const (
	MetricTimer MetricType = "timer"
	MetricCount MetricType = "count"
)

// Metric describes a value to lift out of a span when it ends.
type Metric struct {
	Type MetricType
	Name string
	// Field names the span field holding the value. A count with no Field counts one.
	Field string
	// TagFields name span fields to send as tags, skipped when the span lacks them.
	TagFields []string
}

// Timing emits the span duration as a timer.
func Timing(name string, tagFields ...string) Metric {
	return Metric{Type: MetricTimer, Name: name, Field: "duration_ms", TagFields: tagFields}
}

// Incr counts one for every span that records it.
func Incr(name string, tagFields ...string) Metric {
	return Metric{Type: MetricCount, Name: name, TagFields: tagFields}
}

// MetricsProvider is the subset of the statsd client the harness emits through.
type MetricsProvider interface {
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
}

type ClosableMetricsProvider interface {
	MetricsProvider
	io.Closer
}
