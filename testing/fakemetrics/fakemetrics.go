// Package fakemetrics records the calls made to an o11y.MetricsProvider, for tests that
// assert on timers, counts and gauges without a statsd agent.
package fakemetrics

import "sync"

// MetricCall is one recorded call. Metric is "timer", "count" or "gauge". Counts keep
// their value in ValueInt, the others in Value.
type MetricCall struct {
	Metric   string
	Name     string
	Value    float64
	ValueInt int64
	Tags     []string
	Rate     float64
}

// Provider implements o11y.ClosableMetricsProvider. The zero value is ready to use.
type Provider struct {
	mu    sync.Mutex
	calls []MetricCall
}

func (f *Provider) TimeInMilliseconds(name string, value float64, tags []string, rate float64) error {
	f.add(MetricCall{Metric: "timer", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (f *Provider) Gauge(name string, value float64, tags []string, rate float64) error {
	f.add(MetricCall{Metric: "gauge", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (f *Provider) Count(name string, value int64, tags []string, rate float64) error {
	f.add(MetricCall{Metric: "count", Name: name, ValueInt: value, Tags: tags, Rate: rate})
	return nil
}

func (f *Provider) Close() error {
	return nil
}

func (f *Provider) add(c MetricCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns every call in the order made.
func (f *Provider) Calls() []MetricCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MetricCall(nil), f.calls...)
}

// Named returns the calls for one metric name in the order made.
func (f *Provider) Named(name string) []MetricCall {
	var named []MetricCall
	for _, c := range f.Calls() {
		if c.Name == name {
			named = append(named, c)
		}
	}
	return named
}

// CountTotal sums the count calls for name.
func (f *Provider) CountTotal(name string) int64 {
	var total int64
	for _, c := range f.Named(name) {
		if c.Metric == "count" {
			total += c.ValueInt
		}
	}
	return total
}

func (f *Provider) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
