package system

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/worker"
)

type GaugeProducer interface {
	// GaugeName prefixes every gauge of the producer.
	GaugeName() string
	// Gauges samples the current values. A name may carry one value per tag set, for
	// instance one per listener port.
	Gauges(context.Context) map[string][]TaggedValue
}

type TaggedValue struct {
	Val  float64
	Tags []string
}

// Reading is one sampled gauge value under its full name, gauge.<producer>.<name>.
type Reading struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	Tags  []string `json:"tags,omitempty"`
}

// ReadGauges samples every producer, ordered by name then tags.
func ReadGauges(ctx context.Context, producers []GaugeProducer) []Reading {
	var readings []Reading
	for _, p := range producers {
		prefix := "gauge." + strings.ReplaceAll(p.GaugeName(), "-", "_") + "."
		for name, tvs := range p.Gauges(ctx) {
			for _, tv := range tvs {
				readings = append(readings, Reading{Name: prefix + name, Value: tv.Val, Tags: tv.Tags})
			}
		}
	}
	sort.Slice(readings, func(i, j int) bool {
		if readings[i].Name != readings[j].Name {
			return readings[i].Name < readings[j].Name
		}
		return strings.Join(readings[i].Tags, ",") < strings.Join(readings[j].Tags, ",")
	})
	return readings
}

var gaugeInterval = 10 * time.Second

func gaugeReporter(ctx context.Context, producers []GaugeProducer) func() error {
	return func() error {
		metrics := o11y.FromContext(ctx).MetricsProvider()
		worker.Every(ctx, "gauges", gaugeInterval, func(ctx context.Context) error {
			for _, r := range ReadGauges(ctx, producers) {
				_ = metrics.Gauge(r.Name, r.Value, r.Tags, 1)
			}
			return nil
		})
		return nil
	}
}
