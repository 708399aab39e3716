package honeycomb

import (
	"fmt"
	"time"

	"github.com/circleci/trafficharness/o11y"
)

// metricsField smuggles a span's recorded metrics to the send hook. The hook always
// removes it before the event leaves the process.
const metricsField = "__o11y_metrics__"

func metricHook(mp o11y.MetricsProvider) func(map[string]interface{}) {
	return func(fields map[string]interface{}) {
		recorded, _ := fields[metricsField].([]o11y.Metric)
		delete(fields, metricsField)
		if mp == nil {
			return
		}

		resultTags := []string{"type:o11y"}
		if _, ok := fields["error"]; ok {
			_ = mp.Count("error", 1, resultTags, 1)
		}
		if _, ok := fields["warning"]; ok {
			_ = mp.Count("warning", 1, resultTags, 1)
		}

		for _, m := range recorded {
			emit(mp, m, fields)
		}
	}
}

func emit(mp o11y.MetricsProvider, m o11y.Metric, fields map[string]interface{}) {
	tags := make([]string, 0, len(m.TagFields))
	for _, name := range m.TagFields {
		if v, ok := lookup(fields, name); ok {
			tags = append(tags, fmt.Sprintf("%s:%v", name, v))
		}
	}

	switch m.Type {
	case o11y.MetricTimer:
		v, ok := lookup(fields, m.Field)
		if !ok {
			return
		}
		ms, ok := milliseconds(v)
		if !ok {
			panic(fmt.Sprintf("metric %s: field %s is %T, not a duration", m.Name, m.Field, v))
		}
		_ = mp.TimeInMilliseconds(m.Name, ms, tags, 1)
	case o11y.MetricCount:
		n := int64(1)
		if m.Field != "" {
			v, ok := lookup(fields, m.Field)
			if !ok {
				return
			}
			switch c := v.(type) {
			case int:
				n = int64(c)
			case int64:
				n = c
			default:
				panic(fmt.Sprintf("metric %s: field %s is %T, not an integer", m.Name, m.Field, v))
			}
		}
		_ = mp.Count(m.Name, n, tags, 1)
	}
}

// lookup finds name as a raw field or as an "app." field.
func lookup(fields map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := fields[name]; ok {
		return v, true
	}
	v, ok := fields["app."+name]
	return v, ok
}

func milliseconds(v interface{}) (float64, bool) {
	switch d := v.(type) {
	case float64:
		return d, true
	case int:
		return float64(d), true
	case int64:
		return float64(d), true
	case time.Duration:
		return float64(d) / float64(time.Millisecond), true
	}
	return 0, false
}
