package main

import (
	"context"

	"github.com/circleci/trafficharness/config/o11y"
	"github.com/circleci/trafficharness/config/secret"
)

type O11yFlags struct {
	O11yStatsd           string        `name:"o11y-statsd" env:"O11Y_STATSD" help:"Address to send statsd metrics, none are sent when empty"`
	O11yHoneycombEnabled bool          `name:"o11y-honeycomb" env:"O11Y_HONEYCOMB" default:"false" help:"Send traces to honeycomb"`
	O11yHoneycombDataset string        `name:"o11y-honeycomb-dataset" env:"O11Y_HONEYCOMB_DATASET" default:"traffic-harness"`
	O11yHoneycombKey     secret.String `name:"o11y-honeycomb-key" env:"O11Y_HONEYCOMB_KEY"`
	O11yFormat           string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"json,color,text" default:"text" help:"Format used for stderr logging"`
	O11yRollbarToken     secret.String `name:"o11y-rollbar-token" env:"O11Y_ROLLBAR_TOKEN"`
	O11yRollbarEnv       string        `name:"o11y-rollbar-env" env:"O11Y_ROLLBAR_ENV" default:"production"`
	O11yDebug            bool          `name:"o11y-debug" env:"O11Y_DEBUG" help:"Include debug detail in the local event stream"`
}

func loadO11y(mode string, f *O11yFlags) (context.Context, func(context.Context), error) {
	return o11y.Setup(context.Background(), o11y.Config{
		Statsd:            f.O11yStatsd,
		RollbarToken:      f.O11yRollbarToken,
		RollbarEnv:        f.O11yRollbarEnv,
		RollbarServerRoot: "github.com/circleci/trafficharness",
		HoneycombEnabled:  f.O11yHoneycombEnabled,
		HoneycombDataset:  f.O11yHoneycombDataset,
		HoneycombKey:      f.O11yHoneycombKey,
		Format:            f.O11yFormat,
		Version:           Version,
		Service:           "traffic-harness",
		StatsNamespace:    "harness.",
		Mode:              mode,
		Debug:             f.O11yDebug,
	})
}
