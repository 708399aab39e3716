package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/payload"
	"github.com/circleci/trafficharness/traffic"
)

// target configures the traffic generator, shared by send and console.
type target struct {
	Host        string        `env:"HARNESS_TARGET_HOST" default:"localhost" help:"Host the listeners run on"`
	Ports       []int         `env:"HARNESS_PORTS" default:"3000,3001,3002,3003,3004" help:"Listener ports to spread requests over"`
	Concurrency int           `env:"HARNESS_CONCURRENCY" default:"1" help:"Requests in flight at once"`
	Timeout     time.Duration `env:"HARNESS_TIMEOUT" default:"5s" help:"Timeout for each request"`
	Kinds       []string      `env:"HARNESS_REQUEST_KINDS" default:"json" help:"Request body kinds (json, text, binary)"`
	Seed        int64         `env:"HARNESS_SEED" help:"Seed for the random requests, the clock when 0"`
}

func (t target) generator(count int) (*traffic.Generator, error) {
	kinds, err := parseKinds(t.Kinds)
	if err != nil {
		return nil, err
	}
	payloads := payload.NewRandom()
	if t.Seed != 0 {
		payloads = payload.New(t.Seed)
	}
	return traffic.New(traffic.Config{
		Host:        t.Host,
		Ports:       t.Ports,
		Count:       count,
		Kinds:       kinds,
		Concurrency: t.Concurrency,
		Timeout:     t.Timeout,
		Payloads:    payloads,
	}), nil
}

type sendCmd struct {
	Target target `embed:""`

	Count int `short:"n" env:"HARNESS_COUNT" default:"500" help:"Number of requests to send"`

	out io.Writer `kong:"-"`
}

func (s *sendCmd) Run(f *O11yFlags) (err error) {
	if s.Count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	g, err := s.Target.generator(s.Count)
	if err != nil {
		return err
	}
	if s.out == nil {
		s.out = os.Stdout
	}

	ctx, o11yCleanup, err := loadO11y("send", f)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, span := o11y.StartSpan(ctx, "main: send")
	defer o11y.End(span, &err)

	summary, err := g.Run(ctx, s.Count, traffic.ReporterFunc(func(line string) {
		_, _ = fmt.Fprintln(s.out, line)
	}))
	printSummary(s.out, summary)
	return err
}

func printSummary(w io.Writer, s traffic.Summary) {
	_, _ = fmt.Fprintf(w, "sent %d, responded %d, failed %d\n", s.Sent, s.Responded, s.Failed)
	statuses := make([]int, 0, len(s.Statuses))
	for st := range s.Statuses {
		statuses = append(statuses, st)
	}
	sort.Ints(statuses)
	for _, st := range statuses {
		_, _ = fmt.Fprintf(w, "  %d: %d\n", st, s.Statuses[st])
	}
}
