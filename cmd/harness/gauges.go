package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/circleci/trafficharness/httpclient"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/system"
)

type gaugesCmd struct {
	Admin   string        `env:"HARNESS_ADMIN_URL" default:"http://localhost:8001" help:"Base URL of a running harness admin api"`
	Timeout time.Duration `env:"HARNESS_ADMIN_TIMEOUT" default:"10s" help:"Give up on the admin api after this long, retries included"`

	out io.Writer `kong:"-"`
}

func (g *gaugesCmd) Run(f *O11yFlags) (err error) {
	if g.out == nil {
		g.out = os.Stdout
	}
	ctx, o11yCleanup, err := loadO11y("gauges", f)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, span := o11y.StartSpan(ctx, "main: gauges")
	defer o11y.End(span, &err)

	readings, err := fetchGauges(ctx, g.Admin, g.Timeout)
	if err != nil {
		return err
	}
	printGauges(g.out, readings)
	return nil
}

func fetchGauges(ctx context.Context, admin string, timeout time.Duration) ([]system.Reading, error) {
	client := httpclient.New(httpclient.Config{
		Name:       "admin",
		BaseURL:    strings.TrimSuffix(admin, "/"),
		AcceptType: httpclient.JSON,
		Timeout:    timeout,
	})
	defer client.CloseIdleConnections()

	var readings []system.Reading
	req := httpclient.NewRequest("GET", "/gauges", timeout)
	req.Decoder = httpclient.NewJSONDecoder(&readings)
	err := client.Call(ctx, req)
	switch {
	case httpclient.IsRequestProblem(err):
		return nil, fmt.Errorf("%s does not look like a harness admin api: %w", admin, err)
	case err != nil:
		return nil, fmt.Errorf("read gauges: %w", err)
	}
	return readings, nil
}

func printGauges(w io.Writer, readings []system.Reading) {
	if len(readings) == 0 {
		_, _ = fmt.Fprintln(w, "no gauges")
		return
	}
	for _, r := range readings {
		name := r.Name
		if len(r.Tags) > 0 {
			name += "{" + strings.Join(r.Tags, ",") + "}"
		}
		_, _ = fmt.Fprintf(w, "%s %g\n", name, r.Value)
	}
}
