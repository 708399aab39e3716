/*
Package traffic fires batches of randomized requests at the listener fleet.

Every request picks a port, method, path, headers and (for methods that carry one) a body
at random. Any HTTP status counts as a response; only transport failures are errors.
*/
package traffic

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/circleci/trafficharness/httpclient"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/payload"
)

var (
	DefaultPorts   = []int{3000, 3001, 3002, 3003, 3004}
	DefaultMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
)

const DefaultCount = 500

type Config struct {
	// Optional
	// Host defaults to localhost
	Host  string
	Ports []int
	// Count is the number of requests in a batch, defaults to DefaultCount
	Count   int
	Methods []string
	// Kinds are the body kinds to send, defaults to JSON only
	Kinds []payload.Kind
	// Concurrency is the number of requests in flight at once, defaults to 1
	Concurrency int
	// Timeout bounds each request, defaults to 5s
	Timeout  time.Duration
	Payloads *payload.Generator
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if len(c.Ports) == 0 {
		c.Ports = DefaultPorts
	}
	if c.Count <= 0 {
		c.Count = DefaultCount
	}
	if len(c.Methods) == 0 {
		c.Methods = DefaultMethods
	}
	if len(c.Kinds) == 0 {
		c.Kinds = []payload.Kind{payload.JSON}
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Payloads == nil {
		c.Payloads = payload.NewRandom()
	}
	return c
}

// Reporter receives a line for each request sent and for each outcome.
type Reporter interface {
	Report(line string)
}

type ReporterFunc func(line string)

func (f ReporterFunc) Report(line string) {
	f(line)
}

// Summary totals a batch.
type Summary struct {
	Sent      int
	Responded int
	Failed    int
	Statuses  map[int]int
}

type Generator struct {
	cfg     Config
	clients map[int]*httpclient.Client
}

func New(cfg Config) *Generator {
	cfg = cfg.withDefaults()
	clients := make(map[int]*httpclient.Client, len(cfg.Ports))
	for _, port := range cfg.Ports {
		clients[port] = httpclient.New(httpclient.Config{
			Name:                  "traffic-" + strconv.Itoa(port),
			BaseURL:               baseURL(cfg.Host, port),
			Timeout:               cfg.Timeout,
			MaxConnectionsPerHost: cfg.Concurrency,
		})
	}
	return &Generator{cfg: cfg, clients: clients}
}

func baseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Count is the configured batch size.
func (g *Generator) Count() int {
	return g.cfg.Count
}

// Run sends one batch. It only returns an error when ctx is cancelled, request failures
// are reported and counted instead.
func (g *Generator) Run(ctx context.Context, count int, reporter Reporter) (summary Summary, err error) {
	if count <= 0 {
		count = g.cfg.Count
	}
	ctx, span := o11y.StartSpan(ctx, "traffic: run")
	defer o11y.End(span, &err)
	span.AddRawField("traffic.count", count)
	span.AddRawField("traffic.concurrency", g.cfg.Concurrency)

	var mu sync.Mutex
	summary.Statuses = map[int]int{}

	eg := errgroup.Group{}
	eg.SetLimit(g.cfg.Concurrency)
	for i := 1; i <= count; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		eg.Go(func() error {
			status, err := g.send(ctx, i, count, reporter)
			mu.Lock()
			defer mu.Unlock()
			summary.Sent++
			if err != nil {
				summary.Failed++
				return nil
			}
			summary.Responded++
			summary.Statuses[status]++
			return nil
		})
	}
	_ = eg.Wait()

	span.AddRawField("traffic.sent", summary.Sent)
	span.AddRawField("traffic.failed", summary.Failed)
	return summary, ctx.Err()
}

func (g *Generator) send(ctx context.Context, i, n int, reporter Reporter) (int, error) {
	p := g.cfg.Payloads
	port := g.cfg.Ports[p.Pick(len(g.cfg.Ports))]
	method := g.cfg.Methods[p.Pick(len(g.cfg.Methods))]
	kind := g.cfg.Kinds[p.Pick(len(g.cfg.Kinds))]
	path := "/" + p.Path()
	url := baseURL(g.cfg.Host, port) + path

	req := httpclient.NewRequest(method, path, g.cfg.Timeout)
	req.NoPropagation = true
	req.Headers = http.Header{}
	for k, v := range p.Headers(kind) {
		req.Headers.Set(k, v)
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.RawBody = p.Body(kind)
		req.ContentType = kind.ContentType()
	}

	reporter.Report(fmt.Sprintf("(%d/%d) Sending %s to %s", i, n, method, url))
	res, err := g.clients[port].Do(ctx, req)
	if err != nil {
		reporter.Report(fmt.Sprintf("(%d/%d) Error sending request to %s: %s", i, n, url, err))
		return 0, err
	}
	reporter.Report(fmt.Sprintf("(%d/%d) Response from %s: %d", i, n, url, res.StatusCode))
	return res.StatusCode, nil
}
