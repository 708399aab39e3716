package capture

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/circleci/trafficharness/httpserver"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/recontext"
	"github.com/circleci/trafficharness/system"
)

// ErrClientGone marks a capture discarded because the client disconnected, or a write
// to it failed, before the response completed.
var ErrClientGone = o11y.NewWarning("client gone before the response completed")

// Sink persists completed records. Append must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

type Config struct {
	Sink Sink

	// Optional
	// MaxBodySize bounds the captured request body, defaults to DefaultMaxBodySize
	MaxBodySize int64
	// AppendTimeout bounds a single Sink append, defaults to 5s
	AppendTimeout time.Duration
	// Now and NewID default to the wall clock and random UUIDs
	Now   func() time.Time
	NewID func() string
}

// Recorder starts a Capture per request and hands the finished records to its Sink.
type Recorder struct {
	sink          Sink
	maxBodySize   int64
	appendTimeout time.Duration
	now           func() time.Time
	newID         func() string

	mu     sync.Mutex
	counts map[int]*Counts
}

// Counts are the outcomes of finished captures.
type Counts struct {
	Recorded  int64
	Discarded int64
	Failed    int64
}

func New(cfg Config) *Recorder {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Recorder{
		sink:          cfg.Sink,
		maxBodySize:   cfg.MaxBodySize,
		appendTimeout: cfg.AppendTimeout,
		now:           cfg.Now,
		newID:         cfg.NewID,
		counts:        map[int]*Counts{},
	}
}

// Capture is the in-flight state of one request.
type Capture struct {
	rec *Recorder
	w   *Interceptor

	started    time.Time
	port       int
	method     string
	path       string
	reqHeaders Headers
	reqBody    Body
	readErr    error

	once sync.Once
}

// Start snapshots the request, including its body, and wraps w. The handler must be
// given the returned Capture's Writer in place of w.
func (r *Recorder) Start(w http.ResponseWriter, req *http.Request) *Capture {
	c := &Capture{
		rec:     r,
		w:       NewInterceptor(w),
		started: r.now(),
		port:    httpserver.LocalPort(req),
		method:  req.Method,
		path:    req.URL.RequestURI(),
	}

	h := req.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if req.Host != "" {
		h.Set("Host", req.Host)
	}
	c.reqHeaders = HeadersFrom(h)

	raw, truncated, err := readBody(req, r.maxBodySize)
	c.readErr = err
	c.reqBody = ParseBody(req.Header.Get("Content-Type"), req.Header.Get("Content-Encoding"),
		raw, truncated, r.maxBodySize)
	return c
}

func (c *Capture) Writer() *Interceptor {
	return c.w
}

// Finish completes the capture with the final status the client was sent. ctx should be
// the request context, it decides whether the client was still there. Only the first
// call does anything.
func (c *Capture) Finish(ctx context.Context, status int) {
	c.once.Do(func() {
		c.rec.finish(ctx, c, status)
	})
}

func (c *Capture) clientGone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	if err := c.w.Err(); err != nil {
		return fmt.Errorf("%w: write failed: %v", ErrClientGone, err)
	}
	if c.readErr != nil {
		return fmt.Errorf("%w: reading request body: %v", ErrClientGone, c.readErr)
	}
	return nil
}

func (r *Recorder) finish(ctx context.Context, c *Capture, status int) {
	var err error
	ctx, span := o11y.StartSpan(ctx, "capture: finish")
	defer o11y.End(span, &err)
	span.AddRawField("capture.port", c.port)
	span.AddRawField("capture.method", c.method)
	span.AddRawField("capture.path", c.path)
	span.AddRawField("capture.status_code", status)
	span.AddRawField("capture.chunks", c.w.Chunks())
	span.RecordMetric(o11y.Timing("capture.finish", "capture.outcome", "capture.port"))

	if err = c.clientGone(ctx); err != nil {
		span.AddRawField("capture.outcome", "discarded")
		r.count(c.port, func(cs *Counts) { cs.Discarded++ })
		return
	}

	end := r.now()
	rec := Record{
		ID:              r.newID(),
		Timestamp:       end.UTC(),
		Port:            c.port,
		Method:          c.method,
		Path:            c.path,
		RequestHeaders:  c.reqHeaders,
		RequestBody:     c.reqBody,
		StatusCode:      status,
		ResponseHeaders: HeadersFrom(c.w.Header()),
		ResponseBody:    string(c.w.Body()),
		Duration:        end.Sub(c.started),
	}
	span.AddRawField("capture.id", rec.ID)

	// the append outlives the request, it is bounded by its own timeout instead
	actx, cancel := recontext.WithNewTimeout(ctx, r.appendTimeout)
	defer cancel()
	if err = r.append(actx, rec); err != nil {
		span.AddRawField("capture.outcome", "failed")
		r.count(c.port, func(cs *Counts) { cs.Failed++ })
		o11y.LogError(ctx, "capture: append failed", err,
			o11y.Field("port", c.port),
			o11y.Field("method", c.method),
			o11y.Field("path", c.path),
		)
		return
	}
	span.AddRawField("capture.outcome", "recorded")
	r.count(c.port, func(cs *Counts) { cs.Recorded++ })
}

// append converts a panicking sink into an error, nothing in the capture path may take
// the listener down.
func (r *Recorder) append(ctx context.Context, rec Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink panicked: %v", p)
		}
	}()
	if r.sink == nil {
		return fmt.Errorf("no sink configured")
	}
	return r.sink.Append(ctx, rec)
}

func (r *Recorder) count(port int, f func(*Counts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.counts[port]
	if !ok {
		cs = &Counts{}
		r.counts[port] = cs
	}
	f(cs)
}

// Counts returns the outcome counts for one listener port.
func (r *Recorder) Counts(port int) Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.counts[port]; ok {
		return *cs
	}
	return Counts{}
}

// Totals returns the outcome counts across every port.
func (r *Recorder) Totals() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	var t Counts
	for _, cs := range r.counts {
		t.Recorded += cs.Recorded
		t.Discarded += cs.Discarded
		t.Failed += cs.Failed
	}
	return t
}

// GaugeName satisfies system.GaugeProducer
func (r *Recorder) GaugeName() string {
	return "capture"
}

// Gauges satisfies system.GaugeProducer, reporting the outcome counts per port.
func (r *Recorder) Gauges(context.Context) map[string][]system.TaggedValue {
	r.mu.Lock()
	defer r.mu.Unlock()

	ports := make([]int, 0, len(r.counts))
	for p := range r.counts {
		ports = append(ports, p)
	}
	sort.Ints(ports)

	g := map[string][]system.TaggedValue{}
	for _, p := range ports {
		cs := r.counts[p]
		tags := []string{"port:" + strconv.Itoa(p)}
		g["recorded"] = append(g["recorded"], system.TaggedValue{Val: float64(cs.Recorded), Tags: tags})
		g["discarded"] = append(g["discarded"], system.TaggedValue{Val: float64(cs.Discarded), Tags: tags})
		g["failed"] = append(g["failed"], system.TaggedValue{Val: float64(cs.Failed), Tags: tags})
	}
	return g
}
