/*
Package console serves the operator page: a request count, a send button and a scrolling
log of the traffic generator's report lines.
*/
package console

import (
	"context"
	_ "embed"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/circleci/trafficharness/httpserver"
	"github.com/circleci/trafficharness/httpserver/ginrouter"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/system"
	"github.com/circleci/trafficharness/traffic"
)

//go:embed static/index.html
var indexHTML []byte

// MaxCount bounds a single batch.
const MaxCount = 100000

type Console struct {
	ctx       context.Context
	generator *traffic.Generator
	hub       *Hub

	mu    sync.Mutex
	batch Batch
	done  chan struct{}
}

// Batch is the state of the current, or last, batch.
type Batch struct {
	Running  bool             `json:"running"`
	Count    int              `json:"count"`
	Started  time.Time        `json:"started,omitempty"`
	Finished time.Time        `json:"finished,omitempty"`
	Summary  *traffic.Summary `json:"summary,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// New returns a console whose batches run under ctx, so they stop with it.
func New(ctx context.Context, g *traffic.Generator) *Console {
	return &Console{
		ctx:       ctx,
		generator: g,
		hub:       NewHub(),
	}
}

func (c *Console) Hub() *Hub {
	return c.hub
}

func (c *Console) Handler() http.Handler {
	r := ginrouter.Default(c.ctx, "console")
	r.GET("/", c.index)
	r.GET("/api/batch", c.status)
	r.POST("/api/batch", c.start)
	r.GET("/api/logs", func(gc *gin.Context) {
		c.hub.ServeWS(gc.Writer, gc.Request)
	})
	return r
}

func (c *Console) index(gc *gin.Context) {
	gc.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (c *Console) status(gc *gin.Context) {
	gc.JSON(http.StatusOK, c.Status())
}

type startRequest struct {
	Count int `json:"count"`
}

func (c *Console) start(gc *gin.Context) {
	var req startRequest
	if err := gc.ShouldBindJSON(&req); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"count\": N}"})
		return
	}
	if req.Count < 1 || req.Count > MaxCount {
		gc.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 100000"})
		return
	}
	b, ok := c.Start(req.Count)
	if !ok {
		gc.JSON(http.StatusConflict, b)
		return
	}
	gc.JSON(http.StatusAccepted, b)
}

// Start begins a batch of count requests unless one is already running, in which case
// it returns false with the running batch.
func (c *Console) Start(count int) (Batch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batch.Running {
		return c.batch, false
	}
	c.batch = Batch{Running: true, Count: count, Started: time.Now().UTC()}
	c.done = make(chan struct{})
	c.hub.Clear()

	go c.run(count, c.done)
	return c.batch, true
}

func (c *Console) run(count int, done chan struct{}) {
	defer close(done)
	ctx, span := o11y.StartSpan(c.ctx, "console: batch")
	var err error
	defer o11y.End(span, &err)
	span.AddRawField("console.count", count)

	summary, err := c.generator.Run(ctx, count, c.hub)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.batch.Running = false
	c.batch.Finished = time.Now().UTC()
	c.batch.Summary = &summary
	if err != nil {
		c.batch.Error = err.Error()
	}
}

func (c *Console) Status() Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch
}

// Wait blocks until the running batch, if any, has finished or ctx is done.
func (c *Console) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load serves the console on addr as part of sys. On cleanup the websocket clients are
// disconnected and any running batch is waited for.
func Load(ctx context.Context, addr string, g *traffic.Generator, sys *system.System) (*Console, error) {
	c := New(ctx, g)
	_, err := httpserver.Load(ctx, httpserver.Config{
		Name:    "console",
		Addr:    addr,
		Handler: c.Handler(),
	}, sys)
	if err != nil {
		return nil, err
	}
	sys.AddCleanup(func(ctx context.Context) error {
		c.hub.Close()
		return c.Wait(ctx)
	})
	return c, nil
}
