package ginrouter

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"

	"github.com/circleci/trafficharness/httpserver"
	"github.com/circleci/trafficharness/internal/syncbuffer"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/o11y/honeycomb"
	"github.com/circleci/trafficharness/testing/fakemetrics"
)

func TestDefault(t *testing.T) {
	b := &syncbuffer.SyncBuffer{}
	metrics := &fakemetrics.Provider{}

	p := honeycomb.New(honeycomb.Config{
		Format:  "json",
		Writer:  b,
		Metrics: metrics,
	})
	ctx := o11y.WithProvider(context.Background(), p)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sawSpan bool
	r := Default(ctx, "test", func(c *gin.Context) {
		sawSpan = o11y.FromContext(c.Request.Context()).GetSpan(c.Request.Context()) != nil
		c.Next()
	})
	r.GET("/foo", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("oops")
	})
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
		case <-time.After(time.Second):
		}
		c.Status(http.StatusInternalServerError)
	})

	srv, err := httpserver.New(ctx, httpserver.Config{
		Name:    "test",
		Addr:    "localhost:0",
		Handler: r,
	})
	assert.Assert(t, err)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	t.Cleanup(func() {
		cancel()
		assert.Check(t, g.Wait())
	})

	base := "http://" + srv.Addr()

	t.Run("200", func(t *testing.T) {
		b.Reset()
		assert.Check(t, cmp.Equal(status(t, context.Background(), base+"/foo"), http.StatusOK))
		checkO11yHasStatus(t, b, "200")
		assert.Check(t, sawSpan)
	})

	t.Run("panic is a 500", func(t *testing.T) {
		b.Reset()
		assert.Check(t, cmp.Equal(status(t, context.Background(), base+"/panic"), http.StatusInternalServerError))
		checkO11yHasStatus(t, b, "500")
	})

	t.Run("client cancel is a 499", func(t *testing.T) {
		b.Reset()
		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		req, err := http.NewRequestWithContext(cctx, http.MethodGet, base+"/slow", nil)
		assert.Assert(t, err)
		_, err = http.DefaultClient.Do(req)
		assert.Check(t, cmp.ErrorIs(err, context.DeadlineExceeded))
		checkO11yHasStatus(t, b, "499")
	})

	t.Run("handler metric carries the port", func(t *testing.T) {
		poll.WaitOn(t, func(t poll.LogT) poll.Result {
			for _, c := range metrics.Named("handler") {
				for _, tag := range c.Tags {
					if strings.HasPrefix(tag, "http.server_port:") && tag != "http.server_port:0" {
						return poll.Success()
					}
				}
			}
			return poll.Continue("no handler metric with a port in %v", metrics.Calls())
		})
	})
}

func status(t *testing.T, ctx context.Context, url string) int {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	assert.Assert(t, err)
	res, err := http.DefaultClient.Do(req)
	assert.Assert(t, err)
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	return res.StatusCode
}

func checkO11yHasStatus(t *testing.T, b *syncbuffer.SyncBuffer, needle string) {
	t.Helper()
	poll.WaitOn(t, func(t poll.LogT) poll.Result {
		s := b.String()
		scanner := bufio.NewScanner(strings.NewReader(s))
		for scanner.Scan() {
			text := scanner.Text()
			if !strings.Contains(text, `"http.method":"GET"`) {
				continue
			}
			if strings.Contains(text, `"http.status_code":`+needle) {
				return poll.Success()
			}
		}
		return poll.Continue("%q does not contain status %q", s, needle)
	})
}
