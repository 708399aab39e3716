// Package ginrouter builds the gin engines behind every harness listener.
package ginrouter

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/o11y/wrappers/o11ygin"
)

var releaseMode sync.Once

// Default returns an engine that traces requests under serverName, turns panics into
// 500s and notices clients that hang up. middleware runs inside those, so it sees the
// request span and a panic it raises is recovered.
//
// Paths are matched raw, so an escaped segment in a synthetic path reaches the handler
// unchanged, and unknown methods on known paths fall through to NoRoute.
func Default(ctx context.Context, serverName string, middleware ...gin.HandlerFunc) *gin.Engine {
	releaseMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	r := gin.New()
	r.UseRawPath = true
	r.HandleMethodNotAllowed = false

	r.Use(
		o11ygin.Middleware(o11y.FromContext(ctx), serverName),
		o11ygin.Recovery(),
		o11ygin.ClientCancelled(),
	)
	r.Use(middleware...)
	return r
}
