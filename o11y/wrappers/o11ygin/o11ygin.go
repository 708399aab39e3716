// Package o11ygin traces gin requests and records handler timing metrics.
package o11ygin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/circleci/trafficharness/httpserver"
	"github.com/circleci/trafficharness/o11y"
)

const (
	clientGoneKey = "o11ygin_client_gone"

	// StatusClientClosed is reported when the client hung up before the response
	// finished, as nginx does.
	StatusClientClosed = 499

	// CatchAllRoute labels requests served by NoRoute or NoMethod handlers. The fleet
	// answers every path there, so a per path label would explode metric cardinality.
	CatchAllRoute = "*"
)

// Middleware gives every request a span named after its method and route, and emits a
// "handler" timer tagged with the server name, method, route, local port and status.
func Middleware(provider o11y.Provider, serverName string) gin.HandlerFunc {
	metrics := provider.MetricsProvider()
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = CatchAllRoute
		}
		port := httpserver.LocalPort(c.Request)

		ctx := o11y.WithProvider(c.Request.Context(), provider)
		ctx, span := requestSpan(ctx, provider, c.Request, c.Request.Method+" "+route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		req := c.Request
		for k, v := range map[string]interface{}{
			"meta.type":                   "http_server",
			"http.server_name":            serverName,
			"http.server_port":            port,
			"http.route":                  route,
			"http.method":                 req.Method,
			"http.url":                    req.URL.String(),
			"http.target":                 req.URL.Path,
			"http.host":                   req.Host,
			"http.client_ip":              c.ClientIP(),
			"http.user_agent":             req.UserAgent(),
			"http.request_content_length": req.ContentLength,
		} {
			span.AddRawField(k, v)
		}

		defer func() {
			status := c.Writer.Status()
			if c.GetBool(clientGoneKey) {
				status = StatusClientClosed
			}
			span.AddRawField("http.status_code", status)
			span.AddRawField("http.response_content_length", c.Writer.Size())
			if metrics == nil {
				return
			}
			_ = metrics.TimeInMilliseconds("handler",
				float64(time.Since(start))/float64(time.Millisecond),
				[]string{
					"http.server_name:" + serverName,
					"http.method:" + req.Method,
					"http.route:" + route,
					"http.server_port:" + strconv.Itoa(port),
					"http.status_code:" + strconv.Itoa(status),
				}, 1)
		}()

		c.Next()
	}
}

// requestSpan continues the caller's trace when the request carries one, or starts a
// child span when ctx already has a span.
func requestSpan(ctx context.Context, p o11y.Provider, r *http.Request, name string) (context.Context, o11y.Span) {
	if p.GetSpan(ctx) != nil {
		return o11y.StartSpan(ctx, name)
	}
	ctx, span := p.Helpers().InjectPropagation(ctx, o11y.PropagationContextFromHeader(r.Header))
	span.AddRawField("name", name)
	return ctx, span
}

// ClientCancelled marks the request so Middleware reports StatusClientClosed when the
// client went away while the handler ran. Gin errors are added to the span otherwise.
func ClientCancelled() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Next()

		if errors.Is(ctx.Err(), context.Canceled) {
			c.Set(clientGoneKey, true)
			return
		}
		if len(c.Errors) > 0 {
			o11y.AddField(ctx, "gin_errors", c.Errors.String())
		}
	}
}

// Recovery turns a handler panic into a 500 reported through o11y.HandlePanic.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		c.AbortWithStatus(http.StatusInternalServerError)
		ctx := c.Request.Context()
		span := o11y.FromContext(ctx).GetSpan(ctx)
		if span == nil {
			return
		}

		// http.ErrAbortHandler means the connection went away mid response,
		// see https://github.com/golang/go/issues/28239
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			o11y.AddResultToSpan(span, err)
			return
		}
		_ = o11y.HandlePanic(ctx, span, recovered, c.Request)
	})
}
