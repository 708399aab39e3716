package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v4"

	"github.com/circleci/trafficharness/httpserver/ginrouter"
	"github.com/circleci/trafficharness/system"
)

const checkTimeout = 5 * time.Second

type API struct {
	router *gin.Engine
	gauges []system.GaugeProducer
}

func New(ctx context.Context, checked []system.HealthChecker, gauges []system.GaugeProducer) (*API, error) {
	live, err := health.New()
	if err != nil {
		return nil, fmt.Errorf("liveness: %w", err)
	}
	ready, err := health.New()
	if err != nil {
		return nil, fmt.Errorf("readiness: %w", err)
	}
	for _, c := range checked {
		name, readyCheck, liveCheck := c.HealthChecks()
		if err := register(ready, name, readyCheck); err != nil {
			return nil, fmt.Errorf("readiness: %w", err)
		}
		if err := register(live, name, liveCheck); err != nil {
			return nil, fmt.Errorf("liveness: %w", err)
		}
	}

	a := &API{
		router: ginrouter.Default(ctx, "admin"),
		gauges: gauges,
	}
	a.router.GET("/live", gin.WrapH(live.Handler()))
	a.router.GET("/ready", gin.WrapH(ready.Handler()))
	a.router.GET("/gauges", a.readGauges)
	a.router.GET("/debug/pprof/*profile", profile)
	return a, nil
}

func (a *API) Handler() http.Handler {
	return a.router
}

func register(h *health.Health, name string, check func(context.Context) error) error {
	if check == nil {
		return nil
	}
	return h.Register(health.Config{
		Name:    name,
		Timeout: checkTimeout,
		Check:   check,
	})
}

func (a *API) readGauges(c *gin.Context) {
	readings := system.ReadGauges(c.Request.Context(), a.gauges)
	if readings == nil {
		readings = []system.Reading{}
	}
	c.JSON(http.StatusOK, readings)
}

func profile(c *gin.Context) {
	handlers := map[string]http.HandlerFunc{
		"/cmdline": pprof.Cmdline,
		"/profile": pprof.Profile,
		"/symbol":  pprof.Symbol,
		"/trace":   pprof.Trace,
	}
	h, ok := handlers[c.Param("profile")]
	if !ok {
		// the index lists and serves the named runtime profiles
		h = pprof.Index
	}
	h(c.Writer, c.Request)
}
