// Package testcontext hands tests a context carrying a working o11y provider, so spans
// and log events produced under test are printed.
package testcontext

import (
	"context"
	"os"

	"github.com/circleci/trafficharness/config/o11y"
)

// ctx is a global singleton, initialised at package time so parallel tests share one
// beeline rather than racing to set it up.
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	format := "text"
	if os.Getenv("HARNESS_TEST_LOG_FORMAT") != "" {
		format = os.Getenv("HARNESS_TEST_LOG_FORMAT")
	}
	cx, _, err := o11y.Setup(context.Background(), o11y.Config{
		Format:  format,
		Service: "test-service",
		Version: "dev",
	})
	if err != nil {
		panic(err)
	}
	return cx
}
