package o11y

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rollbar/rollbar-go"
)

// RollbarReporter is implemented by providers that forward panics to rollbar.
type RollbarReporter interface {
	RollBarClient() *rollbar.Client
}

// HandlePanic annotates span with a recovered panic value and its stack, counts it,
// and reports it to rollbar when the provider in ctx supports that. r may be nil
// for panics outside a request.
func HandlePanic(ctx context.Context, span Span, recovered interface{}, r *http.Request) error {
	err := fmt.Errorf("panic handled: %+v", recovered)
	span.AddRawField("panic", recovered)
	span.AddRawField("has_panicked", "true")
	span.AddRawField("stack", string(debug.Stack()))
	span.RecordMetric(Incr("panics", "name"))

	reporter, ok := FromContext(ctx).(RollbarReporter)
	if !ok {
		return err
	}
	client := reporter.RollBarClient()
	if r != nil {
		client.RequestError(rollbar.CRIT, r, err)
	} else {
		client.LogPanic(recovered, true)
	}
	return err
}
