package o11y

import (
	"context"
	"net/http"
)

// PropagationContext carries trace identity between processes as HTTP headers.
type PropagationContext struct {
	// Parent is the serialised trace parent, when known.
	Parent string
	// Headers holds the propagation headers, possibly with unrelated headers alongside.
	Headers http.Header
}

// PropagationContextFromHeader wraps the headers of an inbound request.
func PropagationContextFromHeader(h http.Header) PropagationContext {
	return PropagationContext{Headers: h}
}

// Helpers move trace identity in and out of a context.
type Helpers interface {
	// ExtractPropagation returns the headers to send downstream for the span in ctx.
	ExtractPropagation(ctx context.Context) PropagationContext
	// InjectPropagation starts a root span continuing the trace described by p.
	InjectPropagation(ctx context.Context, p PropagationContext) (context.Context, Span)
}
