/*
Package httpnetcapture wires a capture.Recorder into net/http handlers.
*/
package httpnetcapture

import (
	"context"
	"net/http"

	"github.com/circleci/trafficharness/capture"
	"github.com/circleci/trafficharness/o11y"
)

// Middleware captures every exchange served by h. The o11y provider in ctx is used for
// the capture spans, since plain net/http servers do not put one on the request.
//
// A handler that panics leaves no record: its response never completed.
func Middleware(ctx context.Context, rec *capture.Recorder, h http.Handler) http.Handler {
	provider := o11y.FromContext(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := rec.Start(w, r)
		h.ServeHTTP(c.Writer(), r)
		c.Finish(o11y.WithProvider(r.Context(), provider), c.Writer().Status())
	})
}
