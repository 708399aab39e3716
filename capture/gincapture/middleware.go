/*
Package gincapture wires a capture.Recorder into gin routers.
*/
package gincapture

import (
	"github.com/gin-gonic/gin"

	"github.com/circleci/trafficharness/capture"
)

// Middleware captures the exchange handled by the rest of the chain. It should come after
// the o11y middleware so captures are traced within the request span.
func Middleware(rec *capture.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		orig := c.Writer
		capt := rec.Start(orig, c.Request)
		c.Writer = &writer{ResponseWriter: orig, in: capt.Writer()}

		c.Next()

		c.Writer = orig
		// gin decides the final status lazily, so ask it rather than the interceptor
		capt.Finish(c.Request.Context(), orig.Status())
	}
}

// writer routes body writes through the interceptor, everything else goes straight to
// gin's own writer.
type writer struct {
	gin.ResponseWriter
	in *capture.Interceptor
}

func (w *writer) Write(p []byte) (int, error) {
	return w.in.Write(p)
}

func (w *writer) WriteString(s string) (int, error) {
	return w.in.Write([]byte(s))
}
