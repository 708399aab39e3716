// Package dispatch is the catch-all endpoint behind every listener: each request gets an
// outcome picked at random from a fixed table, regardless of its method or path.
package dispatch

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/payload"
)

// Outcome is a status with its canonical body.
type Outcome struct {
	Status int
	Body   []byte
}

func message(key, msg string) []byte {
	b, _ := json.Marshal(map[string]string{key: msg})
	return b
}

// DefaultOutcomes is the fixed outcome table, each entry equally likely.
func DefaultOutcomes() []Outcome {
	return []Outcome{
		{Status: http.StatusOK, Body: message("message", "Success!")},
		{Status: http.StatusCreated, Body: message("message", "Created")},
		{Status: http.StatusAccepted, Body: message("message", "Accepted")},
		{Status: http.StatusBadRequest, Body: message("error", "Bad Request")},
		{Status: http.StatusUnauthorized, Body: message("error", "Unauthorized")},
		{Status: http.StatusForbidden, Body: message("error", "Forbidden")},
		{Status: http.StatusNotFound, Body: message("error", "Not Found")},
		{Status: http.StatusInternalServerError, Body: message("error", "Internal Server Error")},
		{Status: http.StatusServiceUnavailable, Body: message("error", "Service Unavailable")},
	}
}

type Config struct {
	// Optional
	// Outcomes default to DefaultOutcomes
	Outcomes []Outcome
	// Payloads defaults to a clock seeded generator
	Payloads *payload.Generator
	// Kinds are the payload kinds served, defaults to JSON only
	Kinds []payload.Kind
	// Canonical serves the outcome's own body instead of a synthesized payload
	Canonical bool
	// MaxChunks bounds how many writes a body is split into, defaults to 4
	MaxChunks int
}

type Endpoint struct {
	outcomes  []Outcome
	payloads  *payload.Generator
	kinds     []payload.Kind
	canonical bool
	maxChunks int
}

func New(cfg Config) *Endpoint {
	if len(cfg.Outcomes) == 0 {
		cfg.Outcomes = DefaultOutcomes()
	}
	if cfg.Payloads == nil {
		cfg.Payloads = payload.NewRandom()
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []payload.Kind{payload.JSON}
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 4
	}
	return &Endpoint{
		outcomes:  cfg.Outcomes,
		payloads:  cfg.Payloads,
		kinds:     cfg.Kinds,
		canonical: cfg.Canonical,
		maxChunks: cfg.MaxChunks,
	}
}

// Register routes every method and path to the endpoint.
func (e *Endpoint) Register(r *gin.Engine) {
	r.NoRoute(e.Handle)
	r.NoMethod(e.Handle)
}

// Handle writes a random outcome. Status and headers are set before the first body
// chunk, and the body is streamed in up to MaxChunks flushed writes.
func (e *Endpoint) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	outcome := e.outcomes[e.payloads.Pick(len(e.outcomes))]

	kind := payload.JSON
	body := outcome.Body
	if !e.canonical {
		kind = e.kinds[e.payloads.Pick(len(e.kinds))]
		body = e.payloads.Body(kind)
	}

	o11y.AddField(ctx, "dispatch_status", outcome.Status)
	o11y.AddField(ctx, "dispatch_kind", kind.String())
	o11y.AddField(ctx, "dispatch_size", len(body))

	if !bodyAllowed(outcome.Status) {
		c.Status(outcome.Status)
		c.Writer.WriteHeaderNow()
		return
	}

	c.Header("Content-Type", kind.ContentType())
	c.Status(outcome.Status)
	c.Writer.WriteHeaderNow()

	chunks := split(body, 1+e.payloads.Intn(e.maxChunks))
	o11y.AddField(ctx, "dispatch_chunks", len(chunks))
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// bodyAllowed reports whether HTTP permits a body with status.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// split cuts b into at most n non-empty pieces of near equal size.
func split(b []byte, n int) [][]byte {
	if len(b) == 0 {
		return nil
	}
	if n > len(b) {
		n = len(b)
	}
	size := (len(b) + n - 1) / n
	chunks := make([][]byte, 0, n)
	for len(b) > 0 {
		end := size
		if end > len(b) {
			end = len(b)
		}
		chunks = append(chunks, b[:end])
		b = b[end:]
	}
	return chunks
}
