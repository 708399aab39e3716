// Package payload synthesizes random request and response bodies and headers.
//
// A Generator built from a fixed seed produces the same sequence every time, which is
// what the tests rely on; the harness itself seeds from the clock.
package payload

import (
	"encoding/json"
	"math/rand"
	"mime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Kind int

const (
	JSON Kind = iota
	Text
	Binary
)

// MaxSize bounds text and binary bodies.
const MaxSize = 10 * 1024

func All() []Kind {
	return []Kind{JSON, Text, Binary}
}

func (k Kind) ContentType() string {
	switch k {
	case Text:
		return "text/plain"
	case Binary:
		return "application/octet-stream"
	default:
		return "application/json"
	}
}

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "json"
	}
}

// ParseKind accepts the names returned by String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range All() {
		if strings.EqualFold(s, k.String()) {
			return k, true
		}
	}
	return JSON, false
}

// KindOf maps a Content-Type to the kind of payload it carries, anything unrecognised
// is binary.
func KindOf(contentType string) Kind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Binary
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return JSON
	case strings.HasPrefix(mt, "text/"):
		return Text
	}
	return Binary
}

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(seed int64) *Generator {
	return NewFromSource(rand.NewSource(seed))
}

// NewRandom seeds a Generator from the clock.
func NewRandom() *Generator {
	return New(time.Now().UnixNano())
}

func NewFromSource(src rand.Source) *Generator {
	//#nosec:G404 // synthetic traffic, not security sensitive
	return &Generator{rng: rand.New(src)}
}

// Intn returns a value in [0, n).
func (g *Generator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// Pick returns a random index into a slice of length n.
func (g *Generator) Pick(n int) int {
	return g.Intn(n)
}

// String returns n random alphanumerics.
func (g *Generator) String(n int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.string(n)
}

func (g *Generator) string(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(alphanumerics[g.rng.Intn(len(alphanumerics))])
	}
	return sb.String()
}

// Object returns a random JSON object nested depth levels deep. Each level has 1 to 5
// keys whose values are either a 15 character string or another level; the levels
// below the last are 10 character strings.
func (g *Generator) Object(depth int) interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.object(depth)
}

func (g *Generator) object(depth int) interface{} {
	if depth <= 0 {
		return g.string(10)
	}
	keys := g.rng.Intn(5) + 1
	obj := make(map[string]interface{}, keys)
	for i := 0; i < keys; i++ {
		k := g.string(5)
		if g.rng.Float64() > 0.5 {
			obj[k] = g.string(15)
		} else {
			obj[k] = g.object(depth - 1)
		}
	}
	return obj
}

// Body returns a random body of the given kind: a JSON object of depth 1 to 3, up to
// MaxSize alphanumerics, or up to MaxSize random bytes. Empty text and binary bodies
// are valid.
func (g *Generator) Body(kind Kind) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch kind {
	case Text:
		return []byte(g.string(g.rng.Intn(MaxSize)))
	case Binary:
		b := make([]byte, g.rng.Intn(MaxSize))
		_, _ = g.rng.Read(b)
		return b
	}
	b, err := json.Marshal(g.object(g.rng.Intn(3) + 1))
	if err != nil {
		// maps of strings always marshal
		panic(err)
	}
	return b
}

// Headers returns random request headers for a body of the given kind.
func (g *Generator) Headers(kind Kind) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := map[string]string{
		"Content-Type": kind.ContentType(),
	}
	if g.rng.Float64() > 0.5 {
		h["Authorization"] = "Bearer " + g.string(32)
	}
	if g.rng.Float64() > 0.5 {
		h["Cookie"] = "sessionId=" + g.string(24) + "; userId=" + strconv.Itoa(g.rng.Intn(1000))
	}
	if g.rng.Float64() > 0.3 {
		h["X-Custom-Header"] = g.string(20)
	}
	return h
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Path returns a random six character base36 path segment.
func (g *Generator) Path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := make([]byte, 6)
	for i := range b {
		b[i] = base36[g.rng.Intn(len(base36))]
	}
	return string(b)
}
