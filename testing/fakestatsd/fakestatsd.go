// Package fakestatsd runs a UDP dogstatsd listener that records what it receives, so
// tests can assert on the metrics a component really sent over the wire.
package fakestatsd

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

// Metric is one parsed dogstatsd line, such as
//
//	harness.capture.recorded:1|c|@0.5|#port:3001
type Metric struct {
	Name  string
	Value string
	// Type is the dogstatsd type: c, g, ms, h, d or s.
	Type string
	Rate string
	Tags []string
}

type FakeStatsd struct {
	conn *net.UDPConn

	mu      sync.RWMutex
	metrics []Metric
}

// New starts a listener on a random local port. It is closed when t finishes.
func New(t testing.TB) *FakeStatsd {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	assert.Assert(t, err)

	s := &FakeStatsd{conn: conn}
	go s.listen()
	t.Cleanup(func() { _ = conn.Close() })
	return s
}

// Addr is the host:port to point a statsd client at.
func (s *FakeStatsd) Addr() string {
	return s.conn.LocalAddr().String()
}

// Metrics returns everything received so far, in arrival order.
func (s *FakeStatsd) Metrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Metric(nil), s.metrics...)
}

// Named returns the metrics received with the fully namespaced name.
func (s *FakeStatsd) Named(name string) []Metric {
	var found []Metric
	for _, m := range s.Metrics() {
		if m.Name == name {
			found = append(found, m)
		}
	}
	return found
}

func (s *FakeStatsd) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = nil
}

func (s *FakeStatsd) listen() {
	buf := make([]byte, 65535)
	for {
		n, err := s.conn.Read(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			continue
		}

		var batch []Metric
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if m, ok := Parse(line); ok {
				batch = append(batch, m)
			}
		}
		s.mu.Lock()
		s.metrics = append(s.metrics, batch...)
		s.mu.Unlock()
	}
}

// Parse reads a single dogstatsd metric line. Events, service checks and malformed
// lines are rejected.
func Parse(line string) (Metric, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "_") {
		return Metric{}, false
	}
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return Metric{}, false
	}
	parts := strings.Split(rest, "|")
	if len(parts) < 2 {
		return Metric{}, false
	}

	m := Metric{Name: name, Value: parts[0], Type: parts[1]}
	for _, p := range parts[2:] {
		switch {
		case strings.HasPrefix(p, "@"):
			m.Rate = p[1:]
		case strings.HasPrefix(p, "#"):
			m.Tags = strings.Split(p[1:], ",")
		}
	}
	return m, true
}
