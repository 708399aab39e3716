package httpserver

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/circleci/trafficharness/system"
)

// trackedListener counts the connections accepted and currently open, per remote host.
type trackedListener struct {
	net.Listener

	name string

	mu       sync.Mutex
	accepted int
	active   int
	remotes  map[string]int
}

func (l *trackedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return conn, err
	}
	tc := &trackedConn{Conn: conn, l: l, host: remoteHost(conn)}
	l.track(tc.host, 1)
	return tc, nil
}

func remoteHost(c net.Conn) string {
	host, _, err := net.SplitHostPort(c.RemoteAddr().String())
	if err != nil {
		return c.RemoteAddr().String()
	}
	return host
}

func (l *trackedListener) track(host string, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remotes == nil {
		l.remotes = make(map[string]int)
	}
	if delta > 0 {
		l.accepted++
	}
	l.active += delta
	l.remotes[host] += delta
	if l.remotes[host] <= 0 {
		delete(l.remotes, host)
	}
}

// GaugeName satisfies system.GaugeProducer
func (l *trackedListener) GaugeName() string {
	return l.name + "-listener"
}

// Gauges satisfies system.GaugeProducer, each value is tagged with the listening port.
func (l *trackedListener) Gauges(context.Context) map[string][]system.TaggedValue {
	l.mu.Lock()
	defer l.mu.Unlock()

	var tags []string
	if a, ok := l.Addr().(*net.TCPAddr); ok {
		tags = []string{"port:" + strconv.Itoa(a.Port)}
	}
	tv := func(v int) []system.TaggedValue {
		return []system.TaggedValue{{Val: float64(v), Tags: tags}}
	}
	return map[string][]system.TaggedValue{
		"number_of_remotes":  tv(len(l.remotes)),
		"total_connections":  tv(l.accepted),
		"active_connections": tv(l.active),
	}
}

type trackedConn struct {
	net.Conn

	l    *trackedListener
	host string
	once sync.Once
}

// Close untracks the connection once, however many times it is called.
func (c *trackedConn) Close() error {
	c.once.Do(func() {
		c.l.track(c.host, -1)
	})
	return c.Conn.Close()
}
