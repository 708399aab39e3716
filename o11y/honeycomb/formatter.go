package honeycomb

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/honeycombio/libhoney-go/transmission"

	"github.com/circleci/trafficharness/colourise"
)

// textSender renders each event as a single line for a terminal:
//
//	12:30:45.123 bcdef capture: append 1.500ms app.port=3001 result=success
type textSender struct {
	mu     sync.Mutex
	w      io.Writer
	colour bool

	responses chan transmission.Response
}

func (t *textSender) Start() error {
	t.responses = make(chan transmission.Response, 100)
	return nil
}

func (t *textSender) Stop() error  { return nil }
func (t *textSender) Flush() error { return nil }

func (t *textSender) Add(ev *transmission.Event) {
	line := t.line(ev)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.w.Write(line)
	t.SendResponse(transmission.Response{Metadata: ev.Metadata})
}

func (t *textSender) TxResponses() chan transmission.Response {
	return t.responses
}

func (t *textSender) SendResponse(r transmission.Response) bool {
	select {
	case t.responses <- r:
		return false
	default:
		return true
	}
}

func (t *textSender) line(ev *transmission.Event) []byte {
	var buf bytes.Buffer
	name, _ := ev.Data["name"].(string)
	fmt.Fprintf(&buf, "%s %s %s %.3fms",
		ev.Timestamp.Format("15:04:05.000"),
		t.paint(shortTraceID(ev.Data["trace.trace_id"])),
		t.paint(name),
		ev.Data["duration_ms"],
	)

	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		if !hidden(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		label := k
		if t.colour && k == "error" {
			label = colourise.ErrorHighlight(k)
		}
		fmt.Fprintf(&buf, " %s=%v", label, ev.Data[k])
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func (t *textSender) paint(s string) string {
	if t.colour {
		return colourise.ApplyColour(s)
	}
	return s
}

// hidden fields are either in the line prefix or repeat on every line.
func hidden(k string) bool {
	switch k {
	case "name", "duration_ms", "service", "version":
		return true
	}
	return strings.HasPrefix(k, "trace.") || strings.HasPrefix(k, "meta.")
}

func shortTraceID(v interface{}) string {
	id, _ := v.(string)
	if len(id) < 5 {
		return "-----"
	}
	return id[len(id)-5:]
}
