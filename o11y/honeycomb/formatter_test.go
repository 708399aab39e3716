package honeycomb

import (
	"bytes"
	"testing"
	"time"

	"github.com/honeycombio/libhoney-go/transmission"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestTextSender(t *testing.T) {
	buf := &bytes.Buffer{}
	s := &textSender{w: buf}
	assert.Assert(t, s.Start())

	s.Add(&transmission.Event{
		Timestamp: time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC),
		Data: map[string]interface{}{
			"name":           "capture: append",
			"trace.trace_id": "0123456789abcdef",
			"duration_ms":    1.5,
			"app.port":       3001,
			"result":         "success",
			"meta.type":      "capture",
			"service":        "traffic-harness",
		},
	})

	assert.Check(t, cmp.Equal(buf.String(),
		"12:30:45.123 bcdef capture: append 1.500ms app.port=3001 result=success\n"))
	assert.Check(t, cmp.Len(s.TxResponses(), 1))
}

func TestTextSender_ResponsesDoNotBlock(t *testing.T) {
	s := &textSender{w: &bytes.Buffer{}}
	assert.Assert(t, s.Start())
	for i := 0; i < cap(s.responses); i++ {
		assert.Check(t, !s.SendResponse(transmission.Response{}))
	}
	assert.Check(t, s.SendResponse(transmission.Response{}), "full channel reports blocked")
}

func TestShortTraceID(t *testing.T) {
	assert.Check(t, cmp.Equal(shortTraceID("abcdef0123"), "f0123"))
	assert.Check(t, cmp.Equal(shortTraceID("abc"), "-----"))
	assert.Check(t, cmp.Equal(shortTraceID(nil), "-----"))
}
