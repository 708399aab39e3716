package capture

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

var ts = time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC)

func TestRecord_GetWithoutBody(t *testing.T) {
	rec := Record{
		ID:             "a5b2",
		Timestamp:      ts,
		Port:           3000,
		Method:         "GET",
		Path:           "/abc",
		RequestHeaders: Headers{{Name: "Host", Value: "localhost:3000"}},
		RequestBody:    Body{Kind: BodyNone},
		StatusCode:     404,
		ResponseHeaders: Headers{
			{Name: "Content-Type", Value: "application/json; charset=utf-8"},
		},
		ResponseBody: `{"error":"Not Found"}`,
		Duration:     1500 * time.Microsecond,
	}
	b, err := json.Marshal(rec)
	assert.Assert(t, err)
	assert.Check(t, !strings.Contains(string(b), "\n"))
	assert.Check(t, cmp.Equal(string(b), `{"id":"a5b2","timestamp":"2024-03-01T12:30:45.123Z","port":3000,`+
		`"method":"GET","path":"/abc","requestHeaders":{"Host":"localhost:3000"},"requestBodyKind":"none",`+
		`"requestBody":null,"statusCode":404,"responseHeaders":{"Content-Type":"application/json; charset=utf-8"},`+
		`"responseBody":"{\"error\":\"Not Found\"}","durationMs":1.5}`))

	var got Record
	assert.Assert(t, json.Unmarshal(b, &got))
	assert.Check(t, cmp.DeepEqual(got, rec))
}

func TestRecord_RoundTripsBodies(t *testing.T) {
	tests := []struct {
		name     string
		body     Body
		wireBody string
	}{
		{
			name:     "json depth two",
			body:     Body{Kind: BodyJSON, Raw: []byte(`{"k1":{"k2":"abcdefghij"},"k3":"abcdefghijklmno"}`)},
			wireBody: `{"k1":{"k2":"abcdefghij"},"k3":"abcdefghijklmno"}`,
		},
		{
			name:     "form",
			body:     Body{Kind: BodyForm, Raw: []byte("a=1&b=2&b=3")},
			wireBody: `{"a":"1","b":["2","3"]}`,
		},
		{
			name:     "text",
			body:     Body{Kind: BodyText, Raw: []byte("line one\nline two")},
			wireBody: `"line one\nline two"`,
		},
		{
			name:     "binary",
			body:     Body{Kind: BodyBinary, Raw: []byte{0x00, 0xff, 0x10}},
			wireBody: `"AP8Q"`,
		},
		{
			name:     "truncated",
			body:     Body{Kind: BodyBinary, Raw: []byte("ab"), Truncated: true},
			wireBody: `"YWI="`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{
				Timestamp:       ts,
				Method:          "POST",
				Path:            "/x?y=1",
				RequestHeaders:  Headers{},
				RequestBody:     tt.body,
				StatusCode:      201,
				ResponseHeaders: Headers{},
			}
			b, err := json.Marshal(rec)
			assert.Assert(t, err)
			assert.Check(t, !strings.Contains(string(b), "\n"))

			var wire map[string]json.RawMessage
			assert.Assert(t, json.Unmarshal(b, &wire))
			assert.Check(t, cmp.Equal(string(wire["requestBody"]), tt.wireBody))
			assert.Check(t, cmp.Equal(string(wire["requestBodyKind"]), `"`+string(tt.body.Kind)+`"`))

			var got Record
			assert.Assert(t, json.Unmarshal(b, &got))
			assert.Check(t, cmp.DeepEqual(got, rec))
		})
	}
}

func TestRecord_JSONBodyIsCompacted(t *testing.T) {
	rec := Record{
		Timestamp:   ts,
		RequestBody: Body{Kind: BodyJSON, Raw: []byte("{\n  \"a\": 1\n}")},
	}
	b, err := json.Marshal(rec)
	assert.Assert(t, err)
	assert.Check(t, cmp.Contains(string(b), `"requestBody":{"a":1}`))
}

func TestRecord_UnmarshalErrors(t *testing.T) {
	var rec Record
	assert.Check(t, cmp.ErrorContains(json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &rec), "timestamp"))
	assert.Check(t, cmp.ErrorContains(json.Unmarshal(
		[]byte(`{"timestamp":"2024-03-01T12:30:45Z","requestBodyKind":"xml","requestBody":"<a/>"}`), &rec),
		"unknown body kind"))
}
