package capture

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is one completed exchange: the request as received and the response exactly
// as it was sent to the client.
type Record struct {
	ID              string
	Timestamp       time.Time
	Port            int
	Method          string
	Path            string
	RequestHeaders  Headers
	RequestBody     Body
	StatusCode      int
	ResponseHeaders Headers
	ResponseBody    string
	Duration        time.Duration
}

type wireRecord struct {
	ID                   string          `json:"id"`
	Timestamp            string          `json:"timestamp"`
	Port                 int             `json:"port"`
	Method               string          `json:"method"`
	Path                 string          `json:"path"`
	RequestHeaders       Headers         `json:"requestHeaders"`
	RequestBodyKind      BodyKind        `json:"requestBodyKind"`
	RequestBody          json.RawMessage `json:"requestBody"`
	RequestBodyTruncated bool            `json:"requestBodyTruncated,omitempty"`
	StatusCode           int             `json:"statusCode"`
	ResponseHeaders      Headers         `json:"responseHeaders"`
	ResponseBody         string          `json:"responseBody"`
	DurationMs           float64         `json:"durationMs"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	body, err := r.RequestBody.marshalValue()
	if err != nil {
		return nil, fmt.Errorf("request body: %w", err)
	}
	kind := r.RequestBody.Kind
	if kind == "" {
		kind = BodyNone
	}
	reqHeaders, respHeaders := r.RequestHeaders, r.ResponseHeaders
	if reqHeaders == nil {
		reqHeaders = Headers{}
	}
	if respHeaders == nil {
		respHeaders = Headers{}
	}
	return json.Marshal(wireRecord{
		ID:                   r.ID,
		Timestamp:            r.Timestamp.UTC().Format(time.RFC3339Nano),
		Port:                 r.Port,
		Method:               r.Method,
		Path:                 r.Path,
		RequestHeaders:       reqHeaders,
		RequestBodyKind:      kind,
		RequestBody:          body,
		RequestBodyTruncated: r.RequestBody.Truncated,
		StatusCode:           r.StatusCode,
		ResponseHeaders:      respHeaders,
		ResponseBody:         r.ResponseBody,
		DurationMs:           float64(r.Duration.Microseconds()) / 1000,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	body, err := unmarshalBody(w.RequestBodyKind, w.RequestBody)
	if err != nil {
		return fmt.Errorf("request body: %w", err)
	}
	body.Truncated = w.RequestBodyTruncated

	*r = Record{
		ID:              w.ID,
		Timestamp:       ts,
		Port:            w.Port,
		Method:          w.Method,
		Path:            w.Path,
		RequestHeaders:  w.RequestHeaders,
		RequestBody:     body,
		StatusCode:      w.StatusCode,
		ResponseHeaders: w.ResponseHeaders,
		ResponseBody:    w.ResponseBody,
		Duration:        time.Duration(w.DurationMs * float64(time.Millisecond)),
	}
	return nil
}
