package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/trafficharness/testing/testcontext"
)

func TestNewRequest_Formats(t *testing.T) {
	req := NewRequest("POST", "/%s.txt", time.Second, "the-path")
	assert.Check(t, cmp.Equal(req.url, "/the-path.txt"))
	assert.Check(t, cmp.Equal(req.Route, "/%s.txt"))
	assert.Check(t, cmp.Equal(req.Method, "POST"))
	assert.Check(t, cmp.Equal(req.Timeout, time.Second))
}

func TestClient_Call_Decodes(t *testing.T) {
	ctx := testcontext.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// language=json
		_, _ = io.WriteString(w, `{"a": "value-a", "b": "value-b"}`)
	}))
	t.Cleanup(server.Close)

	client := New(Config{
		Name:    "name",
		BaseURL: server.URL,
		Timeout: time.Second,
	})
	req := NewRequest("POST", "/", time.Second)

	m := make(map[string]string)
	req.Decoder = NewJSONDecoder(&m)

	err := client.Call(ctx, req)
	assert.Check(t, err)
	assert.Check(t, cmp.DeepEqual(m, map[string]string{
		"a": "value-a",
		"b": "value-b",
	}))
}

func TestClient_Call_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"running":false}`)
	}))
	t.Cleanup(server.Close)

	client := New(Config{Name: "retry", BaseURL: server.URL, Timeout: 10 * time.Second})

	var body struct {
		Running *bool `json:"running"`
	}
	req := NewRequest("GET", "/api/batch", time.Second)
	req.Decoder = NewJSONDecoder(&body)
	assert.Check(t, client.Call(testcontext.Background(), req))
	assert.Assert(t, body.Running != nil)
	assert.Check(t, !*body.Running)
	assert.Check(t, cmp.Equal(atomic.LoadInt32(&calls), int32(3)))
}

func TestClient_Call_RequestProblemIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(server.Close)

	client := New(Config{Name: "conflict", BaseURL: server.URL, Timeout: 10 * time.Second})
	err := client.Call(testcontext.Background(), NewRequest("POST", "/api/batch", time.Second))
	assert.Check(t, HasStatusCode(err, http.StatusConflict))
	assert.Check(t, IsRequestProblem(err))
	assert.Check(t, cmp.Equal(atomic.LoadInt32(&calls), int32(1)))
}

func TestClient_Call_Timeouts(t *testing.T) {
	okHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}
	longHandler := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Minute):
		}
		w.WriteHeader(200)
	}

	tests := []struct {
		name              string
		handler           func(w http.ResponseWriter, r *http.Request)
		totalTimeout      time.Duration
		perRequestTimeout time.Duration
		wantError         error
	}{
		{
			name:      "good response",
			handler:   okHandler,
			wantError: nil,
		},
		{
			name:              "timeout with retries",
			handler:           longHandler,
			totalTimeout:      time.Second,
			perRequestTimeout: time.Millisecond,
			wantError:         context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.handler))
			t.Cleanup(server.Close)
			client := New(Config{
				Name:    "timeouts",
				BaseURL: server.URL,
				Timeout: tt.totalTimeout,
			})
			req := NewRequest("POST", "/", tt.perRequestTimeout)
			err := client.Call(testcontext.Background(), req)
			if tt.wantError == nil {
				assert.Check(t, err)
			} else {
				assert.Check(t, errors.Is(err, tt.wantError), err)
			}
		})
	}
}

func TestClient_Call_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Minute):
		}
		w.WriteHeader(200)
	}))
	t.Cleanup(server.Close)

	client := New(Config{
		Name:    "context-cancel",
		BaseURL: server.URL,
		Timeout: 10 * time.Second,
	})
	req := NewRequest("POST", "/", time.Minute)
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	callErr := make(chan error)
	go func() {
		callErr <- client.Call(ctx, req)
	}()

	time.Sleep(time.Millisecond * 10)
	cancel()

	select {
	case <-time.After(time.Second * 5):
		t.Error("context cancellation did not stop the client")
	case err := <-callErr:
		assert.Check(t, errors.Is(err, context.Canceled))
	}
}

func TestClient_Do_AnyStatusIsAResponse(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"Internal Server Error"}`)
	}))
	t.Cleanup(server.Close)

	client := New(Config{Name: "traffic", BaseURL: server.URL})
	res, err := client.Do(testcontext.Background(), NewRequest("DELETE", "/abc", time.Second))
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(res.StatusCode, http.StatusInternalServerError))
	assert.Check(t, cmp.Equal(string(res.Body), `{"error":"Internal Server Error"}`))
	assert.Check(t, cmp.Equal(res.Header.Get("Content-Type"), "application/json"))
	assert.Check(t, cmp.Equal(atomic.LoadInt32(&calls), int32(1)), "Do must never retry")
}

func TestClient_Do_SendsRawBodyAndHeaders(t *testing.T) {
	type seen struct {
		method, uri, contentType, custom string
		cookies                          []string
		body                             []byte
	}
	got := make(chan seen, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- seen{
			method:      r.Method,
			uri:         r.RequestURI,
			contentType: r.Header.Get("Content-Type"),
			custom:      r.Header.Get("X-Custom-Header"),
			cookies:     r.Header.Values("Cookie"),
			body:        b,
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	client := New(Config{Name: "traffic", BaseURL: server.URL})
	req := NewRequest("PATCH", "/%s", time.Second, "k3x9")
	req.RawBody = []byte{0x00, 0xff, 0x10}
	req.ContentType = "application/octet-stream"
	req.Query = url.Values{"q": {"1"}}
	req.Headers = http.Header{
		"X-Custom-Header": {"abcdefghijklmnopqrst"},
		"Cookie":          {"sessionId=abc; userId=7"},
	}
	req.NoPropagation = true

	res, err := client.Do(testcontext.Background(), req)
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(res.StatusCode, http.StatusCreated))

	s := <-got
	assert.Check(t, cmp.Equal(s.method, "PATCH"))
	assert.Check(t, cmp.Equal(s.uri, "/k3x9?q=1"))
	assert.Check(t, cmp.Equal(s.contentType, "application/octet-stream"))
	assert.Check(t, cmp.Equal(s.custom, "abcdefghijklmnopqrst"))
	assert.Check(t, cmp.DeepEqual(s.cookies, []string{"sessionId=abc; userId=7"}))
	assert.Check(t, cmp.DeepEqual(s.body, []byte{0x00, 0xff, 0x10}))
}

func TestClient_Do_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := New(Config{Name: "traffic", BaseURL: server.URL})
	res, err := client.Do(testcontext.Background(), NewRequest("GET", "/gone", time.Second))
	assert.Check(t, err != nil)
	assert.Check(t, res == nil)
	assert.Check(t, cmp.ErrorContains(err, "call: GET /gone failed with:"))
}

func TestHasStatusCode(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		codes []int
		want  bool
	}{
		{name: "With matching code", err: &HTTPError{code: 400}, codes: []int{400, 500}, want: true},
		{name: "With different code", err: &HTTPError{code: 200}, codes: []int{400, 500}, want: false},
		{name: "Empty error", err: &HTTPError{}, codes: []int{400}, want: false},
		{name: "Nil error", err: nil, codes: []int{400}, want: false},
		{name: "Other kind of error", err: errors.New("some other error"), codes: []int{400}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Check(t, cmp.Equal(HasStatusCode(tt.err, tt.codes...), tt.want))
		})
	}
}

func TestIsRequestProblem(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "With problem code", err: &HTTPError{code: 400}, want: true},
		{name: "With non-request error code", err: &HTTPError{code: 500}, want: false},
		{name: "With good code", err: &HTTPError{code: 200}, want: false},
		{name: "Empty error", err: &HTTPError{}, want: false},
		{name: "Nil error", err: nil, want: false},
		{name: "Other kind of error", err: errors.New("some other error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Check(t, cmp.Equal(IsRequestProblem(tt.err), tt.want))
		})
	}
}
