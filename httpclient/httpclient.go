// Package httpclient provides an HTTP client instrumented with the o11y package. Call adds
// resiliency behaviour (timeouts, retries on 5xx, backing off after a 429) for calls between
// harness components. Do sends exactly one request and reports whatever status came back,
// which is what the traffic generator needs.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/trafficharness/o11y"
)

const JSON = "application/json; charset=utf-8"

var (
	ErrNoContent     = o11y.NewWarning("no content")
	ErrServerBackoff = errors.New("server requested explicit backoff")
)

// Config provides the client configuration
type Config struct {
	// Name is used to identify the client in spans
	Name string
	// BaseURL is the URL and optional path prefix to the server that this is a client of.
	BaseURL string
	// AcceptType if set will be used to set the Accept header.
	AcceptType string
	// Timeout is the maximum time any Call can take including any retries.
	// A zero Timeout means Call retries indefinitely.
	Timeout time.Duration
	// MaxConnectionsPerHost sets the connection pool size
	MaxConnectionsPerHost int
}

// Client is the o11y instrumented http client.
type Client struct {
	name                  string
	baseURL               string
	httpClient            *http.Client
	backOffMaxElapsedTime time.Duration
	acceptType            string

	mu      sync.RWMutex
	last429 time.Time

	now func() time.Time // purely a test hook
}

// New creates a client configured with the config param
func New(cfg Config) *Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxConnectionsPerHost == 0 {
		cfg.MaxConnectionsPerHost = 10
	}
	t.MaxConnsPerHost = cfg.MaxConnectionsPerHost
	t.MaxIdleConnsPerHost = cfg.MaxConnectionsPerHost
	// bodies are sent and received exactly as given
	t.DisableCompression = true

	return &Client{
		name:                  cfg.Name,
		baseURL:               cfg.BaseURL,
		backOffMaxElapsedTime: cfg.Timeout,
		acceptType:            cfg.AcceptType,
		httpClient: &http.Client{
			Transport: t,
		},
		now: time.Now,
	}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

type Decoder func(r io.Reader) error

// Request is an individual http request that the Client will send
type Request struct {
	Method string
	Route  string
	// Body if set is sent as JSON
	Body interface{}
	// RawBody if set is sent as is, with ContentType. It takes precedence over Body.
	RawBody     []byte
	ContentType string
	// Decoder if set is used to decode a 2xx response body
	Decoder Decoder
	Headers http.Header
	// Timeout is the individual per attempt timeout
	Timeout       time.Duration
	Query         url.Values
	NoPropagation bool

	url string
}

// NewRequest should be used to create a new request rather than constructing a Request directly.
// This encourages the user to specify a "route" for the tracing, and avoid high cardinality routes
// (when parts of the url may contain many varying values).
// The returned Request can be further altered before being passed to the client.
func NewRequest(method, route string, timeout time.Duration, routeParams ...interface{}) Request {
	return Request{
		Method:  method,
		url:     fmt.Sprintf(route, routeParams...),
		Route:   route,
		Timeout: timeout,
	}
}

// Response is what Do received, the body read in full.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends the request exactly once. Any HTTP status is a response, only transport
// failures (refused connections, timeouts, cancellation) are errors.
func (c *Client) Do(ctx context.Context, r Request) (res *Response, err error) {
	ctx, span := o11y.StartSpan(ctx, fmt.Sprintf("httpclient: %s %s", c.name, r.Route))
	defer o11y.End(span, &err)

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout(r))
	defer cancel()
	req = req.WithContext(ctx)

	span.AddRawField("http.client_name", c.name)
	span.AddRawField("http.route", r.Route)
	span.AddRawField("http.base_url", c.baseURL)
	addReqToSpan(span, req, 1)

	before := time.Now()
	hres, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call: %s %s failed with: %w", req.Method, r.Route, unwrapURLError(err))
	}
	defer func() {
		_ = hres.Body.Close()
	}()
	body, err := io.ReadAll(hres.Body)
	if err != nil {
		return nil, fmt.Errorf("call: %s %s reading body: %w", req.Method, r.Route, unwrapURLError(err))
	}
	c.timing(ctx, r, hres.StatusCode, 1, before)
	addRespToSpan(span, hres)

	return &Response{
		StatusCode: hres.StatusCode,
		Header:     hres.Header,
		Body:       body,
	}, nil
}

// Call makes the request call. It will trace out a top level span and a span for any retry attempts.
// Retries will be attempted on any 5XX responses.
// If the http call completed with a non 2XX status code then an HTTPError will be returned containing
// details of result of the call.
func (c *Client) Call(ctx context.Context, r Request) (err error) {
	ctx, span := o11y.StartSpan(ctx, fmt.Sprintf("httpclient: %s %s", c.name, r.Route))
	defer o11y.End(span, &err)

	attempts := 0
	attempt := func() error {
		attempts++
		return c.attempt(ctx, r, attempts)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.backOffMaxElapsedTime
	err = backoff.Retry(attempt, backoff.WithContext(b, ctx))
	span.AddRawField("attempts", attempts)
	return err
}

func (c *Client) attempt(ctx context.Context, r Request, n int) (err error) {
	ctx, span := o11y.StartSpan(ctx, "httpclient: attempt")
	defer o11y.End(span, &err)

	if c.shouldBackoff() {
		return backoff.Permanent(ErrServerBackoff)
	}

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return backoff.Permanent(err)
	}
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout(r))
	defer cancel()
	req = req.WithContext(ctx)

	span.AddRawField("http.client_name", c.name)
	span.AddRawField("http.route", r.Route)
	addReqToSpan(span, req, n)

	before := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call: %s %s failed with: %w after %d attempt(s)",
			req.Method, r.Route, unwrapURLError(err), n)
	}
	defer func() {
		// drain anything left so the connection can be reused, best effort
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	c.timing(ctx, r, res.StatusCode, n, before)
	addRespToSpan(span, res)

	err = extractHTTPError(req, res, n, r.Route)
	if err != nil {
		if HasStatusCode(err, http.StatusTooManyRequests) {
			c.setLast429()
		}
		return err
	}
	if r.Decoder == nil {
		return nil
	}
	if err := r.Decoder(res.Body); err != nil {
		return backoff.Permanent(err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	if r.url == "" {
		r.url = r.Route
	}
	u, err := url.Parse(c.baseURL + r.url)
	if err != nil {
		return nil, err
	}
	if r.Query != nil {
		u.RawQuery = r.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.RawBody != nil:
		body = bytes.NewReader(r.RawBody)
		contentType = r.ContentType
	case r.Body != nil:
		b := &bytes.Buffer{}
		if err := json.NewEncoder(b).Encode(r.Body); err != nil {
			return nil, fmt.Errorf("could not json encode request: %w", err)
		}
		body = b
		contentType = JSON
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if c.acceptType != "" {
		req.Header.Set("Accept", c.acceptType)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range r.Headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if !r.NoPropagation {
		for k, vs := range o11y.FromContext(ctx).Helpers().ExtractPropagation(ctx).Headers {
			req.Header[k] = vs
		}
	}
	return req, nil
}

func attemptTimeout(r Request) time.Duration {
	if r.Timeout == 0 {
		return 5 * time.Second
	}
	return r.Timeout
}

// url errors repeat the method and url which clutters metrics and logging
func unwrapURLError(err error) error {
	e := &url.Error{}
	if errors.As(err, &e) {
		return e.Err
	}
	return err
}

func (c *Client) timing(ctx context.Context, r Request, status, attempt int, before time.Time) {
	m := o11y.FromContext(ctx).MetricsProvider()
	if m == nil {
		return
	}
	_ = m.TimeInMilliseconds("httpclient",
		float64(time.Since(before).Nanoseconds())/1000000.0,
		[]string{
			"http.client_name:" + c.name,
			"http.route:" + r.Route,
			"http.method:" + r.Method,
			"http.status_code:" + strconv.Itoa(status),
			"http.retry:" + strconv.FormatBool(attempt > 1),
		},
		1,
	)
}

func addReqToSpan(span o11y.Span, req *http.Request, attempt int) {
	span.AddRawField("meta.type", "http_client")
	span.AddRawField("http.url", req.URL.String())
	span.AddRawField("http.host", req.URL.Host)
	span.AddRawField("http.method", req.Method)
	span.AddRawField("http.attempt", attempt)
	if req.ContentLength > 0 {
		span.AddRawField("http.request_content_length", req.ContentLength)
	}
}

func addRespToSpan(span o11y.Span, res *http.Response) {
	if ct := res.Header.Get("Content-Type"); ct != "" {
		span.AddRawField("http.response_content_type", ct)
	}
	span.AddRawField("http.status_code", res.StatusCode)
}

func (c *Client) shouldBackoff() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If not yet 10 seconds since the last 429
	return c.now().Before(c.last429.Add(time.Second * 10))
}

func (c *Client) setLast429() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last429 = c.now()
}

// NewJSONDecoder returns a decoder that json decodes the response body into resp.
func NewJSONDecoder(resp interface{}) Decoder {
	return func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(resp); err != nil {
			return fmt.Errorf("failed to unmarshal: %w", err)
		}
		return nil
	}
}

// HTTPError represents an error in an HTTP call when the response status code is not 2XX
type HTTPError struct {
	method   string
	route    string
	code     int
	attempts int
}

var _ error = (*HTTPError)(nil)

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("the response from %s %s was %d (%s) (%d attempts)",
		e.method, e.route, e.code, http.StatusText(e.code), e.attempts)
}

// Code returns the status code recorded in this error.
func (e *HTTPError) Code() int {
	return e.code
}

// HasStatusCode tests err for HTTPError and returns true if any of the codes
// match the stored code.
func HasStatusCode(err error, codes ...int) bool {
	e := &HTTPError{}
	if errors.As(err, &e) {
		for _, code := range codes {
			if e.code == code {
				return true
			}
		}
	}
	return false
}

// IsRequestProblem checks the err for HTTPError and returns true if the stored status code
// is in the 4xx range
func IsRequestProblem(err error) bool {
	e := &HTTPError{}
	if errors.As(err, &e) {
		return e.code >= 400 && e.code < 500
	}
	return false
}

func IsNoContent(err error) bool {
	return errors.Is(err, ErrNoContent)
}

// extractHTTPError returns an HTTPError if the response status code is >=300, otherwise it
// returns nil.
func extractHTTPError(req *http.Request, res *http.Response, attempts int, route string) error {
	httpErr := &HTTPError{
		method:   req.Method,
		route:    route,
		code:     res.StatusCode,
		attempts: attempts,
	}
	switch {
	case res.StatusCode >= 500:
		// 500 could be temporary server problems, so should retry.
		return httpErr
	case res.StatusCode >= 300:
		// All other none 2XX codes are something we did wrong so exit the retry.
		return backoff.Permanent(httpErr)
	case res.StatusCode == http.StatusNoContent:
		return backoff.Permanent(ErrNoContent)
	}
	return nil
}
