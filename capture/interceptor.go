package capture

import (
	"net/http"
)

// Interceptor is an http.ResponseWriter that forwards everything to the writer it wraps,
// keeping a copy of the status and of every body byte the wrapped writer accepted.
// Streaming is unaffected: nothing is buffered on the way to the client.
type Interceptor struct {
	w http.ResponseWriter

	body        InFlight
	status      int
	wroteHeader bool
	err         error
}

func NewInterceptor(w http.ResponseWriter) *Interceptor {
	return &Interceptor{w: w}
}

func (i *Interceptor) Header() http.Header {
	return i.w.Header()
}

// WriteHeader records the first final status, as net/http only honours that one.
// Informational 1xx statuses are forwarded without being recorded.
func (i *Interceptor) WriteHeader(code int) {
	if !i.wroteHeader && (code < 100 || code >= 200 || code == http.StatusSwitchingProtocols) {
		i.status = code
		i.wroteHeader = true
	}
	i.w.WriteHeader(code)
}

func (i *Interceptor) Write(p []byte) (int, error) {
	if !i.wroteHeader {
		i.status = http.StatusOK
		i.wroteHeader = true
	}
	n, err := i.w.Write(p)
	if n > 0 {
		i.body.Add(p[:n])
	}
	if err != nil && i.err == nil {
		i.err = err
	}
	return n, err
}

// Flush pushes buffered data to the client when the wrapped writer can.
func (i *Interceptor) Flush() {
	if f, ok := i.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the wrapped writer.
func (i *Interceptor) Unwrap() http.ResponseWriter {
	return i.w
}

// Status is the recorded status, 200 if the handler never set one.
func (i *Interceptor) Status() int {
	if !i.wroteHeader {
		return http.StatusOK
	}
	return i.status
}

// Body returns every byte the client was sent so far.
func (i *Interceptor) Body() []byte {
	return i.body.Bytes()
}

func (i *Interceptor) Chunks() int {
	return i.body.Chunks()
}

// Err is the first error returned by the wrapped writer, typically because the
// client disconnected.
func (i *Interceptor) Err() error {
	return i.err
}
