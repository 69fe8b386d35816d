// Package middleware holds the HTTP plumbing shared by the pipeline and the
// serverless adapter: CORS, request IDs, panic recovery and a response recorder.
package middleware

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Recorder wraps http.ResponseWriter to observe what a handler sent without
// altering it. It optionally keeps the first N body bytes for summaries.
type Recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
	captureMax  int
	captured    []byte
}

// Record wraps w in a Recorder.
func Record(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w, status: http.StatusOK}
}

// Capture keeps up to limit bytes of the body as it is written.
func (rw *Recorder) Capture(limit int) *Recorder {
	rw.captureMax = limit
	return rw
}

// WriteHeader records the status code before delegating.
func (rw *Recorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *Recorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	if room := rw.captureMax - len(rw.captured); room > 0 {
		if room > len(b) {
			room = len(b)
		}
		rw.captured = append(rw.captured, b[:room]...)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

// Status returns the status code sent (200 when the handler never set one).
func (rw *Recorder) Status() int {
	return rw.status
}

// HeadersSent reports whether the status line has gone out.
func (rw *Recorder) HeadersSent() bool {
	return rw.wroteHeader
}

// BytesWritten returns the number of body bytes written.
func (rw *Recorder) BytesWritten() int64 {
	return rw.bytes
}

// Captured returns the retained body prefix.
func (rw *Recorder) Captured() []byte {
	return rw.captured
}

// Flush forwards to the underlying writer when supported.
func (rw *Recorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.wroteHeader = true
		f.Flush()
	}
}

// Hijack forwards to the underlying writer when supported.
func (rw *Recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rw *Recorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// headerState is implemented by writers that know whether headers went out.
type headerState interface {
	HeadersSent() bool
}

// HeadersSent reports whether w (or a writer it wraps) already sent headers.
// Writers that cannot tell are assumed not to have sent anything.
func HeadersSent(w http.ResponseWriter) bool {
	for w != nil {
		if hs, ok := w.(headerState); ok && hs.HeadersSent() {
			return true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}
