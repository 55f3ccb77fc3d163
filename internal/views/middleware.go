package views

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// CountingWriter wraps an http.ResponseWriter to count bytes written and
// remember the status code.
type CountingWriter struct {
	http.ResponseWriter
	bytesWritten int64
	statusCode   int
}

// NewCountingWriter creates a new CountingWriter.
func NewCountingWriter(w http.ResponseWriter) *CountingWriter {
	return &CountingWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// Write implements io.Writer.
func (w *CountingWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	atomic.AddInt64(&w.bytesWritten, int64(n))
	return n, err
}

// WriteHeader implements http.ResponseWriter.
func (w *CountingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// BytesWritten returns the total bytes written.
func (w *CountingWriter) BytesWritten() int64 {
	return atomic.LoadInt64(&w.bytesWritten)
}

// StatusCode returns the HTTP status code.
func (w *CountingWriter) StatusCode() int {
	return w.statusCode
}

// Flush implements http.Flusher if the underlying writer supports it. SSE
// handlers depend on this.
func (w *CountingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LogRequests logs one debug line per request with status, size and duration.
func LogRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		cw := NewCountingWriter(w)
		next.ServeHTTP(cw, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", cw.StatusCode(),
			"bytes", cw.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}
