package middleware

import (
	"net/http"
	"time"

	"github.com/railmon/powerstats/internal/log"
)

// Logging emits one structured log line per completed request with
// method, path, status, size and latency. Health probes and metric
// scrapes are exempt, they would dominate the log at probe intervals.
func Logging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !shouldTrace(r) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			lw := &loggingWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(lw, r)

			logger := log.WithComponentFromContext(r.Context(), "http")
			evt := logger.Info()
			switch {
			case lw.statusCode >= 500:
				evt = logger.Error()
			case lw.statusCode >= 400:
				evt = logger.Warn()
			}
			evt.
				Str("event", "request.completed").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", lw.statusCode).
				Int("bytes", lw.bytesWritten).
				Str("remote_addr", r.RemoteAddr).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("http request completed")
		})
	}
}

// loggingWriter wraps http.ResponseWriter to capture status and size.
type loggingWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	written      bool
}

func (lw *loggingWriter) WriteHeader(statusCode int) {
	if !lw.written {
		lw.statusCode = statusCode
		lw.written = true
	}
	lw.ResponseWriter.WriteHeader(statusCode)
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	if !lw.written {
		lw.WriteHeader(http.StatusOK)
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.bytesWritten += n
	return n, err
}
