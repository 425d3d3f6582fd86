package httpx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type recordingWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *recordingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *recordingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// probePaths are logged at debug level so health checks and scrapes do not flood the log.
var probePaths = []string{"/healthz", "/readyz", "/metrics"}

// WithAccessLog writes one line per request. Server errors log at error level, client
// errors at warn, probes at debug.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			if rw.status == 0 {
				rw.status = http.StatusOK
			}
			attrs := []any{
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"bytes", rw.written,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if biz := strings.TrimSpace(r.Header.Get(BusinessIDHeader)); biz != "" {
				attrs = append(attrs, "business_id", biz)
			}
			logger.Log(r.Context(), accessLevel(r.URL.Path, rw.status), "http request", attrs...)
		})
	}
}

func accessLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	for _, p := range probePaths {
		if path == p {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}
