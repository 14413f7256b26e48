package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ongoingai/traceview/internal/correlation"
)

// LoggingMiddleware tags every request with an id, echoes it back in the
// response and logs one line once the handler returns. The id travels in the
// request context, so loggers built on observability.NewTraceLogHandler print
// it as request_id. Server errors log at error level and client errors at
// warn.
func LoggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if next == nil {
		next = http.NotFoundHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, requestID := correlation.EnsureRequest(r)
		w.Header().Set(correlation.HeaderName, requestID)

		started := time.Now()
		rw := &loggedResponse{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		status := rw.Status()
		logger.LogAttrs(r.Context(), levelForStatus(status), "request complete",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("bytes", rw.written),
			slog.Int64("latency_ms", time.Since(started).Milliseconds()),
		)
	})
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest && status != http.StatusNotFound:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// loggedResponse remembers the status and body size sent through it.
// Unwrap lets http.ResponseController reach Flush and Hijack on the
// underlying writer.
type loggedResponse struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *loggedResponse) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggedResponse) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *loggedResponse) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *loggedResponse) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
