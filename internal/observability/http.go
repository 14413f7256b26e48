package observability

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ongoingai/traceview/internal/correlation"
	"github.com/ongoingai/traceview/internal/pathutil"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// WrapHTTPHandler starts a server span per request, named after the route
// pattern rather than the raw path.
func (r *Runtime) WrapHTTPHandler(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	if !r.Enabled() {
		return next
	}
	return otelhttp.NewHandler(next, "traceview.request",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return serverSpanName(req.Method, req.URL.Path)
		}),
	)
}

// SpanEnrichmentMiddleware runs inside WrapHTTPHandler. It tags the server
// span with the route and request id and marks 5xx answers as errors.
func (r *Runtime) SpanEnrichmentMiddleware(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	if !r.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sw := &spanStatusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)

		span := oteltrace.SpanFromContext(req.Context())
		if !span.IsRecording() {
			return
		}
		span.SetAttributes(attribute.String("traceview.route", routePatternForPath(req.URL.Path)))
		if id, ok := correlation.FromContext(req.Context()); ok {
			span.SetAttributes(attribute.String("traceview.request_id", id))
		}
		if sw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("http %d", sw.status))
		}
	})
}

// apiRoutes maps path prefixes to span route names, most specific first.
var apiRoutes = []struct{ prefix, pattern string }{
	{"/api/health", "/api/health"},
	{"/api/files", "/api/files"},
	{"/api/trace", "/api/trace/{filename}"},
	{"/api/analytics", "/api/analytics/*"},
	{"/api/diagnostics", "/api/diagnostics/*"},
	{"/api", "/api/*"},
}

// routePatternForPath keeps span names and attributes low-cardinality by
// collapsing trace file names and analytics views.
func routePatternForPath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	for _, route := range apiRoutes {
		if pathutil.HasPathPrefix(path, route.prefix) {
			return route.pattern
		}
	}
	return "/other"
}

func serverSpanName(method, path string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		method = "UNKNOWN"
	}
	return method + " " + routePatternForPath(path)
}

// spanStatusWriter records the first status code written. Unwrap exposes the
// underlying writer to http.ResponseController.
type spanStatusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *spanStatusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *spanStatusWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(p)
}

func (w *spanStatusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
