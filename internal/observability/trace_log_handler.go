package observability

import (
	"context"
	"log/slog"

	"github.com/ongoingai/traceview/internal/correlation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type traceFileKey struct{}

// WithTraceFile tags ctx with the trace file being processed. Loggers built
// on NewTraceLogHandler emit it as trace_file.
func WithTraceFile(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, traceFileKey{}, name)
}

// TraceFileFromContext returns the trace file set by WithTraceFile.
func TraceFileFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(traceFileKey{}).(string)
	return name, ok && name != ""
}

// NewTraceLogHandler decorates inner so every record carries the identifiers
// found in its context: request_id, trace_file, and trace_id/span_id while a
// span is recording. A nil inner falls back to the default handler.
func NewTraceLogHandler(inner slog.Handler) slog.Handler {
	if inner == nil {
		inner = slog.Default().Handler()
	}
	return contextLogHandler{Handler: inner}
}

type contextLogHandler struct {
	slog.Handler
}

func (h contextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(contextAttrs(ctx)...)
	return h.Handler.Handle(ctx, record)
}

func (h contextLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextLogHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextLogHandler) WithGroup(name string) slog.Handler {
	return contextLogHandler{Handler: h.Handler.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id, ok := correlation.FromContext(ctx); ok {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if name, ok := TraceFileFromContext(ctx); ok {
		attrs = append(attrs, slog.String("trace_file", name))
	}
	if span := oteltrace.SpanFromContext(ctx); span.IsRecording() {
		if sc := span.SpanContext(); sc.IsValid() {
			attrs = append(attrs,
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return attrs
}
