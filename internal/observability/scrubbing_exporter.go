package observability

import (
	"context"

	"github.com/ongoingai/traceview/internal/redact"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newScrubbingExporter wraps next so that credentials quoted in span data
// never leave the process. Parse errors and raw trace lines are recorded on
// load spans and may contain API keys copied from a trace file.
func newScrubbingExporter(next sdktrace.SpanExporter) sdktrace.SpanExporter {
	return scrubbingExporter{SpanExporter: next}
}

type scrubbingExporter struct {
	sdktrace.SpanExporter
}

func (e scrubbingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	out := spans
	copied := false
	for i, span := range spans {
		clean, changed := scrubSpan(span)
		if !changed {
			continue
		}
		if !copied {
			out = append([]sdktrace.ReadOnlySpan(nil), spans...)
			copied = true
		}
		out[i] = clean
	}
	return e.SpanExporter.ExportSpans(ctx, out)
}

// scrubSpan reports whether span carried a credential and, if so, returns a
// snapshot with every affected string replaced.
func scrubSpan(span sdktrace.ReadOnlySpan) (sdktrace.ReadOnlySpan, bool) {
	attrs, attrsChanged := scrubKeyValues(span.Attributes())
	events, eventsChanged := scrubEvents(span.Events())
	description, statusChanged := scrubText(span.Status().Description)
	if !attrsChanged && !eventsChanged && !statusChanged {
		return span, false
	}

	stub := tracetest.SpanStubFromReadOnlySpan(span)
	stub.Attributes = attrs
	stub.Events = events
	stub.Status.Description = description
	return stub.Snapshot(), true
}

func scrubEvents(events []sdktrace.Event) ([]sdktrace.Event, bool) {
	var out []sdktrace.Event
	for i, event := range events {
		attrs, changed := scrubKeyValues(event.Attributes)
		if !changed {
			continue
		}
		if out == nil {
			out = append([]sdktrace.Event(nil), events...)
		}
		out[i].Attributes = attrs
	}
	if out == nil {
		return events, false
	}
	return out, true
}

// scrubKeyValues leaves attrs untouched unless a string value needs scrubbing.
func scrubKeyValues(attrs []attribute.KeyValue) ([]attribute.KeyValue, bool) {
	var out []attribute.KeyValue
	for i, kv := range attrs {
		if kv.Value.Type() != attribute.STRING {
			continue
		}
		clean, changed := scrubText(kv.Value.AsString())
		if !changed {
			continue
		}
		if out == nil {
			out = append([]attribute.KeyValue(nil), attrs...)
		}
		out[i] = kv.Key.String(clean)
	}
	if out == nil {
		return attrs, false
	}
	return out, true
}

func scrubText(s string) (string, bool) {
	if s == "" || !redact.ContainsCredential(s) {
		return s, false
	}
	return redact.ScrubCredentials(s), true
}
