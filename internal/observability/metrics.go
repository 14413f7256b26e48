package observability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments holds the trace viewer metric instruments. A nil instrument is
// skipped.
type instruments struct {
	parsedEntries  metric.Int64Counter
	malformedLines metric.Int64Counter
	subagentTagged metric.Int64Counter
	queueDrops     metric.Int64Counter
	writeFailures  metric.Int64Counter
	loadDuration   metric.Float64Histogram
}

func newInstruments(meter metric.Meter, logger *slog.Logger) instruments {
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			warnInstrument(logger, name, err)
			return nil
		}
		return c
	}

	m := instruments{
		parsedEntries:  counter("traceview.parse.entries_total", "Trace entries produced by the JSONL parser."),
		malformedLines: counter("traceview.parse.malformed_lines_total", "Trace file lines that could not be decoded."),
		subagentTagged: counter("traceview.subagent.tagged_total", "Entries attributed to a delegated sub-agent."),
		queueDrops:     counter("traceview.index.queue_dropped_total", "Index records dropped because the write queue was full."),
		writeFailures:  counter("traceview.index.write_failed_total", "Index records lost to storage write failures."),
	}
	histogram, err := meter.Float64Histogram("traceview.trace.load.duration",
		metric.WithDescription("Time to parse and annotate one trace file."),
		metric.WithUnit("s"),
	)
	if err != nil {
		warnInstrument(logger, "traceview.trace.load.duration", err)
	} else {
		m.loadDuration = histogram
	}
	return m
}

func warnInstrument(logger *slog.Logger, name string, err error) {
	if logger != nil {
		logger.Warn("failed to create opentelemetry instrument", "metric", name, "error", err)
	}
}

func addCount(c metric.Int64Counter, n int, attrs ...attribute.KeyValue) {
	if c == nil || n <= 0 {
		return
	}
	c.Add(context.Background(), int64(n), metric.WithAttributes(attrs...))
}

// RecordParse counts entries and malformed lines from one trace file read.
func (r *Runtime) RecordParse(source string, entries, malformed int) {
	if !r.Enabled() {
		return
	}
	attr := attribute.String("source", strings.TrimSpace(source))
	addCount(r.metrics.parsedEntries, entries, attr)
	addCount(r.metrics.malformedLines, malformed, attr)
}

// RecordLoadDuration observes how long one trace file took to load.
func (r *Runtime) RecordLoadDuration(source string, elapsed time.Duration) {
	if !r.Enabled() || r.metrics.loadDuration == nil {
		return
	}
	r.metrics.loadDuration.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(attribute.String("source", strings.TrimSpace(source))))
}

// RecordSubagentTagged counts entries attributed to agentType.
func (r *Runtime) RecordSubagentTagged(agentType string, count int) {
	if !r.Enabled() {
		return
	}
	addCount(r.metrics.subagentTagged, count, attribute.String("agent_type", strings.TrimSpace(agentType)))
}

// RecordIndexQueueDrop counts one record rejected by a full index queue.
func (r *Runtime) RecordIndexQueueDrop(store string) {
	if !r.Enabled() {
		return
	}
	addCount(r.metrics.queueDrops, 1, attribute.String("store", strings.TrimSpace(store)))
}

// RecordIndexWriteFailure counts records the index store failed to persist.
func (r *Runtime) RecordIndexWriteFailure(operation string, failedCount int, errorClass, store string) {
	if !r.Enabled() {
		return
	}
	addCount(r.metrics.writeFailures, failedCount,
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("error_class", strings.TrimSpace(errorClass)),
		attribute.String("store", strings.TrimSpace(store)),
	)
}
