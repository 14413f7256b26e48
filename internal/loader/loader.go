// Package loader runs the read path shared by the HTTP API and the CLI:
// locate a trace file, parse it, tag sub-agent entries and optionally hand
// the flattened records to the summary index.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ongoingai/traceview/internal/config"
	"github.com/ongoingai/traceview/internal/index"
	"github.com/ongoingai/traceview/internal/observability"
	"github.com/ongoingai/traceview/internal/providers"
	"github.com/ongoingai/traceview/internal/subagent"
	"github.com/ongoingai/traceview/internal/trace"
)

// Options configures a Loader. Zero values use package defaults.
type Options struct {
	Dir      string
	Parse    trace.ParseOptions
	Detector subagent.Options
	Registry *providers.Registry
	// Source labels load metrics, e.g. "api" for the HTTP server.
	Source string
}

// OptionsFromConfig maps the file-backed config onto loader options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Dir: cfg.Traces.Dir,
		Parse: trace.ParseOptions{
			RawLineMaxChars: cfg.Traces.RawLineMaxChars,
			MaxLineBytes:    cfg.Traces.MaxLineBytes,
			HeaderDenylist:  cfg.Redaction.HeaderDenylist,
		},
		Detector: subagent.Options{
			DelegationTool:      cfg.Detector.DelegationTool,
			MainAgentMarker:     cfg.Detector.MainAgentMarker,
			ReturnJumpThreshold: cfg.Detector.ReturnJumpThreshold,
		},
	}
}

// Result is one fully processed trace file.
type Result struct {
	File      string
	Path      string
	Entries   []*trace.Entry
	Malformed int
	Detection subagent.Result
}

type Loader struct {
	opts   Options
	logger *slog.Logger
	otel   *observability.Runtime
	writer *index.Writer
}

func New(opts Options, logger *slog.Logger, otel *observability.Runtime) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = providers.DefaultRegistry()
	}
	if opts.Source == "" {
		opts.Source = "cli"
	}
	return &Loader{opts: opts, logger: logger, otel: otel}
}

// SetIndexWriter enables asynchronous indexing of every loaded file. A nil
// writer disables it.
func (l *Loader) SetIndexWriter(writer *index.Writer) {
	l.writer = writer
}

// Dir returns the trace directory the loader reads from.
func (l *Loader) Dir() string {
	return l.opts.Dir
}

// Files lists the trace files in the configured directory.
func (l *Loader) Files(ctx context.Context) ([]trace.FileInfo, error) {
	_, span := l.otel.StartSpan(ctx, "traceview.files.list", attribute.String("traceview.trace_dir", l.opts.Dir))
	files, err := trace.ListFiles(l.opts.Dir)
	observability.EndSpan(span, err)
	return files, err
}

// Load resolves name inside the trace directory and processes it. Errors
// from trace.ResolveFile are returned unwrapped enough for errors.Is.
func (l *Loader) Load(ctx context.Context, name string) (*Result, error) {
	path, err := trace.ResolveFile(l.opts.Dir, name)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, name, path)
}

// LoadPath processes a trace file at an arbitrary path.
func (l *Loader) LoadPath(ctx context.Context, path string) (*Result, error) {
	return l.load(ctx, filepath.Base(path), path)
}

func (l *Loader) load(ctx context.Context, name, path string) (result *Result, err error) {
	ctx = observability.WithTraceFile(ctx, name)
	ctx, span := l.otel.StartSpan(ctx, "traceview.trace.load", attribute.String("traceview.trace_file", name))
	started := time.Now()
	defer func() {
		observability.EndSpan(span, err)
		if err == nil {
			l.otel.RecordLoadDuration(l.opts.Source, time.Since(started))
		}
	}()

	entries, err := l.parse(ctx, name, path)
	if err != nil {
		return nil, err
	}
	result = &Result{File: name, Path: path, Entries: entries}
	for _, entry := range entries {
		if !entry.IsError() {
			continue
		}
		result.Malformed++
		span.AddEvent("traceview.malformed_line", oteltrace.WithAttributes(
			attribute.Int("traceview.entry_index", entry.Index),
			attribute.String("traceview.parse_error", entry.Error),
			attribute.String("traceview.raw_line", entry.RawLine),
		))
	}
	l.otel.RecordParse(l.opts.Source, len(entries), result.Malformed)

	_, detectSpan := l.otel.StartSpan(ctx, "traceview.subagent.annotate")
	result.Detection = subagent.Annotate(entries, l.opts.Detector)
	detectSpan.SetAttributes(
		attribute.Int("traceview.subagent.delegations", result.Detection.Delegations),
		attribute.Int("traceview.subagent.tagged", result.Detection.Tagged),
	)
	observability.EndSpan(detectSpan, nil)
	for agentType, count := range result.Detection.AgentTypes {
		l.otel.RecordSubagentTagged(agentType, count)
	}

	if result.Malformed > 0 {
		l.logger.WarnContext(ctx, "trace file has malformed lines", "malformed", result.Malformed, "entries", len(entries))
	}
	l.logger.DebugContext(ctx, "trace file loaded",
		"entries", len(entries),
		"delegations", result.Detection.Delegations,
		"tagged", result.Detection.Tagged,
	)

	l.enqueue(name, entries)
	return result, nil
}

func (l *Loader) parse(ctx context.Context, name, path string) ([]*trace.Entry, error) {
	_, span := l.otel.StartSpan(ctx, "traceview.trace.parse", attribute.String("traceview.trace_file", name))
	entries, err := trace.ParseFile(path, l.opts.Parse)
	if err == nil {
		span.SetAttributes(attribute.Int("traceview.entries", len(entries)))
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return entries, nil
}

// Records flattens entries into index records.
func (l *Loader) Records(file string, entries []*trace.Entry) []*index.Record {
	return index.RecordsFromEntries(file, entries, l.opts.Registry)
}

func (l *Loader) enqueue(file string, entries []*trace.Entry) {
	if l.writer == nil {
		return
	}
	dropped := 0
	for _, record := range l.Records(file, entries) {
		if !l.writer.Enqueue(record) {
			dropped++
		}
	}
	if dropped > 0 {
		l.logger.Warn("index queue full; records dropped", "file", file, "dropped", dropped)
	}
}
