package loader

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/traceview/internal/index"
	"github.com/ongoingai/traceview/internal/observability"
)

// IndexSummary reports what IndexAll wrote.
type IndexSummary struct {
	Files     int   `json:"files"`
	Records   int   `json:"records"`
	Replaced  int64 `json:"replaced"`
	Malformed int   `json:"malformed"`
}

// IndexAll rebuilds the index rows of every trace file in the directory.
// Each file's previous rows are deleted first so removed lines do not linger.
func (l *Loader) IndexAll(ctx context.Context, store index.Store) (summary IndexSummary, err error) {
	ctx, span := l.otel.StartSpan(ctx, "traceview.index.rebuild", attribute.String("traceview.trace_dir", l.opts.Dir))
	defer func() { observability.EndSpan(span, err) }()

	files, err := l.Files(ctx)
	if err != nil {
		return summary, err
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := l.LoadPath(ctx, file.Path)
		if err != nil {
			return summary, err
		}
		replaced, err := store.DeleteFile(ctx, file.Name)
		if err != nil {
			return summary, fmt.Errorf("clear index for %s: %w", file.Name, err)
		}
		records := l.Records(file.Name, result.Entries)
		if err := store.WriteBatch(ctx, records); err != nil {
			return summary, fmt.Errorf("index %s: %w", file.Name, err)
		}
		summary.Files++
		summary.Records += len(records)
		summary.Replaced += replaced
		summary.Malformed += result.Malformed
		l.logger.Info("trace file indexed", "file", file.Name, "records", len(records), "replaced", replaced)
	}
	return summary, nil
}
