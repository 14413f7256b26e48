// Package index persists per-entry trace summaries so analytics can be served
// without re-parsing every trace file. SQLite and Postgres backends share the
// schema in the migrations package.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ongoingai/traceview/migrations"
)

var ErrNotImplemented = errors.New("index store method not implemented")
var ErrNotFound = errors.New("index record not found")
var ErrInvalidCursor = errors.New("index cursor is invalid")

// RecordWriter is the write half of a Store, consumed by Writer.
type RecordWriter interface {
	WriteRecord(ctx context.Context, record *Record) error
	WriteBatch(ctx context.Context, records []*Record) error
}

type Store interface {
	RecordWriter
	GetRecord(ctx context.Context, id string) (*Record, error)
	QueryRecords(ctx context.Context, filter RecordFilter) (*RecordResult, error)
	DeleteFile(ctx context.Context, file string) (int64, error)
	GetModelStats(ctx context.Context, filter AnalyticsFilter) ([]ModelStats, error)
	GetAgentStats(ctx context.Context, filter AnalyticsFilter) ([]AgentStats, error)
	Driver() string
	Close() error
}

type RecordFilter struct {
	File      string
	Provider  string
	Model     string
	AgentType string
	Subagent  *bool
	Errors    *bool
	From      time.Time
	To        time.Time
	Limit     int
	Cursor    string
}

type RecordResult struct {
	Items      []*Record
	NextCursor string
}

type AnalyticsFilter struct {
	File     string
	Provider string
	Model    string
	From     time.Time
	To       time.Time
}

type ModelStats struct {
	Model         string  `json:"model"`
	Provider      string  `json:"provider"`
	RequestCount  int64   `json:"request_count"`
	ErrorCount    int64   `json:"error_count"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	TotalTokens   int64   `json:"total_tokens"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

// AgentStats groups records by sub-agent type. Main-conversation records are
// reported under an empty agent type.
type AgentStats struct {
	AgentType    string  `json:"agent_type"`
	IsSubagent   bool    `json:"is_subagent"`
	RequestCount int64   `json:"request_count"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// Open returns the store selected by driver, or nil when indexing is
// disabled.
func Open(driver, path, dsn string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch driver {
	case "", "none":
		return nil, nil
	case migrations.DriverSQLite:
		store, err = NewSQLiteStore(path)
	case migrations.DriverPostgres:
		store, err = NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported index store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
