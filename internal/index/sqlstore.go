package index

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ongoingai/traceview/migrations"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) placeholder(n int) string {
	if d == dialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// timestampExpr renders a timestamp column as text that parseStoredTimestamp
// understands.
func (d dialect) timestampExpr(column string) string {
	if d == dialectPostgres {
		return `to_char(` + column + ` AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')`
	}
	return "CAST(" + column + " AS TEXT)"
}

var recordColumns = []string{
	"id",
	"file",
	"entry_index",
	"timestamp",
	"provider",
	"model",
	"method",
	"url_path",
	"status_code",
	"input_tokens",
	"output_tokens",
	"total_tokens",
	"duration_ms",
	"is_error",
	"is_subagent",
	"agent_type",
	"estimated_cost_usd",
	"request_id",
	"api_key_suffix",
	"created_at",
}

func upsertSQL(d dialect) string {
	placeholders := make([]string, len(recordColumns))
	updates := make([]string, 0, len(recordColumns))
	for i, column := range recordColumns {
		placeholders[i] = d.placeholder(i + 1)
		if column != "id" && column != "created_at" {
			updates = append(updates, column+" = excluded."+column)
		}
	}
	return "INSERT INTO trace_entries (" + strings.Join(recordColumns, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ")
}

func recordArgs(r *Record) []any {
	var timestamp any
	if r.Timestamp != nil {
		timestamp = r.Timestamp.UTC()
	}
	return []any{
		r.ID,
		r.File,
		r.EntryIndex,
		timestamp,
		r.Provider,
		r.Model,
		r.Method,
		r.URLPath,
		r.StatusCode,
		r.InputTokens,
		r.OutputTokens,
		r.TotalTokens,
		r.DurationMS,
		r.IsError,
		r.IsSubagent,
		r.AgentType,
		r.EstimatedCostUSD,
		r.RequestID,
		r.APIKeySuffix,
		r.CreatedAt.UTC(),
	}
}

// normalizeRecord returns a copy ready for persistence.
func normalizeRecord(in *Record) (*Record, error) {
	out := *in
	if out.File == "" {
		return nil, fmt.Errorf("index record %q has no file", in.ID)
	}
	if out.ID == "" {
		out.ID = RecordID(out.File, out.EntryIndex)
	}
	if out.Provider == "" {
		out.Provider = UnknownProvider
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.InputTokens + out.OutputTokens
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	return &out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// sqlStore holds the queries both SQL backends share.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

// openSQLStore opens driverName, runs prepare when set and applies the
// schema for schemaDriver. The database is closed on any failure.
func openSQLStore(driverName, dsn string, d dialect, schemaDriver string, prepare func(*sql.DB) error) (*sqlStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if prepare != nil {
		err = prepare(db)
	}
	if err == nil {
		if err = migrations.Apply(context.Background(), db, schemaDriver); err != nil {
			err = fmt.Errorf("ensure schema: %w", err)
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlStore{db: db, dialect: d}, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) upsert(ctx context.Context, exec execer, record *Record) error {
	row, err := normalizeRecord(record)
	if err != nil {
		return err
	}
	if _, err := exec.ExecContext(ctx, upsertSQL(s.dialect), recordArgs(row)...); err != nil {
		return fmt.Errorf("write index record %q: %w", row.ID, err)
	}
	return nil
}

func (s *sqlStore) upsertBatch(ctx context.Context, records []*Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, record := range records {
		if record == nil {
			continue
		}
		if err := s.upsert(ctx, tx, record); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index batch transaction: %w", err)
	}
	return nil
}

func (s *sqlStore) deleteFile(ctx context.Context, file string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM trace_entries WHERE file = "+s.dialect.placeholder(1), file)
	if err != nil {
		return 0, fmt.Errorf("delete index records for %q: %w", file, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (s *sqlStore) selectColumns() string {
	columns := make([]string, len(recordColumns))
	for i, column := range recordColumns {
		switch column {
		case "timestamp", "created_at":
			columns[i] = s.dialect.timestampExpr(column)
		default:
			columns[i] = column
		}
	}
	return strings.Join(columns, ", ")
}

func (s *sqlStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	query := "SELECT " + s.selectColumns() + " FROM trace_entries WHERE id = " + s.dialect.placeholder(1)
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get index record %q: %w", id, err)
	}
	return record, nil
}

// QueryRecords pages through records newest file first, then by entry
// position within the file.
func (s *sqlStore) QueryRecords(ctx context.Context, filter RecordFilter) (*RecordResult, error) {
	limit := normalizeLimit(filter.Limit)

	where := newWhereBuilder(s.dialect)
	where.addComparison("file", "=", filter.File)
	where.addComparison("provider", "=", filter.Provider)
	where.addComparison("model", "=", filter.Model)
	where.addComparison("agent_type", "=", filter.AgentType)
	if filter.Subagent != nil {
		where.addComparison("is_subagent", "=", *filter.Subagent)
	}
	if filter.Errors != nil {
		where.addComparison("is_error", "=", *filter.Errors)
	}
	where.addTimeRange(filter.From, filter.To)
	if filter.Cursor != "" {
		file, entryIndex, err := decodeRecordCursor(filter.Cursor)
		if err != nil {
			return nil, err
		}
		fileArg := where.addArg(file)
		sameFileArg := where.addArg(file)
		indexArg := where.addArg(entryIndex)
		where.addCondition("(file < " + fileArg + " OR (file = " + sameFileArg + " AND entry_index > " + indexArg + "))")
	}
	limitArg := where.addArg(limit + 1)

	query := "SELECT " + s.selectColumns() + " FROM trace_entries WHERE " + where.where() +
		" ORDER BY file DESC, entry_index ASC LIMIT " + limitArg
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("query index records: %w", err)
	}
	defer rows.Close()

	items := make([]*Record, 0, limit+1)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index record: %w", err)
		}
		items = append(items, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index records: %w", err)
	}

	result := &RecordResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		last := result.Items[limit-1]
		result.NextCursor = encodeRecordCursor(last.File, last.EntryIndex)
	}
	return result, nil
}

func (s *sqlStore) GetModelStats(ctx context.Context, filter AnalyticsFilter) ([]ModelStats, error) {
	where := s.analyticsWhere(filter)
	query := `
SELECT
	model,
	provider,
	COUNT(*) AS request_count,
	COALESCE(SUM(CASE WHEN is_error THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(input_tokens), 0),
	COALESCE(SUM(output_tokens), 0),
	COALESCE(SUM(total_tokens), 0),
	COALESCE(AVG(duration_ms), 0),
	COALESCE(SUM(estimated_cost_usd), 0)
FROM trace_entries
WHERE ` + where.where() + `
GROUP BY model, provider
ORDER BY request_count DESC, model ASC
`
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("query model stats: %w", err)
	}
	defer rows.Close()

	stats := make([]ModelStats, 0)
	for rows.Next() {
		var item ModelStats
		if err := rows.Scan(
			&item.Model,
			&item.Provider,
			&item.RequestCount,
			&item.ErrorCount,
			&item.InputTokens,
			&item.OutputTokens,
			&item.TotalTokens,
			&item.AvgDurationMS,
			&item.TotalCostUSD,
		); err != nil {
			return nil, fmt.Errorf("scan model stats row: %w", err)
		}
		stats = append(stats, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model stats rows: %w", err)
	}
	return stats, nil
}

func (s *sqlStore) GetAgentStats(ctx context.Context, filter AnalyticsFilter) ([]AgentStats, error) {
	where := s.analyticsWhere(filter)
	query := `
SELECT
	agent_type,
	is_subagent,
	COUNT(*) AS request_count,
	COALESCE(SUM(total_tokens), 0),
	COALESCE(SUM(estimated_cost_usd), 0)
FROM trace_entries
WHERE ` + where.where() + `
GROUP BY agent_type, is_subagent
ORDER BY request_count DESC, agent_type ASC
`
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("query agent stats: %w", err)
	}
	defer rows.Close()

	stats := make([]AgentStats, 0)
	for rows.Next() {
		var item AgentStats
		if err := rows.Scan(&item.AgentType, &item.IsSubagent, &item.RequestCount, &item.TotalTokens, &item.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan agent stats row: %w", err)
		}
		stats = append(stats, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent stats rows: %w", err)
	}
	return stats, nil
}

func (s *sqlStore) analyticsWhere(filter AnalyticsFilter) *whereBuilder {
	where := newWhereBuilder(s.dialect)
	where.addComparison("file", "=", filter.File)
	where.addComparison("provider", "=", filter.Provider)
	where.addComparison("model", "=", filter.Model)
	where.addTimeRange(filter.From, filter.To)
	return where
}

type whereBuilder struct {
	dialect    dialect
	conditions []string
	args       []any
}

func newWhereBuilder(d dialect) *whereBuilder {
	return &whereBuilder{
		dialect:    d,
		conditions: make([]string, 0, 8),
		args:       make([]any, 0, 8),
	}
}

func (b *whereBuilder) addArg(value any) string {
	b.args = append(b.args, value)
	return b.dialect.placeholder(len(b.args))
}

// addComparison skips empty string values so unset filter fields match
// everything.
func (b *whereBuilder) addComparison(column, operator string, value any) {
	if s, ok := value.(string); ok && s == "" {
		return
	}
	b.conditions = append(b.conditions, column+" "+operator+" "+b.addArg(value))
}

func (b *whereBuilder) addTimeRange(from, to time.Time) {
	if !from.IsZero() {
		b.addComparison("timestamp", ">=", from.UTC())
	}
	if !to.IsZero() {
		b.addComparison("timestamp", "<=", to.UTC())
	}
}

func (b *whereBuilder) addCondition(condition string) {
	b.conditions = append(b.conditions, condition)
}

func (b *whereBuilder) where() string {
	if len(b.conditions) == 0 {
		return "1=1"
	}
	return strings.Join(b.conditions, " AND ")
}

func encodeRecordCursor(file string, entryIndex int) string {
	raw := file + "|" + strconv.Itoa(entryIndex)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeRecordCursor splits on the last "|" since file names may contain one.
func decodeRecordCursor(cursor string) (string, int, error) {
	payload, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", 0, fmt.Errorf("%w: decode base64 cursor", ErrInvalidCursor)
	}
	raw := string(payload)
	sep := strings.LastIndex(raw, "|")
	if sep <= 0 {
		return "", 0, fmt.Errorf("%w: missing file", ErrInvalidCursor)
	}
	entryIndex, err := strconv.Atoi(raw[sep+1:])
	if err != nil || entryIndex < 0 {
		return "", 0, fmt.Errorf("%w: parse entry index", ErrInvalidCursor)
	}
	return raw[:sep], entryIndex, nil
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var (
		item          Record
		timestampText sql.NullString
		createdAtText sql.NullString
		model         sql.NullString
		agentType     sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.File,
		&item.EntryIndex,
		&timestampText,
		&item.Provider,
		&model,
		&item.Method,
		&item.URLPath,
		&item.StatusCode,
		&item.InputTokens,
		&item.OutputTokens,
		&item.TotalTokens,
		&item.DurationMS,
		&item.IsError,
		&item.IsSubagent,
		&agentType,
		&item.EstimatedCostUSD,
		&item.RequestID,
		&item.APIKeySuffix,
		&createdAtText,
	); err != nil {
		return nil, err
	}
	item.Model = model.String
	item.AgentType = agentType.String

	if timestampText.Valid && timestampText.String != "" {
		parsed, err := parseStoredTimestamp(timestampText.String)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", timestampText.String, err)
		}
		item.Timestamp = &parsed
	}
	if createdAtText.Valid {
		parsed, err := parseStoredTimestamp(createdAtText.String)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAtText.String, err)
		}
		item.CreatedAt = parsed
	}
	return &item, nil
}

func parseStoredTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}

	withTZLayouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
	}
	for _, layout := range withTZLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}

	withoutTZLayouts := []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
	}
	for _, layout := range withoutTZLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported datetime format")
}
