package trace

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func recordLine(t *testing.T, record map[string]any) string {
	t.Helper()

	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return string(raw)
}

func parseLines(t *testing.T, lines ...string) []*Entry {
	t.Helper()

	entries, err := Parse(strings.NewReader(strings.Join(lines, "\n")), ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return entries
}

func messagesRecord(t *testing.T) string {
	t.Helper()

	return recordLine(t, map[string]any{
		"logged_at": "2025-06-01T10:00:00Z",
		"request": map[string]any{
			"timestamp": 100.0,
			"method":    "POST",
			"url":       "https://api.anthropic.com/v1/messages?beta=true",
			"headers": map[string]any{
				"x-api-key":    "sk-ant-REDACTED",
				"content-type": "application/json",
			},
			"body": map[string]any{
				"model":    "claude-sonnet-4-20250514",
				"messages": []any{map[string]any{"role": "user", "content": "hi"}},
			},
		},
		"response": map[string]any{
			"timestamp":   100.25,
			"status_code": 200,
			"headers": map[string]any{
				"request-id":                             "req_123",
				"anthropic-ratelimit-requests-remaining": "49",
				"Anthropic-RateLimit-Tokens-Reset":       "2025-06-01T10:01:00Z",
				"content-type":                           "text/event-stream",
			},
			"body_raw": strings.Join([]string{
				"event: message_start",
				`data: {"type":"message_start","message":{"usage":{"input_tokens":12,"output_tokens":1}}}`,
				"event: message_delta",
				`data: {"type":"message_delta","usage":{"output_tokens":42}}`,
				"event: message_stop",
				`data: {"type":"message_stop"}`,
			}, "\n"),
		},
	})
}

func TestParseFullEntry(t *testing.T) {
	t.Parallel()

	entries := parseLines(t, messagesRecord(t))
	if len(entries) != 1 {
		t.Fatalf("len(entries)=%d, want 1", len(entries))
	}
	entry := entries[0]

	if entry.Index != 1 {
		t.Fatalf("index=%d, want 1", entry.Index)
	}
	if entry.LoggedAt != "2025-06-01T10:00:00Z" {
		t.Fatalf("logged_at=%v", entry.LoggedAt)
	}

	req := entry.Request
	if req.Method != "POST" {
		t.Fatalf("method=%q, want POST", req.Method)
	}
	if req.QueryParams == nil || *req.QueryParams != "beta=true" {
		t.Fatalf("query_params=%v, want beta=true", req.QueryParams)
	}
	if req.APIKeySuffix == nil || *req.APIKeySuffix != "...WXYZ" {
		t.Fatalf("api_key_suffix=%v, want ...WXYZ", req.APIKeySuffix)
	}
	if req.TimestampHuman == nil || *req.TimestampHuman != "1970-01-01 00:01:40.000 UTC" {
		t.Fatalf("timestamp_human=%v", req.TimestampHuman)
	}

	resp := entry.Response
	if resp.RequestID == nil || *resp.RequestID != "req_123" {
		t.Fatalf("request_id=%v, want req_123", resp.RequestID)
	}
	if len(resp.RateLimits) != 2 {
		t.Fatalf("rate_limits=%v, want 2 entries", resp.RateLimits)
	}
	if resp.RateLimits["Anthropic-RateLimit-Tokens-Reset"] != "2025-06-01T10:01:00Z" {
		t.Fatalf("rate_limits=%v, missing mixed-case header", resp.RateLimits)
	}
	if len(resp.ParsedEvents) != 3 {
		t.Fatalf("len(parsed_events)=%d, want 3", len(resp.ParsedEvents))
	}
	if resp.DurationMS == nil || *resp.DurationMS != 250 {
		t.Fatalf("duration_ms=%v, want 250", resp.DurationMS)
	}

	summary := entry.Summary
	if summary.Duration == nil || *summary.Duration != "0.250s" {
		t.Fatalf("summary.duration=%v, want 0.250s", summary.Duration)
	}
	if summary.URLPath == nil || *summary.URLPath != "/v1/messages" {
		t.Fatalf("url_path=%v, want /v1/messages", summary.URLPath)
	}
	if summary.Model == nil || *summary.Model != "claude-sonnet-4-20250514" {
		t.Fatalf("model=%v", summary.Model)
	}
	if summary.Status == nil || *summary.Status != 200 {
		t.Fatalf("status=%v, want 200", summary.Status)
	}
	if summary.Error != nil {
		t.Fatalf("error=%v, want nil", summary.Error)
	}
	if summary.TokensUsed == nil {
		t.Fatal("tokens_used=nil")
	}
	if summary.TokensUsed.Input != nil {
		t.Fatalf("tokens_used.input=%d, want nil from the last usage event", *summary.TokensUsed.Input)
	}
	if summary.TokensUsed.Output == nil || *summary.TokensUsed.Output != 42 {
		t.Fatalf("tokens_used.output=%v, want 42", summary.TokensUsed.Output)
	}

	if entry.SubagentInfo == nil || entry.SubagentInfo.IsSubagent {
		t.Fatalf("subagent_info=%+v, want default", entry.SubagentInfo)
	}
}

func TestParseNeverEmitsFullAPIKey(t *testing.T) {
	t.Parallel()

	const key = "sk-ant-REDACTED"
	malformed := `{"request":{"headers":{"x-api-key":"` + key + `"}}, broken`

	entries := parseLines(t, messagesRecord(t), malformed)
	if len(entries) != 2 {
		t.Fatalf("len(entries)=%d, want 2", len(entries))
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal entries: %v", err)
	}
	if strings.Contains(string(encoded), key) {
		t.Fatalf("serialized entries contain the full api key: %s", encoded)
	}
	if got := entries[0].Request.Headers["x-api-key"]; got != "...WXYZ" {
		t.Fatalf("masked header=%q, want ...WXYZ", got)
	}
	if got := entries[0].Request.Headers["content-type"]; got != "application/json" {
		t.Fatalf("content-type=%q, want unchanged", got)
	}
}

func TestParseShortAPIKeyHasNoSuffix(t *testing.T) {
	t.Parallel()

	line := recordLine(t, map[string]any{
		"request": map[string]any{"headers": map[string]any{"X-Api-Key": "short"}},
	})
	entry := parseLines(t, line)[0]
	if entry.Request.APIKeySuffix != nil {
		t.Fatalf("api_key_suffix=%q, want nil", *entry.Request.APIKeySuffix)
	}
	if got := entry.Request.Headers["X-Api-Key"]; got == "short" {
		t.Fatal("short api key was not masked")
	}
}

func TestParseMalformedLinesKeepNumbering(t *testing.T) {
	t.Parallel()

	lines := []string{
		messagesRecord(t),
		"",
		"{not json",
		"   ",
		messagesRecord(t),
		`[1,2,3]`,
	}
	entries := parseLines(t, lines...)

	if len(entries) != 4 {
		t.Fatalf("len(entries)=%d, want 4", len(entries))
	}
	wantIndexes := []int{1, 3, 5, 6}
	for i, want := range wantIndexes {
		if entries[i].Index != want {
			t.Fatalf("entries[%d].Index=%d, want %d", i, entries[i].Index, want)
		}
	}

	bad := entries[1]
	if !bad.IsError() {
		t.Fatal("entries[1] is not an error entry")
	}
	if !strings.HasPrefix(bad.Error, "JSON parse error: ") {
		t.Fatalf("error=%q, want JSON parse error prefix", bad.Error)
	}
	if bad.RawLine != "{not json" {
		t.Fatalf("raw_line=%q", bad.RawLine)
	}
	if bad.Request != nil || bad.Response != nil || bad.Summary != nil {
		t.Fatal("error entry carries request/response/summary")
	}
	if !entries[3].IsError() {
		t.Fatal("non-object record is not an error entry")
	}
	if entries[2].IsError() {
		t.Fatalf("entries[2] unexpectedly errored: %s", entries[2].Error)
	}
}

func TestParseTruncatesLongRawLine(t *testing.T) {
	t.Parallel()

	line := "{" + strings.Repeat("é", 800)
	entry := parseLines(t, line)[0]

	if !entry.IsError() {
		t.Fatal("want error entry")
	}
	if !strings.HasSuffix(entry.RawLine, "...") {
		t.Fatalf("raw_line missing truncation marker: %q", entry.RawLine[len(entry.RawLine)-10:])
	}
	if got := len([]rune(entry.RawLine)); got != DefaultRawLineMaxChars+3 {
		t.Fatalf("raw_line runes=%d, want %d", got, DefaultRawLineMaxChars+3)
	}
}

func TestParseDefaultsForSparseRecord(t *testing.T) {
	t.Parallel()

	entry := parseLines(t, `{"request":{},"response":{}}`)[0]

	if entry.Request.Method != "GET" {
		t.Fatalf("method=%q, want GET", entry.Request.Method)
	}
	if entry.Request.URL != "" {
		t.Fatalf("url=%q, want empty", entry.Request.URL)
	}
	if entry.Request.QueryParams != nil || entry.Request.APIKeySuffix != nil {
		t.Fatal("optional request fields are set")
	}
	if entry.Summary.URLPath == nil || *entry.Summary.URLPath != "" {
		t.Fatalf("url_path=%v, want empty string", entry.Summary.URLPath)
	}
	if entry.Response.DurationMS != nil || entry.Summary.Duration != nil {
		t.Fatal("duration computed without timestamps")
	}
	if entry.Response.ParsedEvents == nil || len(entry.Response.ParsedEvents) != 0 {
		t.Fatalf("parsed_events=%v, want empty non-nil slice", entry.Response.ParsedEvents)
	}
	if entry.Summary.TokensUsed != nil || entry.Summary.Status != nil {
		t.Fatal("summary has values for an empty response")
	}
}

func TestParseRecordWithoutRequest(t *testing.T) {
	t.Parallel()

	entry := parseLines(t, `{"response":{"timestamp":5,"status_code":200}}`)[0]
	if entry.Summary.Method != nil {
		t.Fatalf("summary.method=%q, want nil without a request", *entry.Summary.Method)
	}
	if entry.Response.DurationMS != nil {
		t.Fatal("duration computed without a request")
	}
}

func TestParseErrorSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want any
	}{
		{
			name: "body is surfaced",
			line: `{"response":{"status_code":529,"body":{"type":"error","error":{"type":"overloaded_error"}}}}`,
			want: "overloaded_error",
		},
		{
			name: "synthesized from status",
			line: `{"response":{"status_code":401,"body":""}}`,
			want: "HTTP 401",
		},
		{
			name: "missing body",
			line: `{"response":{"status_code":500}}`,
			want: "HTTP 500",
		},
		{
			name: "success has no error",
			line: `{"response":{"status_code":200,"body":"ok"}}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entry := parseLines(t, tt.line)[0]
			got := entry.Summary.Error
			if body, ok := got.(map[string]any); ok {
				inner, _ := body["error"].(map[string]any)
				got = inner["type"]
			}
			if got != tt.want {
				t.Fatalf("summary.error=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseZeroTimestampStillComputesDuration(t *testing.T) {
	t.Parallel()

	entry := parseLines(t, `{"request":{"timestamp":0},"response":{"timestamp":1.5}}`)[0]
	if entry.Request.TimestampHuman != nil {
		t.Fatalf("timestamp_human=%q, want nil for zero", *entry.Request.TimestampHuman)
	}
	if entry.Response.DurationMS == nil || *entry.Response.DurationMS != 1500 {
		t.Fatalf("duration_ms=%v, want 1500", entry.Response.DurationMS)
	}
}

func TestParseLineTooLong(t *testing.T) {
	t.Parallel()

	long := `{"request":{"headers":{"x-api-key":"abcdefghijklmnopqrstuvwxyz0123456789` + strings.Repeat("x", 256) + `"}}}`

	tests := []struct {
		name      string
		input     string
		wantCount int
	}{
		{name: "last line", input: "{}\n" + long, wantCount: 2},
		{name: "followed by a valid line", input: "{}\n" + long + "\n{}\n", wantCount: 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entries, err := Parse(strings.NewReader(tt.input), ParseOptions{MaxLineBytes: 64})
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if len(entries) != tt.wantCount {
				t.Fatalf("len(entries)=%d, want %d", len(entries), tt.wantCount)
			}
			bad := entries[1]
			if !bad.IsError() || bad.Index != 2 {
				t.Fatalf("entry=%+v, want error entry at index 2", bad)
			}
			if !strings.Contains(bad.Error, "exceeds 64 bytes") {
				t.Fatalf("error=%q, want length message", bad.Error)
			}
			if strings.Contains(bad.RawLine, "abcdefghijklmnop") {
				t.Fatalf("raw_line leaked key material: %q", bad.RawLine)
			}
			for i, entry := range entries {
				if i != 1 && entry.IsError() {
					t.Fatalf("entry %d error=%q, want parsed", entry.Index, entry.Error)
				}
			}
			if tt.wantCount == 3 && entries[2].Index != 3 {
				t.Fatalf("index=%d, want 3", entries[2].Index)
			}
		})
	}
}

func TestParseLineScrubsTruncatedHeaderValue(t *testing.T) {
	t.Parallel()

	line := `{"request":{"headers":{"x-api-key":"abcdefghijklmnopqrstuvwxyz0123456789`
	entry := ParseLine(1, line, ParseOptions{})
	if !entry.IsError() {
		t.Fatalf("entry error empty, want parse error")
	}
	if strings.Contains(entry.RawLine, "abcdefghijklmnopqrstuvwxyz0123456789") {
		t.Fatalf("raw_line leaked key material: %q", entry.RawLine)
	}
	if !strings.Contains(entry.RawLine, `"x-api-key"`) {
		t.Fatalf("raw_line=%q, want header name kept", entry.RawLine)
	}
}

func TestParseFileMissing(t *testing.T) {
	t.Parallel()

	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.jsonl"), ParseOptions{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ParseFile() error=%v, want fs.ErrNotExist", err)
	}
}

func TestParseFileIsRepeatable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log-2025-06-01.jsonl")
	content := messagesRecord(t) + "\n{oops\n" + messagesRecord(t) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	first, err := ParseFile(path, ParseOptions{})
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}
	second, err := ParseFile(path, ParseOptions{})
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatal("parsing the same file twice produced different output")
	}
	if len(first) != 3 || !first[1].IsError() {
		t.Fatalf("entries=%d, want 3 with error at position 1", len(first))
	}
}
