package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ongoingai/traceview/internal/jsonvalue"
	"github.com/ongoingai/traceview/internal/redact"
	"github.com/ongoingai/traceview/internal/sse"
)

const (
	DefaultRawLineMaxChars = 500
	DefaultMaxLineBytes    = 64 << 20

	defaultMethod  = "GET"
	errorStatusMin = 400

	parseErrorPrefix = "JSON parse error: "
)

// ParseOptions controls how raw trace lines become entries. Zero values fall
// back to the package defaults.
type ParseOptions struct {
	// RawLineMaxChars bounds the raw text kept on error entries.
	RawLineMaxChars int
	// MaxLineBytes is the longest line the reader accepts.
	MaxLineBytes int
	// HeaderDenylist names request headers whose values are masked.
	HeaderDenylist []string
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.RawLineMaxChars <= 0 {
		o.RawLineMaxChars = DefaultRawLineMaxChars
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	if o.HeaderDenylist == nil {
		o.HeaderDenylist = redact.DefaultHeaderDenylist
	}
	return o
}

// ParseFile opens path and parses it. A missing or unreadable file is
// returned as an error; malformed lines are not.
func ParseFile(path string, opts ParseOptions) ([]*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer file.Close()

	entries, err := Parse(file, opts)
	if err != nil {
		return nil, fmt.Errorf("parse trace file %s: %w", path, err)
	}
	return entries, nil
}

// Parse reads newline-delimited trace records from r. Blank lines are
// skipped. Every other line yields exactly one entry in input order, indexed
// by its 1-based line number. A line longer than MaxLineBytes becomes an
// error entry holding its leading bytes.
func Parse(r io.Reader, opts ParseOptions) ([]*Entry, error) {
	opts = opts.withDefaults()

	size := 64 * 1024
	if size > opts.MaxLineBytes {
		size = opts.MaxLineBytes
	}
	reader := bufio.NewReaderSize(r, size)

	entries := make([]*Entry, 0, 64)
	lineNum := 0
	for {
		line, tooLong, err := readLine(reader, opts.MaxLineBytes)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("line %d: %w", lineNum+1, err)
		}
		if err != nil && len(line) == 0 && !tooLong {
			break
		}
		lineNum++
		switch {
		case tooLong:
			message := fmt.Sprintf("line exceeds %d bytes", opts.MaxLineBytes)
			entries = append(entries, errorEntry(lineNum, message, string(line), opts.RawLineMaxChars))
		case strings.TrimSpace(string(line)) != "":
			entries = append(entries, ParseLine(lineNum, string(line), opts))
		}
		if err != nil {
			break
		}
	}
	return entries, nil
}

// readLine returns the next line without its terminator. At most limit bytes
// are kept; the rest of an over-long line is discarded and tooLong is set.
func readLine(reader *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, readErr := reader.ReadLine()
		if readErr != nil {
			return line, tooLong, readErr
		}
		if room := limit - len(line); len(chunk) > room {
			chunk = chunk[:room]
			tooLong = true
		}
		line = append(line, chunk...)
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}

// ParseLine builds the entry for a single non-blank line.
func ParseLine(index int, line string, opts ParseOptions) *Entry {
	opts = opts.withDefaults()

	decoded, err := jsonvalue.Decode(line)
	if err != nil {
		return errorEntry(index, parseErrorPrefix+err.Error(), line, opts.RawLineMaxChars)
	}
	record, ok := jsonvalue.Map(decoded)
	if !ok {
		return errorEntry(index, parseErrorPrefix+"record is not a JSON object", line, opts.RawLineMaxChars)
	}
	return buildEntry(index, record, opts)
}

func errorEntry(index int, message, line string, maxChars int) *Entry {
	return &Entry{
		Index:   index,
		Error:   message,
		RawLine: truncateRawLine(redact.ScrubCredentials(line), maxChars),
	}
}

func truncateRawLine(line string, maxChars int) string {
	if utf8.RuneCountInString(line) <= maxChars {
		return line
	}
	runes := []rune(line)
	return string(runes[:maxChars]) + "..."
}

func buildEntry(index int, record map[string]any, opts ParseOptions) *Entry {
	entry := &Entry{
		Index:    index,
		LoggedAt: record["logged_at"],
		Request: &Request{
			Headers: map[string]string{},
		},
		Response: &Response{
			Headers:      map[string]string{},
			ParsedEvents: []sse.Event{},
			RateLimits:   map[string]string{},
		},
		Summary:      &Summary{},
		SubagentInfo: &SubagentInfo{},
	}

	req, hasRequest := jsonvalue.Object(record, "request")
	if hasRequest {
		applyRequest(entry, req, opts)
	}
	if resp, ok := jsonvalue.Object(record, "response"); ok {
		applyResponse(entry, resp)
		if hasRequest {
			applyDuration(entry)
		}
	}
	return entry
}

func applyRequest(entry *Entry, req map[string]any, opts ParseOptions) {
	request := entry.Request
	summary := entry.Summary

	request.Timestamp = floatField(req, "timestamp")
	request.TimestampHuman = FormatHuman(request.Timestamp)
	request.Method = defaultMethod
	if method, ok := jsonvalue.String(req, "method"); ok {
		request.Method = method
	}
	request.URL, _ = jsonvalue.String(req, "url")
	request.Body = req["body"]
	request.QueryParams = QueryParams(request.URL)

	headers := stringHeaders(req["headers"])
	if key, ok := redact.Lookup(headers, "x-api-key"); ok {
		if suffix, ok := redact.KeySuffix(key); ok {
			request.APIKeySuffix = &suffix
		}
	}
	request.Headers = redact.MaskHeaders(headers, opts.HeaderDenylist)

	summary.Timestamp = FormatClock(request.Timestamp)
	summary.Method = stringPtr(request.Method)
	summary.URLPath = stringPtr(URLPath(request.URL))
	if body, ok := request.BodyMap(); ok {
		if model, ok := jsonvalue.String(body, "model"); ok {
			summary.Model = &model
		}
	}
}

func applyResponse(entry *Entry, resp map[string]any) {
	response := entry.Response
	summary := entry.Summary

	response.Timestamp = floatField(resp, "timestamp")
	response.TimestampHuman = FormatHuman(response.Timestamp)
	if status, ok := jsonvalue.Int(resp, "status_code"); ok {
		response.StatusCode = &status
	}
	response.Headers = stringHeaders(resp["headers"])
	response.Body = resp["body"]
	if bodyRaw, ok := jsonvalue.String(resp, "body_raw"); ok {
		response.BodyRaw = &bodyRaw
	}

	if requestID, ok := redact.Lookup(response.Headers, "request-id"); ok {
		response.RequestID = &requestID
	}
	for key, value := range response.Headers {
		if strings.Contains(strings.ToLower(key), "ratelimit") {
			response.RateLimits[key] = value
		}
	}

	if response.BodyRaw != nil && *response.BodyRaw != "" {
		response.ParsedEvents = sse.Reconstruct(*response.BodyRaw)
		if usage, ok := sse.LastUsage(response.ParsedEvents); ok {
			summary.TokensUsed = &TokenUsage{Input: usage.InputTokens, Output: usage.OutputTokens}
		}
	}

	summary.Status = response.StatusCode
	if response.StatusCode != nil && *response.StatusCode >= errorStatusMin {
		if jsonvalue.Truthy(response.Body) {
			summary.Error = response.Body
		} else {
			summary.Error = "HTTP " + strconv.Itoa(*response.StatusCode)
		}
	}
}

func applyDuration(entry *Entry) {
	start, end := entry.Request.Timestamp, entry.Response.Timestamp
	if start == nil || end == nil {
		return
	}
	seconds := *end - *start
	millis := DurationMillis(seconds)
	entry.Response.DurationMS = &millis
	entry.Summary.Duration = stringPtr(FormatDuration(seconds))
}

func floatField(values map[string]any, key string) *float64 {
	value, ok := jsonvalue.Float(values, key)
	if !ok {
		return nil
	}
	return &value
}

// stringHeaders flattens a decoded header object to string values. Non-string
// scalars are rendered with their JSON text; nested values are dropped.
func stringHeaders(raw any) map[string]string {
	object, ok := jsonvalue.Map(raw)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(object))
	for key, value := range object {
		switch typed := value.(type) {
		case string:
			out[key] = typed
		case json.Number:
			out[key] = typed.String()
		case bool:
			out[key] = strconv.FormatBool(typed)
		case nil:
			out[key] = ""
		}
	}
	return out
}
