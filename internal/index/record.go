package index

import (
	"strconv"
	"time"

	"github.com/ongoingai/traceview/internal/providers"
	"github.com/ongoingai/traceview/internal/trace"
)

// UnknownProvider labels records whose URL and model match no provider.
const UnknownProvider = "unknown"

// Record is the indexed projection of one trace entry.
type Record struct {
	ID               string     `json:"id"`
	File             string     `json:"file"`
	EntryIndex       int        `json:"entry_index"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
	Provider         string     `json:"provider"`
	Model            string     `json:"model,omitempty"`
	Method           string     `json:"method,omitempty"`
	URLPath          string     `json:"url_path,omitempty"`
	StatusCode       int        `json:"status_code,omitempty"`
	InputTokens      int        `json:"input_tokens"`
	OutputTokens     int        `json:"output_tokens"`
	TotalTokens      int        `json:"total_tokens"`
	DurationMS       int64      `json:"duration_ms"`
	IsError          bool       `json:"is_error"`
	IsSubagent       bool       `json:"is_subagent"`
	AgentType        string     `json:"agent_type,omitempty"`
	EstimatedCostUSD float64    `json:"estimated_cost_usd"`
	RequestID        string     `json:"request_id,omitempty"`
	APIKeySuffix     string     `json:"api_key_suffix,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// RecordID is the stable identifier of an entry within a file, so re-indexing
// a file overwrites rather than duplicates.
func RecordID(file string, entryIndex int) string {
	return file + "#" + strconv.Itoa(entryIndex)
}

// RecordsFromEntries builds records for every decoded entry of file.
// Malformed lines carry no request data and are skipped.
func RecordsFromEntries(file string, entries []*trace.Entry, registry *providers.Registry) []*Record {
	if registry == nil {
		registry = providers.DefaultRegistry()
	}
	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.IsError() {
			continue
		}
		records = append(records, NewRecord(file, entry, registry))
	}
	return records
}

// NewRecord projects entry into a Record. Token counts come from the stream
// summary when present, otherwise from the provider's reading of the
// response body.
func NewRecord(file string, entry *trace.Entry, registry *providers.Registry) *Record {
	record := &Record{
		ID:         RecordID(file, entry.Index),
		File:       file,
		EntryIndex: entry.Index,
		Provider:   UnknownProvider,
	}

	var rawURL string
	if req := entry.Request; req != nil {
		rawURL = req.URL
		record.Method = req.Method
		record.URLPath = trace.URLPath(req.URL)
		if req.Timestamp != nil && *req.Timestamp > 0 {
			ts := epochToTime(*req.Timestamp)
			record.Timestamp = &ts
		}
		if req.APIKeySuffix != nil {
			record.APIKeySuffix = *req.APIKeySuffix
		}
	}

	var body any
	if resp := entry.Response; resp != nil {
		body = resp.Body
		if resp.StatusCode != nil {
			record.StatusCode = *resp.StatusCode
		}
		if resp.DurationMS != nil {
			record.DurationMS = *resp.DurationMS
		}
		if resp.RequestID != nil {
			record.RequestID = *resp.RequestID
		}
	}

	usageFound := false
	if summary := entry.Summary; summary != nil {
		if summary.Model != nil {
			record.Model = *summary.Model
		}
		if summary.Status != nil {
			record.StatusCode = *summary.Status
		}
		if tokens := summary.TokensUsed; tokens != nil {
			if tokens.Input != nil {
				record.InputTokens = *tokens.Input
				usageFound = true
			}
			if tokens.Output != nil {
				record.OutputTokens = *tokens.Output
				usageFound = true
			}
		}
		if summary.Error != nil {
			record.IsError = true
		}
	}
	if record.StatusCode >= 400 {
		record.IsError = true
	}

	provider, ok := registry.Detect(rawURL, record.Model)
	if ok {
		record.Provider = provider.Name()
		if !usageFound && body != nil {
			usage := provider.ParseResponse(body)
			record.InputTokens = usage.InputTokens
			record.OutputTokens = usage.OutputTokens
			if record.Model == "" {
				record.Model = usage.Model
			}
		}
	}
	record.TotalTokens = record.InputTokens + record.OutputTokens
	if ok {
		record.EstimatedCostUSD = provider.EstimateCost(record.Model, record.InputTokens, record.OutputTokens)
	}

	if info := entry.SubagentInfo; info != nil && info.IsSubagent {
		record.IsSubagent = true
		if info.AgentType != nil {
			record.AgentType = *info.AgentType
		}
	}
	return record
}

func epochToTime(seconds float64) time.Time {
	return time.UnixMicro(int64(seconds * 1e6)).UTC()
}
