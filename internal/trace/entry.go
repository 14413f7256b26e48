// Package trace parses captured Claude API trace files.
//
// A trace file holds one JSON record per line, each describing a single
// request/response exchange. Parse turns every non-blank line into an Entry;
// lines that are not valid JSON become error entries so that line numbering
// survives corruption.
package trace

import "github.com/ongoingai/traceview/internal/sse"

// Entry is one parsed line of a trace file. Error entries carry only Index,
// Error and RawLine.
type Entry struct {
	Index        int           `json:"index"`
	LoggedAt     any           `json:"logged_at,omitempty"`
	Request      *Request      `json:"request,omitempty"`
	Response     *Response     `json:"response,omitempty"`
	Summary      *Summary      `json:"summary,omitempty"`
	SubagentInfo *SubagentInfo `json:"subagent_info,omitempty"`

	Error   string `json:"error,omitempty"`
	RawLine string `json:"raw_line,omitempty"`
}

// IsError reports whether the line could not be decoded.
func (e *Entry) IsError() bool {
	return e != nil && e.Error != ""
}

// Request is the captured outbound API request. Credential header values are
// masked before the entry is built.
type Request struct {
	Timestamp      *float64          `json:"timestamp"`
	TimestampHuman *string           `json:"timestamp_human"`
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers"`
	Body           any               `json:"body"`
	QueryParams    *string           `json:"query_params"`
	APIKeySuffix   *string           `json:"api_key_suffix"`
}

// BodyMap returns the request body when it is a JSON object.
func (r *Request) BodyMap() (map[string]any, bool) {
	if r == nil {
		return nil, false
	}
	body, ok := r.Body.(map[string]any)
	return body, ok
}

// Response is the captured API response. ParsedEvents is populated only for
// streamed responses.
type Response struct {
	Timestamp      *float64          `json:"timestamp"`
	TimestampHuman *string           `json:"timestamp_human"`
	StatusCode     *int              `json:"status_code"`
	Headers        map[string]string `json:"headers"`
	Body           any               `json:"body"`
	BodyRaw        *string           `json:"body_raw"`
	ParsedEvents   []sse.Event       `json:"parsed_events"`
	RequestID      *string           `json:"request_id"`
	RateLimits     map[string]string `json:"rate_limits"`
	DurationMS     *int64            `json:"duration_ms"`
}

// Summary is the quick-glance projection of an entry.
type Summary struct {
	Timestamp  *string     `json:"timestamp"`
	Method     *string     `json:"method"`
	URLPath    *string     `json:"url_path"`
	Status     *int        `json:"status"`
	Duration   *string     `json:"duration"`
	Model      *string     `json:"model"`
	TokensUsed *TokenUsage `json:"tokens_used"`
	Error      any         `json:"error"`
}

// TokenUsage mirrors the last usage object reported by a stream.
type TokenUsage struct {
	Input  *int `json:"input"`
	Output *int `json:"output"`
}

// SubagentInfo records whether an entry belongs to a delegated conversation.
type SubagentInfo struct {
	IsSubagent      bool     `json:"is_subagent"`
	AgentType       *string  `json:"agent_type"`
	DetectionMethod *string  `json:"detection_method"`
	Confidence      *float64 `json:"confidence"`
}

// MessageCount returns the number of messages in the request body, or zero
// when the entry has no request body or the body has no message list.
func (e *Entry) MessageCount() int {
	if e == nil {
		return 0
	}
	body, ok := e.Request.BodyMap()
	if !ok {
		return 0
	}
	messages, _ := body["messages"].([]any)
	return len(messages)
}

// SystemPrompt returns the request's system prompt. A list-valued system
// prompt yields the text of its first element. ok is false when the system
// value is neither a string nor such a list.
func (e *Entry) SystemPrompt() (string, bool) {
	if e == nil {
		return "", false
	}
	body, ok := e.Request.BodyMap()
	if !ok {
		return "", false
	}
	raw, present := body["system"]
	if !present {
		return "", true
	}
	switch typed := raw.(type) {
	case string:
		return typed, true
	case []any:
		if len(typed) == 0 {
			return "", false
		}
		switch first := typed[0].(type) {
		case map[string]any:
			text, ok := first["text"]
			if !ok {
				return "", true
			}
			value, ok := text.(string)
			return value, ok
		case string:
			return first, true
		}
	}
	return "", false
}

func stringPtr(s string) *string { return &s }
