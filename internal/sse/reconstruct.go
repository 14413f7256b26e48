// Package sse rebuilds server-sent event streams captured in trace files.
//
// A captured streaming response is a single string of "event:" and "data:"
// lines. Reconstruct turns it back into an ordered event list and reassembles
// tool-use input that the server streamed as partial JSON fragments.
package sse

import (
	"strings"

	"github.com/ongoingai/traceview/internal/jsonvalue"
)

const (
	eventPrefix = "event: "
	dataPrefix  = "data: "
	doneMarker  = "[DONE]"

	typeContentBlockStart = "content_block_start"
	typeContentBlockDelta = "content_block_delta"
	typeContentBlockStop  = "content_block_stop"

	blockTypeToolUse   = "tool_use"
	deltaTypeInputJSON = "input_json_delta"
)

// Event is one reconstructed stream event. Data is the decoded JSON payload,
// the raw payload string when it was not valid JSON, or nil when no data line
// followed the event line.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	Raw  string `json:"raw"`
}

// DataMap returns the event payload as a JSON object.
func (e Event) DataMap() (map[string]any, bool) {
	data, ok := e.Data.(map[string]any)
	return data, ok
}

// toolBlock accumulates streamed tool input for one content block. start is
// the position of the block's content_block_start event in the output slice.
type toolBlock struct {
	start   int
	partial strings.Builder
}

// Reconstruct parses a captured SSE body into events. Malformed data lines
// never fail the parse: they are kept as raw strings on their event.
func Reconstruct(bodyRaw string) []Event {
	if bodyRaw == "" {
		return []Event{}
	}

	events := make([]Event, 0, strings.Count(bodyRaw, eventPrefix))
	open := make(map[int]*toolBlock)
	current := -1

	for _, line := range strings.Split(bodyRaw, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, eventPrefix):
			events = append(events, Event{Type: line[len(eventPrefix):], Raw: line})
			current = len(events) - 1

		case strings.HasPrefix(line, dataPrefix) && current >= 0:
			payload := line[len(dataPrefix):]
			if payload == "" || payload == doneMarker {
				continue
			}
			event := &events[current]
			event.Raw += "\n" + line

			data, err := jsonvalue.Decode(payload)
			if err != nil {
				event.Data = payload
				continue
			}
			event.Data = data
			trackToolInput(events, current, open)
		}
	}

	return events
}

// trackToolInput advances tool-input accumulation for the event at position
// pos. Completed input is written into the content_block of the start event.
func trackToolInput(events []Event, pos int, open map[int]*toolBlock) {
	data, ok := events[pos].DataMap()
	if !ok {
		return
	}
	blockIndex, ok := jsonvalue.Int(data, "index")
	if !ok {
		return
	}

	switch events[pos].Type {
	case typeContentBlockStart:
		block, _ := data["content_block"].(map[string]any)
		if block == nil || block["type"] != blockTypeToolUse {
			return
		}
		open[blockIndex] = &toolBlock{start: pos}

	case typeContentBlockDelta:
		acc, ok := open[blockIndex]
		if !ok {
			return
		}
		delta, _ := data["delta"].(map[string]any)
		if delta == nil || delta["type"] != deltaTypeInputJSON {
			return
		}
		if partial, ok := delta["partial_json"].(string); ok {
			acc.partial.WriteString(partial)
		}

	case typeContentBlockStop:
		acc, ok := open[blockIndex]
		if !ok {
			return
		}
		delete(open, blockIndex)
		if acc.partial.Len() == 0 {
			return
		}
		completeToolInput(events[acc.start], acc.partial.String())
	}
}

func completeToolInput(start Event, accumulated string) {
	data, ok := start.DataMap()
	if !ok {
		return
	}
	block, ok := data["content_block"].(map[string]any)
	if !ok {
		return
	}

	input, err := jsonvalue.Decode(accumulated)
	if err != nil {
		block["input_raw"] = accumulated
		block["input_parse_error"] = err.Error()
		return
	}
	block["input"] = input
}
