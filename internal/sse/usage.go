package sse

import "github.com/ongoingai/traceview/internal/jsonvalue"

// Usage is the token accounting reported by a stream. A nil field means the
// usage object did not carry that count.
type Usage struct {
	InputTokens  *int
	OutputTokens *int
}

// LastUsage returns the usage object of the last event that carries one.
// message_delta events report usage at the top level of their payload while
// message_start nests it under message.
func LastUsage(events []Event) (Usage, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		data, ok := events[i].DataMap()
		if !ok {
			continue
		}
		usage, ok := jsonvalue.Object(data, "usage")
		if !ok {
			message, _ := jsonvalue.Object(data, "message")
			usage, ok = jsonvalue.Object(message, "usage")
		}
		if !ok {
			continue
		}
		return Usage{
			InputTokens:  intPtr(usage, "input_tokens"),
			OutputTokens: intPtr(usage, "output_tokens"),
		}, true
	}
	return Usage{}, false
}

// ToolUse is a tool invocation announced by a content_block_start event.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolUses lists the tool_use blocks of a stream in order. Input is empty when
// the block carries no input and nil when its input is not a JSON object.
func ToolUses(events []Event) []ToolUse {
	var out []ToolUse
	for _, event := range events {
		if event.Type != typeContentBlockStart {
			continue
		}
		data, ok := event.DataMap()
		if !ok {
			continue
		}
		block, ok := jsonvalue.Object(data, "content_block")
		if !ok || block["type"] != blockTypeToolUse {
			continue
		}
		use := ToolUse{}
		use.ID, _ = jsonvalue.String(block, "id")
		use.Name, _ = jsonvalue.String(block, "name")
		if _, present := block["input"]; present {
			use.Input, _ = jsonvalue.Object(block, "input")
		} else {
			use.Input = map[string]any{}
		}
		out = append(out, use)
	}
	return out
}

func intPtr(values map[string]any, key string) *int {
	value, ok := jsonvalue.Int(values, key)
	if !ok {
		return nil
	}
	return &value
}
