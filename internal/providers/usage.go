package providers

import (
	"strings"

	"github.com/ongoingai/traceview/internal/jsonvalue"
)

// usageSchema names the fields of a provider's "usage" object. For input and
// output the first key present wins; extraInput keys are added to input.
// An empty total means the total is input plus output.
type usageSchema struct {
	input      []string
	extraInput []string
	output     []string
	total      string
}

func (s usageSchema) parse(body any) Usage {
	payload, ok := jsonvalue.Map(body)
	if !ok {
		return Usage{}
	}
	model, _ := jsonvalue.String(payload, "model")
	out := Usage{Model: strings.TrimSpace(model)}

	fields, ok := jsonvalue.Object(payload, "usage")
	if !ok {
		return out
	}
	out.InputTokens = firstPresent(fields, s.input)
	for _, key := range s.extraInput {
		out.InputTokens += firstPresent(fields, []string{key})
	}
	out.OutputTokens = firstPresent(fields, s.output)
	if s.total != "" {
		out.TotalTokens = firstPresent(fields, []string{s.total})
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.InputTokens + out.OutputTokens
	}
	return out
}

func firstPresent(fields map[string]any, keys []string) int {
	for _, key := range keys {
		if n, ok := jsonvalue.Int(fields, key); ok {
			return n
		}
	}
	return 0
}
