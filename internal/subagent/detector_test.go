package subagent

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/ongoingai/traceview/internal/trace"
)

const mainPrompt = "You are Claude Code, Anthropic's official CLI for Claude."

type entrySpec struct {
	messages  int
	system    any
	delegate  string
	noRequest bool
	malformed bool
}

func buildEntries(t *testing.T, specs ...entrySpec) []*trace.Entry {
	t.Helper()

	entries := make([]*trace.Entry, 0, len(specs))
	for i, spec := range specs {
		if spec.malformed {
			entries = append(entries, trace.ParseLine(i+1, "{broken", trace.ParseOptions{}))
			continue
		}

		record := map[string]any{}
		if !spec.noRequest {
			messages := make([]any, spec.messages)
			for m := range messages {
				messages[m] = map[string]any{"role": "user", "content": fmt.Sprintf("m%d", m)}
			}
			body := map[string]any{"model": "claude-sonnet-4-20250514", "messages": messages}
			if spec.system != nil {
				body["system"] = spec.system
			}
			record["request"] = map[string]any{"url": "https://api.anthropic.com/v1/messages", "body": body}
		}
		response := map[string]any{"status_code": 200}
		if spec.delegate != "" {
			response["body_raw"] = delegationStream(t, spec.delegate)
		}
		record["response"] = response

		raw, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("marshal record: %v", err)
		}
		entries = append(entries, trace.ParseLine(i+1, string(raw), trace.ParseOptions{}))
	}
	return entries
}

func delegationStream(t *testing.T, agentType string) string {
	t.Helper()

	input, err := json.Marshal(map[string]any{"subagent_type": agentType, "prompt": "look around"})
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	partial, err := json.Marshal(string(input))
	if err != nil {
		t.Fatalf("marshal partial: %v", err)
	}
	return strings.Join([]string{
		"event: content_block_start",
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"Task","input":{}}}`,
		"event: content_block_delta",
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":` + string(partial) + `}}`,
		"event: content_block_stop",
		`data: {"type":"content_block_stop","index":1}`,
	}, "\n")
}

func tagged(entries []*trace.Entry) []string {
	out := make([]string, len(entries))
	for i, entry := range entries {
		if entry.SubagentInfo != nil && entry.SubagentInfo.IsSubagent {
			out[i] = *entry.SubagentInfo.AgentType
		}
	}
	return out
}

func assertTags(t *testing.T, entries []*trace.Entry, want ...string) {
	t.Helper()

	got := tagged(entries)
	if len(got) != len(want) {
		t.Fatalf("len(tags)=%d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags=%q, want %q", got, want)
		}
	}
}

func TestAnnotateTagsDelegatedConversation(t *testing.T) {
	t.Parallel()

	entries := buildEntries(t,
		entrySpec{messages: 3, system: mainPrompt},
		entrySpec{messages: 5, system: mainPrompt, delegate: "general-purpose"},
		entrySpec{messages: 1, system: mainPrompt},
		entrySpec{messages: 3, system: mainPrompt},
		entrySpec{messages: 5, system: mainPrompt},
	)

	result := Annotate(entries, Options{})

	assertTags(t, entries, "", "", "general-purpose", "general-purpose", "general-purpose")
	info := entries[2].SubagentInfo
	if info.DetectionMethod == nil || *info.DetectionMethod != DetectionMethod {
		t.Fatalf("detection_method=%v, want %q", info.DetectionMethod, DetectionMethod)
	}
	if info.Confidence != nil {
		t.Fatalf("confidence=%v, want nil", *info.Confidence)
	}
	if result.Delegations != 1 || result.Tagged != 3 {
		t.Fatalf("result=%+v, want 1 delegation and 3 tagged", result)
	}
	if result.AgentTypes["general-purpose"] != 3 {
		t.Fatalf("agent types=%v", result.AgentTypes)
	}
}

func TestAnnotateReturnsToMainOnLargeJump(t *testing.T) {
	t.Parallel()

	entries := buildEntries(t,
		entrySpec{messages: 10, system: mainPrompt, delegate: "code-reviewer"},
		entrySpec{messages: 1, system: mainPrompt},
		entrySpec{messages: 3, system: mainPrompt},
		entrySpec{messages: 60, system: mainPrompt},
		entrySpec{messages: 62, system: mainPrompt},
	)

	Annotate(entries, Options{})

	assertTags(t, entries, "", "code-reviewer", "code-reviewer", "", "")
}

func TestAnnotateJumpBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		next      int
		wantAgent string
	}{
		{name: "exactly threshold stays in sub-agent", next: 53, wantAgent: "explorer"},
		{name: "one past threshold returns to main", next: 54, wantAgent: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entries := buildEntries(t,
				entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"},
				entrySpec{messages: 3, system: mainPrompt},
				entrySpec{messages: tt.next, system: mainPrompt},
			)
			Annotate(entries, Options{})
			assertTags(t, entries, "", "explorer", tt.wantAgent)
		})
	}
}

func TestAnnotateCustomThreshold(t *testing.T) {
	t.Parallel()

	entries := buildEntries(t,
		entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"},
		entrySpec{messages: 3, system: mainPrompt},
		entrySpec{messages: 9, system: mainPrompt},
	)
	Annotate(entries, Options{ReturnJumpThreshold: 5})
	assertTags(t, entries, "", "explorer", "")
}

func TestAnnotateSkipsInfrastructureWithoutStateChange(t *testing.T) {
	t.Parallel()

	entries := buildEntries(t,
		entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"},
		entrySpec{messages: 3, system: mainPrompt},
		entrySpec{messages: 1, system: "Extract file paths from this command output."},
		entrySpec{messages: 1, system: []any{map[string]any{"type": "text", "text": "Summarize the bash command."}}},
		entrySpec{messages: 4, system: mainPrompt},
	)

	result := Annotate(entries, Options{})

	assertTags(t, entries, "", "explorer", "", "", "explorer")
	if result.Infrastructure != 2 {
		t.Fatalf("infrastructure=%d, want 2", result.Infrastructure)
	}
	for _, i := range []int{2, 3} {
		if entries[i].SubagentInfo.IsSubagent {
			t.Fatalf("infrastructure entry %d was tagged", i)
		}
	}
}

func TestAnnotateInfrastructureDoesNotResetPreviousCount(t *testing.T) {
	t.Parallel()

	// The infrastructure entry in the middle must not become the jump baseline.
	entries := buildEntries(t,
		entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"},
		entrySpec{messages: 40, system: mainPrompt},
		entrySpec{messages: 1, system: "Classify this prompt."},
		entrySpec{messages: 80, system: mainPrompt},
	)
	Annotate(entries, Options{})
	assertTags(t, entries, "", "explorer", "", "explorer")
}

func TestIsInfrastructure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec entrySpec
		want bool
	}{
		{name: "single message other prompt", spec: entrySpec{messages: 1, system: "Process this."}, want: true},
		{name: "single message no system", spec: entrySpec{messages: 1}, want: true},
		{name: "single message main prompt", spec: entrySpec{messages: 1, system: mainPrompt}, want: false},
		{name: "two messages other prompt", spec: entrySpec{messages: 2, system: "Process this."}, want: false},
		{name: "list prompt main marker", spec: entrySpec{messages: 1, system: []any{map[string]any{"text": mainPrompt}}}, want: false},
		{name: "list prompt other", spec: entrySpec{messages: 1, system: []any{map[string]any{"text": "helper"}}}, want: true},
		{name: "empty list prompt", spec: entrySpec{messages: 1, system: []any{}}, want: false},
		{name: "numeric prompt", spec: entrySpec{messages: 1, system: 7}, want: false},
		{name: "no request", spec: entrySpec{noRequest: true}, want: false},
		{name: "malformed line", spec: entrySpec{malformed: true}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entry := buildEntries(t, tt.spec)[0]
			if got := IsInfrastructure(entry, DefaultMainAgentMarker); got != tt.want {
				t.Fatalf("IsInfrastructure()=%t, want %t", got, tt.want)
			}
		})
	}
}

func TestAnnotateTagsErrorEntriesInsideSubagent(t *testing.T) {
	t.Parallel()

	entries := buildEntries(t,
		entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"},
		entrySpec{malformed: true},
		entrySpec{messages: 3, system: mainPrompt},
	)
	Annotate(entries, Options{})

	// A malformed line has zero messages, so the next entry's jump is measured
	// from zero and never clears the context.
	assertTags(t, entries, "", "explorer", "explorer")
	if !entries[1].IsError() {
		t.Fatal("entries[1] is not an error entry")
	}
}

func TestAnnotateNewDelegationReplacesActiveAgent(t *testing.T) {
	t.Parallel()

	entries := buildEntries(t,
		entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"},
		entrySpec{messages: 3, system: mainPrompt},
		entrySpec{messages: 5, system: mainPrompt, delegate: "planner"},
		entrySpec{messages: 1, system: mainPrompt},
	)
	Annotate(entries, Options{})
	assertTags(t, entries, "", "explorer", "", "planner")
}

func TestAnnotateIsRerunnable(t *testing.T) {
	t.Parallel()

	entries := buildEntries(t,
		entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"},
		entrySpec{messages: 3, system: mainPrompt},
	)
	first := Annotate(entries, Options{})
	second := Annotate(entries, Options{})
	if first.Tagged != second.Tagged || first.Delegations != second.Delegations {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	assertTags(t, entries, "", "explorer")
}

func TestDelegatedAgentTypeIgnoresOtherTools(t *testing.T) {
	t.Parallel()

	entry := buildEntries(t, entrySpec{messages: 2, system: mainPrompt, delegate: "explorer"})[0]
	if _, ok := DelegatedAgentType(entry, "Agent"); ok {
		t.Fatal("DelegatedAgentType() matched a different tool name")
	}
	got, ok := DelegatedAgentType(entry, "Task")
	if !ok || got != "explorer" {
		t.Fatalf("DelegatedAgentType()=(%q,%t), want (explorer,true)", got, ok)
	}
	if _, ok := DelegatedAgentType(nil, "Task"); ok {
		t.Fatal("DelegatedAgentType(nil) reported ok")
	}
}

func TestAnnotateEmpty(t *testing.T) {
	t.Parallel()

	result := Annotate(nil, Options{})
	if result.Tagged != 0 || result.Delegations != 0 {
		t.Fatalf("result=%+v, want zero", result)
	}
}
