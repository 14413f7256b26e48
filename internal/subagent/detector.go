// Package subagent tags trace entries that belong to a delegated conversation.
//
// The trace format has no explicit marker for where a sub-agent conversation
// ends. Annotate infers it from conversation size: a delegation tool call opens
// a sub-agent context, and a large jump in message count means the main
// conversation has resumed.
package subagent

import (
	"strings"

	"github.com/ongoingai/traceview/internal/sse"
	"github.com/ongoingai/traceview/internal/trace"
)

const (
	DefaultDelegationTool      = "Task"
	DefaultMainAgentMarker     = "You are Claude Code"
	DefaultReturnJumpThreshold = 50

	// DetectionMethod is recorded on every tagged entry.
	DetectionMethod = "conversation_flow"

	subagentTypeKey = "subagent_type"
)

// Options tunes the detection heuristics. Zero values use the defaults.
type Options struct {
	// DelegationTool is the tool name whose invocation starts a sub-agent.
	DelegationTool string
	// MainAgentMarker prefixes the main agent's system prompt. Single-message
	// requests without it are treated as infrastructure calls.
	MainAgentMarker string
	// ReturnJumpThreshold is the message-count increase over the previous
	// entry that signals a return to the main conversation.
	ReturnJumpThreshold int
}

func (o Options) withDefaults() Options {
	if o.DelegationTool == "" {
		o.DelegationTool = DefaultDelegationTool
	}
	if o.MainAgentMarker == "" {
		o.MainAgentMarker = DefaultMainAgentMarker
	}
	if o.ReturnJumpThreshold <= 0 {
		o.ReturnJumpThreshold = DefaultReturnJumpThreshold
	}
	return o
}

// Result counts what a detection pass did.
type Result struct {
	Delegations    int
	Infrastructure int
	Tagged         int
	AgentTypes     map[string]int
}

// Annotate runs one forward pass over entries and sets SubagentInfo on every
// entry inside a sub-agent context. The entry that invokes the delegation
// tool is not itself tagged. Detection state is local to the call.
func Annotate(entries []*trace.Entry, opts Options) Result {
	opts = opts.withDefaults()
	result := Result{AgentTypes: map[string]int{}}

	var active string
	prevCount := 0

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		if agentType, ok := DelegatedAgentType(entry, opts.DelegationTool); ok {
			active = agentType
			prevCount = entry.MessageCount()
			result.Delegations++
			continue
		}

		if IsInfrastructure(entry, opts.MainAgentMarker) {
			result.Infrastructure++
			continue
		}

		count := entry.MessageCount()
		if active != "" && prevCount > 0 && count > prevCount+opts.ReturnJumpThreshold {
			active = ""
		}

		if active != "" {
			agentType := active
			method := DetectionMethod
			entry.SubagentInfo = &trace.SubagentInfo{
				IsSubagent:      true,
				AgentType:       &agentType,
				DetectionMethod: &method,
			}
			result.Tagged++
			result.AgentTypes[agentType]++
		}

		prevCount = count
	}

	return result
}

// DelegatedAgentType returns the sub-agent type requested by the first
// delegation tool call in the entry's streamed response. A call whose input is
// an object without a non-empty subagent_type ends the search.
func DelegatedAgentType(entry *trace.Entry, tool string) (string, bool) {
	if entry == nil || entry.Response == nil {
		return "", false
	}
	for _, use := range sse.ToolUses(entry.Response.ParsedEvents) {
		if use.Name != tool || use.Input == nil {
			continue
		}
		agentType, _ := use.Input[subagentTypeKey].(string)
		return agentType, agentType != ""
	}
	return "", false
}

// IsInfrastructure reports whether entry is a single-purpose helper request:
// exactly one message and a system prompt that does not start with marker.
func IsInfrastructure(entry *trace.Entry, marker string) bool {
	if entry == nil {
		return false
	}
	if _, ok := entry.Request.BodyMap(); !ok {
		return false
	}
	if entry.MessageCount() != 1 {
		return false
	}
	system, ok := entry.SystemPrompt()
	if !ok {
		return false
	}
	return !strings.HasPrefix(system, marker)
}
