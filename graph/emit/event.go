// Package emit delivers observability events produced while an agent runs.
//
// Events are plain values. The tracing feature converts pipeline callbacks
// into events and hands them to an Emitter, which may log them, buffer them
// for inspection, or export them as OpenTelemetry spans.
package emit

import "time"

// Event kinds. They match the pipeline category names so a recorded event
// can be traced back to the callback that produced it.
const (
	KindAgentStarting       = "agent_starting"
	KindAgentFinished       = "agent_finished"
	KindAgentRunError       = "agent_run_error"
	KindStrategyStarting    = "strategy_starting"
	KindStrategyFinished    = "strategy_finished"
	KindBeforeNode          = "before_node"
	KindAfterNode           = "after_node"
	KindBeforeLLMCall       = "before_llm_call"
	KindAfterLLMCall        = "after_llm_call"
	KindToolCall            = "tool_call"
	KindToolValidationError = "tool_validation_error"
	KindToolCallFailure     = "tool_call_failure"
	KindToolCallResult      = "tool_call_result"
)

// Well-known Meta keys.
const (
	MetaDuration  = "duration_ms"
	MetaError     = "error"
	MetaModel     = "model"
	MetaTokensIn  = "tokens_in"
	MetaTokensOut = "tokens_out"
	MetaTool      = "tool"
	MetaSubgraph  = "subgraph"
	MetaAgentID   = "agent_id"
)

// Event is one observation of an agent run.
type Event struct {
	// RunID identifies the Agent.Run call that produced the event.
	RunID string

	// Iteration is the subgraph iteration count when the event was
	// produced. Zero for agent-level and strategy-level events.
	Iteration int

	// NodeID names the node the event belongs to, if any.
	NodeID string

	// Kind is one of the Kind constants.
	Kind string

	// Time is when the event was observed. Emitters fill it in when zero.
	Time time.Time

	// Meta carries kind-specific data keyed by the Meta constants.
	Meta map[string]interface{}
}

// Err returns the error text recorded in Meta, or "".
func (e Event) Err() string {
	s, _ := e.Meta[MetaError].(string)
	return s
}

// Duration returns the duration recorded in Meta, or zero.
func (e Event) Duration() time.Duration {
	switch v := e.Meta[MetaDuration].(type) {
	case int64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	}
	return 0
}

func (e Event) stamped() Event {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return e
}
