package pipeline

import (
	"time"

	"github.com/dshills/agentgraph-go/graph/model"
)

// AgentStartingEvent is dispatched once per run before the strategy starts.
type AgentStartingEvent struct {
	RunID   string
	AgentID string
	Input   any
}

// AgentFinishedEvent is dispatched after a successful run.
type AgentFinishedEvent struct {
	RunID    string
	AgentID  string
	Output   any
	Duration time.Duration
}

// AgentRunErrorEvent is dispatched when a run fails, whatever the cause.
type AgentRunErrorEvent struct {
	RunID    string
	AgentID  string
	Err      error
	Duration time.Duration
}

// StrategyStartingEvent is dispatched when the top-level subgraph is entered.
type StrategyStartingEvent struct {
	RunID    string
	Strategy string
}

// StrategyFinishedEvent is dispatched when the top-level subgraph reaches its finish node.
type StrategyFinishedEvent struct {
	RunID    string
	Strategy string
	Output   any
	Duration time.Duration
}

// NodeEvent is dispatched around every node execution.
//
// Output, Err and Duration are only set for AfterNode.
type NodeEvent struct {
	RunID     string
	Subgraph  string
	NodeID    string
	Iteration int
	Input     any
	Output    any
	Err       error
	Duration  time.Duration
}

// LLMCallEvent is dispatched around every model request.
//
// Response, Err and Duration are only set for AfterLLMCall.
type LLMCallEvent struct {
	RunID    string
	NodeID   string
	Model    string
	Messages []model.Message
	Tools    []model.ToolSpec
	Response *model.ChatOut
	Err      error
	Duration time.Duration
}

// ToolCallEvent is dispatched for each tool call phase.
//
// Result and Duration are unset for the ToolCall phase.
type ToolCallEvent struct {
	RunID    string
	NodeID   string
	Call     model.ToolCall
	Result   *model.ToolResult
	Duration time.Duration
}

// EnvironmentInfo identifies the run whose tool environment is being built.
type EnvironmentInfo struct {
	RunID   string
	AgentID string
}
