package pipeline

import "context"

// InterceptAgentStarting registers h for feature key, called before the strategy of a run starts.
func (p *Pipeline) InterceptAgentStarting(key string, h Handler[AgentStartingEvent]) {
	register(p, AgentStarting, key, h)
}

// InterceptAgentFinished registers h for feature key, called after a run completes successfully.
func (p *Pipeline) InterceptAgentFinished(key string, h Handler[AgentFinishedEvent]) {
	register(p, AgentFinished, key, h)
}

// InterceptAgentRunError registers h for feature key, called when a run fails.
func (p *Pipeline) InterceptAgentRunError(key string, h Handler[AgentRunErrorEvent]) {
	register(p, AgentRunError, key, h)
}

// InterceptStrategyStarting registers h for feature key, called when the top-level subgraph is entered.
func (p *Pipeline) InterceptStrategyStarting(key string, h Handler[StrategyStartingEvent]) {
	register(p, StrategyStarting, key, h)
}

// InterceptStrategyFinished registers h for feature key, called when the top-level subgraph finishes.
func (p *Pipeline) InterceptStrategyFinished(key string, h Handler[StrategyFinishedEvent]) {
	register(p, StrategyFinished, key, h)
}

// InterceptBeforeNode registers h for feature key, called before each node executes.
func (p *Pipeline) InterceptBeforeNode(key string, h Handler[NodeEvent]) {
	register(p, BeforeNode, key, h)
}

// InterceptAfterNode registers h for feature key, called after each node executes, successfully or not.
func (p *Pipeline) InterceptAfterNode(key string, h Handler[NodeEvent]) {
	register(p, AfterNode, key, h)
}

// InterceptBeforeLLMCall registers h for feature key, called before each model request.
func (p *Pipeline) InterceptBeforeLLMCall(key string, h Handler[LLMCallEvent]) {
	register(p, BeforeLLMCall, key, h)
}

// InterceptAfterLLMCall registers h for feature key, called after each model request.
func (p *Pipeline) InterceptAfterLLMCall(key string, h Handler[LLMCallEvent]) {
	register(p, AfterLLMCall, key, h)
}

// InterceptToolCall registers h for feature key, called before each tool call is executed.
func (p *Pipeline) InterceptToolCall(key string, h Handler[ToolCallEvent]) {
	register(p, ToolCall, key, h)
}

// InterceptToolValidationError registers h for feature key, called when a tool call is rejected before execution.
func (p *Pipeline) InterceptToolValidationError(key string, h Handler[ToolCallEvent]) {
	register(p, ToolValidationError, key, h)
}

// InterceptToolCallFailure registers h for feature key, called when a tool returns an error.
func (p *Pipeline) InterceptToolCallFailure(key string, h Handler[ToolCallEvent]) {
	register(p, ToolCallFailure, key, h)
}

// InterceptToolCallResult registers h for feature key, called when a tool call succeeds.
func (p *Pipeline) InterceptToolCallResult(key string, h Handler[ToolCallEvent]) {
	register(p, ToolCallResult, key, h)
}

// OnAgentStarting dispatches ev to the AgentStarting handlers.
func (p *Pipeline) OnAgentStarting(ctx context.Context, ev *AgentStartingEvent) error {
	return dispatch(ctx, p, AgentStarting, ev)
}

// OnAgentFinished dispatches ev to the AgentFinished handlers.
func (p *Pipeline) OnAgentFinished(ctx context.Context, ev *AgentFinishedEvent) error {
	return dispatch(ctx, p, AgentFinished, ev)
}

// OnAgentRunError dispatches ev to the AgentRunError handlers.
func (p *Pipeline) OnAgentRunError(ctx context.Context, ev *AgentRunErrorEvent) error {
	return dispatch(ctx, p, AgentRunError, ev)
}

// OnStrategyStarting dispatches ev to the StrategyStarting handlers.
func (p *Pipeline) OnStrategyStarting(ctx context.Context, ev *StrategyStartingEvent) error {
	return dispatch(ctx, p, StrategyStarting, ev)
}

// OnStrategyFinished dispatches ev to the StrategyFinished handlers.
func (p *Pipeline) OnStrategyFinished(ctx context.Context, ev *StrategyFinishedEvent) error {
	return dispatch(ctx, p, StrategyFinished, ev)
}

// OnBeforeNode dispatches ev to the BeforeNode handlers.
func (p *Pipeline) OnBeforeNode(ctx context.Context, ev *NodeEvent) error {
	return dispatch(ctx, p, BeforeNode, ev)
}

// OnAfterNode dispatches ev to the AfterNode handlers.
func (p *Pipeline) OnAfterNode(ctx context.Context, ev *NodeEvent) error {
	return dispatch(ctx, p, AfterNode, ev)
}

// OnBeforeLLMCall dispatches ev to the BeforeLLMCall handlers.
func (p *Pipeline) OnBeforeLLMCall(ctx context.Context, ev *LLMCallEvent) error {
	return dispatch(ctx, p, BeforeLLMCall, ev)
}

// OnAfterLLMCall dispatches ev to the AfterLLMCall handlers.
func (p *Pipeline) OnAfterLLMCall(ctx context.Context, ev *LLMCallEvent) error {
	return dispatch(ctx, p, AfterLLMCall, ev)
}

// OnToolCall dispatches ev to the ToolCall handlers.
func (p *Pipeline) OnToolCall(ctx context.Context, ev *ToolCallEvent) error {
	return dispatch(ctx, p, ToolCall, ev)
}

// OnToolValidationError dispatches ev to the ToolValidationError handlers.
func (p *Pipeline) OnToolValidationError(ctx context.Context, ev *ToolCallEvent) error {
	return dispatch(ctx, p, ToolValidationError, ev)
}

// OnToolCallFailure dispatches ev to the ToolCallFailure handlers.
func (p *Pipeline) OnToolCallFailure(ctx context.Context, ev *ToolCallEvent) error {
	return dispatch(ctx, p, ToolCallFailure, ev)
}

// OnToolCallResult dispatches ev to the ToolCallResult handlers.
func (p *Pipeline) OnToolCallResult(ctx context.Context, ev *ToolCallEvent) error {
	return dispatch(ctx, p, ToolCallResult, ev)
}
