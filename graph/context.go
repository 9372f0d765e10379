package graph

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/tool"
)

// Config holds the per-run settings visible to nodes.
type Config struct {
	// MaxIterations bounds the number of node executions in a run, nested
	// subgraphs included. Zero means DefaultMaxIterations.
	MaxIterations int

	// SystemPrompt, when set, is the first message of the conversation.
	SystemPrompt string
}

// AgentContext is the per-run bundle threaded through every node: run id,
// configuration, model session, storage, tool environment and registry,
// pipeline, and iteration counter.
//
// It is owned by one run. Nodes may use it from goroutines they start, but
// it must not outlive the run: once the run ends it is closed and its
// methods return ErrNotActive.
type AgentContext struct {
	runID      string
	agentID    string
	config     Config
	session    *Session
	storage    *Storage
	env        tool.Environment
	registry   *tool.Registry
	pipeline   *pipeline.Pipeline
	iterations *IterationStateManager
	logger     *slog.Logger
	retry      *RetryPolicy
	child      bool
	closed     atomic.Bool
}

// ContextParams are the collaborators of a new AgentContext.
// Agent.Run fills them in; tests may build contexts directly.
type ContextParams struct {
	RunID       string
	AgentID     string
	Config      Config
	Model       model.ChatModel
	Registry    *tool.Registry
	Environment tool.Environment
	Pipeline    *pipeline.Pipeline
	Logger      *slog.Logger
	Retry       *RetryPolicy
}

// NewAgentContext creates an active context. Every tool in the registry is
// visible to the model.
func NewAgentContext(p ContextParams) *AgentContext {
	if p.Config.MaxIterations == 0 {
		p.Config.MaxIterations = DefaultMaxIterations
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	if p.Environment == nil {
		p.Environment = tool.NewEnvironment(p.Registry)
	}
	return &AgentContext{
		runID:      p.RunID,
		agentID:    p.AgentID,
		config:     p.Config,
		session:    newSession(p.Model, p.Registry.Descriptors()),
		storage:    newStorage(),
		env:        p.Environment,
		registry:   p.Registry,
		pipeline:   p.Pipeline,
		iterations: NewIterationStateManager(),
		logger:     p.Logger,
		retry:      p.Retry,
	}
}

// fork derives a child context with its own session and the given tools.
// Everything else is shared with the parent.
func (ac *AgentContext) fork(tools []model.ToolSpec) (*AgentContext, error) {
	if !ac.Active() {
		return nil, ErrNotActive
	}
	sess, err := ac.session.fork(tools)
	if err != nil {
		return nil, err
	}
	return &AgentContext{
		runID:      ac.runID,
		agentID:    ac.agentID,
		config:     ac.config,
		session:    sess,
		storage:    ac.storage,
		env:        ac.env,
		registry:   ac.registry,
		pipeline:   ac.pipeline,
		iterations: ac.iterations,
		logger:     ac.logger,
		retry:      ac.retry,
		child:      true,
	}, nil
}

// RunID returns the run's unique id.
func (ac *AgentContext) RunID() string { return ac.runID }

// AgentID returns the id of the agent executing the run.
func (ac *AgentContext) AgentID() string { return ac.agentID }

// Config returns the run configuration.
func (ac *AgentContext) Config() Config { return ac.config }

// Session returns the model session.
func (ac *AgentContext) Session() *Session { return ac.session }

// Storage returns the run's key/value storage.
func (ac *AgentContext) Storage() *Storage { return ac.storage }

// Environment returns the tool environment.
func (ac *AgentContext) Environment() tool.Environment { return ac.env }

// Registry returns the tool registry.
func (ac *AgentContext) Registry() *tool.Registry { return ac.registry }

// Iterations returns the run's iteration counter.
func (ac *AgentContext) Iterations() *IterationStateManager { return ac.iterations }

// Logger returns the run logger.
func (ac *AgentContext) Logger() *slog.Logger { return ac.logger }

// Active reports whether the context can still be used.
func (ac *AgentContext) Active() bool {
	return !ac.closed.Load() && ac.session.Active()
}

// Close invalidates the context. Closing a root context also clears its
// storage; closing a child only retires the child's session.
func (ac *AgentContext) Close() {
	ac.close()
}

func (ac *AgentContext) close() {
	if ac.closed.Swap(true) {
		return
	}
	ac.session.close()
	if !ac.child {
		ac.storage.close()
	}
}

// RequestModel sends the conversation and the visible tools to the model,
// appends the response to the conversation and returns it.
//
// BeforeLLMCall and AfterLLMCall are dispatched around the request.
func (ac *AgentContext) RequestModel(ctx context.Context) (model.ChatOut, error) {
	tools, err := ac.session.Tools()
	if err != nil {
		return model.ChatOut{}, err
	}
	return ac.requestModel(ctx, tools, true)
}

// RequestModelWithoutTools is RequestModel with every tool hidden for this
// one request.
func (ac *AgentContext) RequestModelWithoutTools(ctx context.Context) (model.ChatOut, error) {
	return ac.requestModel(ctx, nil, true)
}

func (ac *AgentContext) requestModel(ctx context.Context, tools []model.ToolSpec, appendResponse bool) (model.ChatOut, error) {
	if !ac.Active() {
		return model.ChatOut{}, ErrNotActive
	}
	msgs, err := ac.session.History()
	if err != nil {
		return model.ChatOut{}, err
	}
	chat := ac.session.Model()

	ev := &pipeline.LLMCallEvent{
		RunID:    ac.runID,
		NodeID:   NodeName(ctx),
		Model:    model.NameOf(chat),
		Messages: msgs,
		Tools:    tools,
	}
	if err := ac.pipeline.OnBeforeLLMCall(ctx, ev); err != nil {
		return model.ChatOut{}, err
	}

	start := time.Now()
	var out model.ChatOut
	callErr := ac.retry.do(ctx, func() error {
		var err error
		out, err = chat.Chat(ctx, msgs, tools)
		return err
	})

	after := *ev
	after.Err, after.Duration = callErr, time.Since(start)
	if callErr == nil {
		after.Response = &out
	}
	if err := ac.pipeline.OnAfterLLMCall(ctx, &after); err != nil && callErr == nil {
		return model.ChatOut{}, err
	}
	if callErr != nil {
		return model.ChatOut{}, callErr
	}

	if appendResponse {
		if err := ac.session.Append(model.AssistantMessage(out)); err != nil {
			return model.ChatOut{}, err
		}
	}
	return out, nil
}

// ExecuteTools runs calls concurrently through the tool environment and
// returns their results in call order.
//
// A failing call yields a failed ToolResult and never cancels its siblings.
// Calls to tools not visible in the session, and calls whose arguments the
// provider could not decode, fail validation without reaching the
// environment. Only pipeline handler errors are returned.
// Handlers for tool events must therefore be safe for concurrent use.
func (ac *AgentContext) ExecuteTools(ctx context.Context, calls []model.ToolCall) ([]model.ToolResult, error) {
	if !ac.Active() {
		return nil, ErrNotActive
	}
	results := make([]model.ToolResult, len(calls))
	nodeID := NodeName(ctx)

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			res, err := ac.executeTool(ctx, nodeID, call)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (ac *AgentContext) executeTool(ctx context.Context, nodeID string, call model.ToolCall) (model.ToolResult, error) {
	ev := &pipeline.ToolCallEvent{RunID: ac.runID, NodeID: nodeID, Call: call}
	if err := ac.pipeline.OnToolCall(ctx, ev); err != nil {
		return model.ToolResult{}, err
	}

	start := time.Now()
	visible, err := ac.session.HasTool(call.Name)
	if err != nil {
		return model.ToolResult{}, err
	}
	var res model.ToolResult
	switch {
	case !visible:
		res = invalidResult(call, "tool "+call.Name+" is not available")
	case call.InvalidArgs != "":
		res = invalidResult(call, call.InvalidArgs)
	default:
		res = ac.env.ExecuteTool(ctx, call)
	}

	done := *ev
	done.Result, done.Duration = &res, time.Since(start)
	switch {
	case res.Failed && res.Invalid:
		err = ac.pipeline.OnToolValidationError(ctx, &done)
	case res.Failed:
		err = ac.pipeline.OnToolCallFailure(ctx, &done)
	default:
		err = ac.pipeline.OnToolCallResult(ctx, &done)
	}
	return res, err
}

func invalidResult(call model.ToolCall, msg string) model.ToolResult {
	return model.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Failed:     true,
		Invalid:    true,
		Error:      msg,
	}
}
