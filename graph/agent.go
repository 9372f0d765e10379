package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/tool"
)

// Agent runs a strategy subgraph against a chat model.
//
// An Agent is immutable after construction and safe for concurrent use:
// every Run gets its own AgentContext, while the pipeline is shared.
//
// Example:
//
//	b := graph.NewSubgraph[string, string]("react")
//	llm := graph.AddLLMRequestNode(b, "llm")
//	tools := graph.AddExecuteToolsNode(b, "tools")
//	send := graph.AddSendToolResultsNode(b, "send")
//	_ = graph.Connect(b.Start(), llm)
//	_ = graph.OnToolCalls(llm, tools)
//	_ = graph.OnAssistantMessage(llm, b.Finish())
//	_ = graph.Connect(tools, send)
//	_ = graph.OnToolCalls(send, tools)
//	_ = graph.OnAssistantMessage(send, b.Finish())
//	strategy, _ := b.Build()
//
//	agent, _ := graph.NewAgent(strategy, chat, graph.WithTools(search))
//	answer, err := agent.Run(ctx, "What's new in Go 1.24?")
type Agent[I, O any] struct {
	strategy *Subgraph[I, O]
	chat     model.ChatModel
	opts     Options
	registry *tool.Registry
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	retry    *RetryPolicy
}

// NewAgent creates an agent. A nil pipeline option means a private, empty pipeline.
func NewAgent[I, O any](strategy *Subgraph[I, O], chat model.ChatModel, options ...Option) (*Agent[I, O], error) {
	if strategy == nil {
		return nil, errors.New("strategy cannot be nil")
	}
	if chat == nil {
		return nil, errors.New("chat model cannot be nil")
	}

	cfg := &agentConfig{}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	reg := cfg.registry
	if reg == nil {
		reg, _ = tool.NewRegistry()
	}
	for _, t := range cfg.tools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	if cfg.pipeline == nil {
		cfg.pipeline = pipeline.New()
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.opts.AgentID == "" {
		cfg.opts.AgentID = strategy.Name()
	}
	if cfg.opts.MaxIterations == 0 {
		cfg.opts.MaxIterations = DefaultMaxIterations
	}

	return &Agent[I, O]{
		strategy: strategy,
		chat:     chat,
		opts:     cfg.opts,
		registry: reg,
		pipeline: cfg.pipeline,
		logger:   cfg.logger,
		retry:    cfg.retry,
	}, nil
}

// ID returns the agent id.
func (a *Agent[I, O]) ID() string { return a.opts.AgentID }

// Registry returns the agent's tool registry.
func (a *Agent[I, O]) Registry() *tool.Registry { return a.registry }

// Run executes the strategy once.
//
// Lifecycle:
//  1. The pipeline is sealed and a fresh AgentContext is created.
//  2. The tool environment is built and passed through the pipeline's transformers.
//  3. AgentStarting and StrategyStarting are dispatched.
//  4. The strategy runs to its finish node.
//  5. StrategyFinished and AgentFinished are dispatched, or AgentRunError on failure.
//  6. The context is closed.
//
// Errors are *ExecutionError, *NodeError, *pipeline.HandlerError,
// ErrNotActive, or the context's error.
func (a *Agent[I, O]) Run(ctx context.Context, input I) (O, error) {
	var zero O
	a.pipeline.Seal()

	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID, "agent_id", a.opts.AgentID)
	info := pipeline.EnvironmentInfo{RunID: runID, AgentID: a.opts.AgentID}
	env := a.pipeline.TransformEnvironment(ctx, info, tool.NewEnvironment(a.registry))

	ac := NewAgentContext(ContextParams{
		RunID:       runID,
		AgentID:     a.opts.AgentID,
		Config:      Config{MaxIterations: a.opts.MaxIterations, SystemPrompt: a.opts.SystemPrompt},
		Model:       a.chat,
		Registry:    a.registry,
		Environment: env,
		Pipeline:    a.pipeline,
		Logger:      logger,
		Retry:       a.retry,
	})
	defer ac.Close()

	if a.opts.SystemPrompt != "" {
		if err := ac.session.Append(model.SystemMessage(a.opts.SystemPrompt)); err != nil {
			return zero, err
		}
	}

	start := time.Now()
	logger.Info("agent run starting", "strategy", a.strategy.Name())

	out, err := a.run(ctx, ac, input, start)
	if err != nil {
		logger.Error("agent run failed", "error", err, "iterations", ac.iterations.Current())
		if herr := a.pipeline.OnAgentRunError(ctx, &pipeline.AgentRunErrorEvent{
			RunID:    runID,
			AgentID:  a.opts.AgentID,
			Err:      err,
			Duration: time.Since(start),
		}); herr != nil {
			logger.Warn("agent run error handler failed", "error", herr)
		}
		return zero, err
	}

	logger.Info("agent run finished", "iterations", ac.iterations.Current(), "duration", time.Since(start))
	return out, nil
}

func (a *Agent[I, O]) run(ctx context.Context, ac *AgentContext, input I, start time.Time) (O, error) {
	var zero O
	if err := a.pipeline.OnAgentStarting(ctx, &pipeline.AgentStartingEvent{
		RunID:   ac.runID,
		AgentID: a.opts.AgentID,
		Input:   input,
	}); err != nil {
		return zero, err
	}
	if err := a.pipeline.OnStrategyStarting(ctx, &pipeline.StrategyStartingEvent{
		RunID:    ac.runID,
		Strategy: a.strategy.Name(),
	}); err != nil {
		return zero, err
	}

	strategyStart := time.Now()
	out, err := a.strategy.Run(ctx, ac, input)
	if err != nil {
		return zero, err
	}

	if err := a.pipeline.OnStrategyFinished(ctx, &pipeline.StrategyFinishedEvent{
		RunID:    ac.runID,
		Strategy: a.strategy.Name(),
		Output:   out,
		Duration: time.Since(strategyStart),
	}); err != nil {
		return zero, err
	}
	if err := a.pipeline.OnAgentFinished(ctx, &pipeline.AgentFinishedEvent{
		RunID:    ac.runID,
		AgentID:  a.opts.AgentID,
		Output:   out,
		Duration: time.Since(start),
	}); err != nil {
		return zero, err
	}
	return out, nil
}
