package graph

import (
	"errors"
	"log/slog"

	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/tool"
)

// DefaultMaxIterations is the iteration ceiling used when none is configured.
const DefaultMaxIterations = 50

// Options holds the agent settings that can be expressed as plain values.
//
// It can be passed to NewAgent directly or built up with Option functions:
//
//	agent, err := graph.NewAgent(strategy, chat,
//	    graph.WithMaxIterations(30),
//	    graph.WithSystemPrompt("You are a careful assistant."),
//	)
type Options struct {
	// MaxIterations bounds node executions per run. Zero means DefaultMaxIterations.
	MaxIterations int

	// SystemPrompt is placed at the start of every run's conversation.
	SystemPrompt string

	// AgentID labels events and logs. Defaults to the strategy name.
	AgentID string
}

// Option is a functional option for configuring an Agent.
type Option func(*agentConfig) error

type agentConfig struct {
	opts     Options
	tools    []tool.Tool
	registry *tool.Registry
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	retry    *RetryPolicy
}

// WithMaxIterations limits the node executions of each run.
//
// Agent loops (llm → tools → llm → ...) are expected; the ceiling stops a
// run whose exit condition never fires. When exceeded, Run returns an
// *ExecutionError with code MAX_ITERATIONS_EXCEEDED.
func WithMaxIterations(n int) Option {
	return func(cfg *agentConfig) error {
		if n < 0 {
			return errors.New("max iterations must be >= 0")
		}
		cfg.opts.MaxIterations = n
		return nil
	}
}

// WithSystemPrompt sets the system message of every run.
func WithSystemPrompt(prompt string) Option {
	return func(cfg *agentConfig) error {
		cfg.opts.SystemPrompt = prompt
		return nil
	}
}

// WithAgentID sets the id used in events and logs.
func WithAgentID(id string) Option {
	return func(cfg *agentConfig) error {
		cfg.opts.AgentID = id
		return nil
	}
}

// WithTools registers tools with the agent's registry.
// It can be combined with WithRegistry; the tools are added to that registry.
func WithTools(tools ...tool.Tool) Option {
	return func(cfg *agentConfig) error {
		cfg.tools = append(cfg.tools, tools...)
		return nil
	}
}

// WithRegistry uses an existing registry.
func WithRegistry(reg *tool.Registry) Option {
	return func(cfg *agentConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithPipeline installs the feature pipeline. A pipeline may be shared by
// several agents; it is sealed by the first run of any of them.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(cfg *agentConfig) error {
		if p == nil {
			return errors.New("pipeline cannot be nil")
		}
		cfg.pipeline = p
		return nil
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *agentConfig) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = l
		return nil
	}
}

// WithModelRetry retries failed model requests according to rp.
func WithModelRetry(rp RetryPolicy) Option {
	return func(cfg *agentConfig) error {
		if err := rp.Validate(); err != nil {
			return err
		}
		cfg.retry = &rp
		return nil
	}
}
