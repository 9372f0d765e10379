// Package pipeline provides the feature interception registry for agent runs.
//
// Features (tracing, metrics, persistence, test doubles) register handlers for
// lifecycle categories. The agent dispatches typed events to those handlers at
// fixed points of a run: agent start/finish/error, strategy start/finish,
// before/after each node, before/after each model call, and each tool call
// phase. Features may also wrap or replace the run's tool environment.
//
// Registration rules:
//   - A feature holds at most one handler per category; registering again
//     replaces the previous handler in place, keeping its dispatch position.
//   - Dispatch order for a category is the order in which features first
//     registered for it.
//   - Handlers run sequentially; the first error aborts the remaining
//     dispatch and is returned as a *HandlerError, failing the run.
//
// A Pipeline is configured before any run starts. The first run seals it; any
// registration afterwards panics with ErrPipelineSealed. Once sealed, the
// registry is read-only and may be shared by concurrent runs without locking.
//
// Example:
//
//	p := pipeline.New()
//	p.InterceptBeforeNode("logger", func(ctx context.Context, ev *pipeline.NodeEvent) error {
//	    log.Printf("entering %s", ev.NodeID)
//	    return nil
//	})
//	agent, _ := graph.NewAgent(strategy, chat, graph.WithPipeline(p))
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dshills/agentgraph-go/graph/tool"
)

// ErrPipelineSealed is the panic value for registrations after the first run.
var ErrPipelineSealed = errors.New("pipeline: registration after first run")

// Category identifies a lifecycle point.
type Category int

// Lifecycle categories in the order they occur during a run.
const (
	AgentStarting Category = iota
	AgentFinished
	AgentRunError
	StrategyStarting
	StrategyFinished
	BeforeNode
	AfterNode
	BeforeLLMCall
	AfterLLMCall
	ToolCall
	ToolValidationError
	ToolCallFailure
	ToolCallResult
	numCategories
)

var categoryNames = [...]string{
	AgentStarting:       "agent_starting",
	AgentFinished:       "agent_finished",
	AgentRunError:       "agent_run_error",
	StrategyStarting:    "strategy_starting",
	StrategyFinished:    "strategy_finished",
	BeforeNode:          "before_node",
	AfterNode:           "after_node",
	BeforeLLMCall:       "before_llm_call",
	AfterLLMCall:        "after_llm_call",
	ToolCall:            "tool_call",
	ToolValidationError: "tool_validation_error",
	ToolCallFailure:     "tool_call_failure",
	ToolCallResult:      "tool_call_result",
}

// String returns the snake_case category name.
func (c Category) String() string {
	if c >= 0 && c < numCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Handler handles one event of type E.
type Handler[E any] func(ctx context.Context, ev *E) error

// EnvironmentTransformer wraps or replaces a run's tool environment.
// Transformers compose in registration order.
type EnvironmentTransformer func(ctx context.Context, info EnvironmentInfo, env tool.Environment) tool.Environment

// Feature is a named bundle of handlers.
//
// Install registers the feature's handlers using its Key.
type Feature interface {
	Key() string
	Install(p *Pipeline) error
}

// HandlerError reports a handler failure. It aborts the run.
type HandlerError struct {
	Feature  string
	Category Category
	Cause    error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("pipeline: feature %q failed handling %s: %v", e.Feature, e.Category, e.Cause)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Cause
}

type entry struct {
	key     string
	handler any
}

type transformerEntry struct {
	key string
	fn  EnvironmentTransformer
}

// Pipeline is the feature interception registry.
type Pipeline struct {
	mu           sync.Mutex
	sealed       atomic.Bool
	features     []string
	handlers     [numCategories][]entry
	transformers []transformerEntry
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Install adds a feature. Installing a feature with the same key again
// re-runs its registrations, replacing its handlers in place.
func (p *Pipeline) Install(f Feature) error {
	if f == nil || f.Key() == "" {
		return errors.New("pipeline: feature must have a key")
	}
	p.checkOpen()
	if err := f.Install(p); err != nil {
		return fmt.Errorf("pipeline: install %q: %w", f.Key(), err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.features {
		if k == f.Key() {
			return nil
		}
	}
	p.features = append(p.features, f.Key())
	return nil
}

// Features returns the keys of installed features in install order.
func (p *Pipeline) Features() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.features...)
}

// Seal makes the registry read-only. It is called by the first run and is idempotent.
func (p *Pipeline) Seal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sealed.Store(true)
}

// Sealed reports whether the pipeline accepts no more registrations.
func (p *Pipeline) Sealed() bool {
	return p.sealed.Load()
}

// Handlers returns how many handlers are registered for c.
func (p *Pipeline) Handlers(c Category) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers[c])
}

func (p *Pipeline) checkOpen() {
	if p.sealed.Load() {
		panic(ErrPipelineSealed)
	}
}

func register[E any](p *Pipeline, c Category, key string, h Handler[E]) {
	if h == nil {
		panic(fmt.Sprintf("pipeline: nil %s handler for feature %q", c, key))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed.Load() {
		panic(ErrPipelineSealed)
	}
	for i := range p.handlers[c] {
		if p.handlers[c][i].key == key {
			p.handlers[c][i].handler = h
			return
		}
	}
	p.handlers[c] = append(p.handlers[c], entry{key: key, handler: h})
}

// dispatch runs handlers for c in order. A nil pipeline dispatches nothing.
//
// Callers must only dispatch on a sealed pipeline: entries are read without
// holding mu.
func dispatch[E any](ctx context.Context, p *Pipeline, c Category, ev *E) error {
	if p == nil {
		return nil
	}
	for _, e := range p.handlers[c] {
		h, ok := e.handler.(Handler[E])
		if !ok {
			panic(fmt.Sprintf("pipeline: handler for %s has type %T", c, e.handler))
		}
		if err := h(ctx, ev); err != nil {
			return &HandlerError{Feature: e.key, Category: c, Cause: err}
		}
	}
	return nil
}

// InterceptEnvironmentCreated registers a transformer applied to every run's
// tool environment. Registering again for key replaces the transformer in place.
func (p *Pipeline) InterceptEnvironmentCreated(key string, fn EnvironmentTransformer) {
	if fn == nil {
		panic(fmt.Sprintf("pipeline: nil environment transformer for feature %q", key))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed.Load() {
		panic(ErrPipelineSealed)
	}
	for i := range p.transformers {
		if p.transformers[i].key == key {
			p.transformers[i].fn = fn
			return
		}
	}
	p.transformers = append(p.transformers, transformerEntry{key: key, fn: fn})
}

// TransformEnvironment threads env through every transformer in
// registration order; each receives the previous one's result.
func (p *Pipeline) TransformEnvironment(ctx context.Context, info EnvironmentInfo, env tool.Environment) tool.Environment {
	if p == nil {
		return env
	}
	for _, t := range p.transformers {
		env = t.fn(ctx, info, env)
	}
	return env
}
