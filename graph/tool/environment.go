package tool

import (
	"context"

	"github.com/dshills/agentgraph-go/graph/model"
)

// Environment executes tool calls requested by the model.
//
// Failures are returned as data: ExecuteTool never returns an error and a
// failed call yields a ToolResult with Failed set. Environments must be safe
// for concurrent use since one model response may carry several calls.
//
// Features can wrap or replace the environment of a run, for example to
// substitute canned tool results in tests.
type Environment interface {
	ExecuteTool(ctx context.Context, call model.ToolCall) model.ToolResult
}

// EnvironmentFunc adapts a function into an Environment.
type EnvironmentFunc func(ctx context.Context, call model.ToolCall) model.ToolResult

// ExecuteTool implements Environment.
func (f EnvironmentFunc) ExecuteTool(ctx context.Context, call model.ToolCall) model.ToolResult {
	return f(ctx, call)
}

// RegistryEnvironment executes calls against the tools of a Registry.
type RegistryEnvironment struct {
	registry *Registry
}

// NewEnvironment returns an Environment backed by reg.
func NewEnvironment(reg *Registry) *RegistryEnvironment {
	return &RegistryEnvironment{registry: reg}
}

// ExecuteTool looks the tool up, validates the arguments against its schema,
// and calls it.
//
// Unknown tools, undecodable arguments and schema violations produce results
// with Invalid set; errors returned by the tool produce results with only
// Failed set.
func (e *RegistryEnvironment) ExecuteTool(ctx context.Context, call model.ToolCall) model.ToolResult {
	res := model.ToolResult{ToolCallID: call.ID, Name: call.Name}

	t, ok := e.registry.Lookup(call.Name)
	if !ok {
		res.Failed, res.Invalid = true, true
		res.Error = "unknown tool " + call.Name
		return res
	}
	if call.InvalidArgs != "" {
		res.Failed, res.Invalid = true, true
		res.Error = call.InvalidArgs
		return res
	}
	schema, _ := e.registry.Schema(call.Name)
	if err := schema.Validate(call.Input); err != nil {
		res.Failed, res.Invalid = true, true
		res.Error = err.Error()
		return res
	}

	out, err := t.Call(ctx, call.Input)
	if err != nil {
		res.Failed = true
		res.Error = err.Error()
		return res
	}
	res.Output = out
	return res
}
