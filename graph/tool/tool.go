package tool

import (
	"context"

	"github.com/dshills/agentgraph-go/graph/model"
)

// Tool defines the interface for executable tools that LLMs can invoke.
//
// Tools enable agents to interact with external systems and perform actions:
//   - Web searches
//   - API calls
//   - File operations
//   - Code execution
//
// Implementations should:
//   - Respect context cancellation and timeouts
//   - Return structured output as map[string]interface{}
//   - Return descriptive errors; the agent sees them as failed tool results
//
// Example implementation:
//
//	type WeatherTool struct{}
//
//	func (w *WeatherTool) Name() string {
//	    return "get_weather"
//	}
//
//	func (w *WeatherTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
//	    location, _ := input["location"].(string)
//	    return map[string]interface{}{"location": location, "temperature": 72.5}, nil
//	}
type Tool interface {
	// Name returns the unique identifier for this tool.
	//
	// The name must match the ToolSpec name shown to the LLM.
	// Examples: "search_web", "get_weather", "calculate"
	Name() string

	// Call executes the tool with the provided input and returns the result.
	//
	// Input has already been validated against the tool's JSON schema when
	// the call goes through an Environment.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Describer is implemented by tools that publish a full ToolSpec
// (description and JSON schema) for the LLM.
//
// Tools that don't implement it are advertised with their name only.
type Describer interface {
	Describe() model.ToolSpec
}

// SpecOf returns the ToolSpec advertised for t.
func SpecOf(t Tool) model.ToolSpec {
	if d, ok := t.(Describer); ok {
		spec := d.Describe()
		if spec.Name == "" {
			spec.Name = t.Name()
		}
		return spec
	}
	return model.ToolSpec{Name: t.Name()}
}

// FuncTool adapts a plain function and a ToolSpec into a Tool.
//
// Example:
//
//	echo := tool.NewFunc(model.ToolSpec{Name: "echo"}, func(ctx context.Context, in map[string]interface{}) (map[string]interface{}, error) {
//	    return in, nil
//	})
type FuncTool struct {
	spec model.ToolSpec
	fn   func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// NewFunc creates a FuncTool. It panics when fn is nil or spec has no name.
func NewFunc(spec model.ToolSpec, fn func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)) *FuncTool {
	if fn == nil || spec.Name == "" {
		panic("tool: NewFunc requires a name and a function")
	}
	return &FuncTool{spec: spec, fn: fn}
}

// Name implements Tool.
func (f *FuncTool) Name() string { return f.spec.Name }

// Describe implements Describer.
func (f *FuncTool) Describe() model.ToolSpec { return f.spec }

// Call implements Tool.
func (f *FuncTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return f.fn(ctx, input)
}
