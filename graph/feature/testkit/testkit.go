// Package testkit is a pipeline feature for testing agents without real
// tools: it replaces the tool environment of every run with canned results
// and records what the agent did.
//
//	kit := testkit.New().
//	    MockResult("weather", map[string]interface{}{"sky": "clear"}).
//	    MockFailure("search", "rate limited")
//	p := pipeline.New()
//	_ = p.Install(kit)
//	agent, _ := graph.NewAgent(strategy, chat, graph.WithPipeline(p), graph.WithTools(weather, search))
//	agent.Run(ctx, "...")
//	kit.Calls(kit.Runs()[0]) // tool calls in the order they reached the environment
package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/tool"
)

// Key is the feature key testkit registers under.
const Key = "testkit"

// Responder computes the result of a mocked call.
type Responder func(call model.ToolCall) model.ToolResult

// Kit is the testing feature.
type Kit struct {
	mu          sync.Mutex
	responders  map[string]Responder
	passthrough bool
	runs        map[string]*record
}

type record struct {
	calls []model.ToolCall
	nodes []string
}

// New returns a kit where calls to unmocked tools fail.
func New() *Kit {
	return &Kit{
		responders: make(map[string]Responder),
		runs:       make(map[string]*record),
	}
}

// Passthrough sends calls to unmocked tools to the real environment.
func (k *Kit) Passthrough() *Kit {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.passthrough = true
	return k
}

// Mock installs a responder for name.
func (k *Kit) Mock(name string, r Responder) *Kit {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.responders[name] = r
	return k
}

// MockResult makes every call to name succeed with output.
func (k *Kit) MockResult(name string, output map[string]interface{}) *Kit {
	return k.Mock(name, func(call model.ToolCall) model.ToolResult {
		return model.ToolResult{ToolCallID: call.ID, Name: call.Name, Output: output}
	})
}

// MockFailure makes every call to name fail with msg.
func (k *Kit) MockFailure(name, msg string) *Kit {
	return k.Mock(name, func(call model.ToolCall) model.ToolResult {
		return model.ToolResult{ToolCallID: call.ID, Name: call.Name, Failed: true, Error: msg}
	})
}

// Key implements pipeline.Feature.
func (k *Kit) Key() string { return Key }

// Install implements pipeline.Feature.
func (k *Kit) Install(p *pipeline.Pipeline) error {
	p.InterceptEnvironmentCreated(Key, func(_ context.Context, info pipeline.EnvironmentInfo, env tool.Environment) tool.Environment {
		k.mu.Lock()
		k.runs[info.RunID] = &record{}
		k.mu.Unlock()
		return tool.EnvironmentFunc(func(ctx context.Context, call model.ToolCall) model.ToolResult {
			return k.execute(ctx, info.RunID, env, call)
		})
	})
	p.InterceptBeforeNode(Key, func(_ context.Context, ev *pipeline.NodeEvent) error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if r := k.runs[ev.RunID]; r != nil {
			r.nodes = append(r.nodes, ev.NodeID)
		}
		return nil
	})
	return nil
}

func (k *Kit) execute(ctx context.Context, runID string, env tool.Environment, call model.ToolCall) model.ToolResult {
	k.mu.Lock()
	if r := k.runs[runID]; r != nil {
		r.calls = append(r.calls, call)
	}
	respond, mocked := k.responders[call.Name]
	passthrough := k.passthrough
	k.mu.Unlock()

	switch {
	case mocked:
		res := respond(call)
		res.ToolCallID, res.Name = call.ID, call.Name
		return res
	case passthrough && env != nil:
		return env.ExecuteTool(ctx, call)
	default:
		return model.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Failed:     true,
			Error:      fmt.Sprintf("testkit: no mock for tool %q", call.Name),
		}
	}
}

// Runs returns the IDs of every run the kit has seen, sorted.
func (k *Kit) Runs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]string, 0, len(k.runs))
	for id := range k.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Calls returns the tool calls of runID in the order they were executed.
// Calls from one model response run concurrently, so their relative order
// is not deterministic.
func (k *Kit) Calls(runID string) []model.ToolCall {
	k.mu.Lock()
	defer k.mu.Unlock()
	r := k.runs[runID]
	if r == nil {
		return nil
	}
	return append([]model.ToolCall(nil), r.calls...)
}

// Nodes returns the nodes runID entered, in order.
func (k *Kit) Nodes(runID string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	r := k.runs[runID]
	if r == nil {
		return nil
	}
	return append([]string(nil), r.nodes...)
}

// Reset forgets every recorded run. Mocks are kept.
func (k *Kit) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.runs = make(map[string]*record)
}
