package tool

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/agentgraph-go/graph/model"
)

// MockTool is a scriptable Tool for tests.
//
// Outputs come from Respond when set, otherwise from Responses in order
// with the last one repeating. Err short-circuits both. Every call is
// recorded, including failed ones, and the mock is safe for the parallel
// calls ExecuteTools makes.
//
//	search := &tool.MockTool{
//	    ToolName:  "search",
//	    Spec:      model.ToolSpec{Schema: map[string]interface{}{"required": []string{"q"}}},
//	    Responses: []map[string]interface{}{{"hits": 3}},
//	}
type MockTool struct {
	ToolName string

	// Spec is the descriptor advertised to the model; its Name is ignored.
	// Required arguments in Spec.Schema are enforced by the environment.
	Spec model.ToolSpec

	Responses []map[string]interface{}
	Respond   func(input map[string]interface{}) (map[string]interface{}, error)
	Err       error

	// Delay simulates latency. A cancelled context ends the wait early.
	Delay time.Duration

	Calls []MockToolCall

	mu   sync.Mutex
	next int
}

// MockToolCall is one recorded invocation.
type MockToolCall struct {
	Input map[string]interface{}
	At    time.Time
}

// Name implements Tool.
func (m *MockTool) Name() string { return m.ToolName }

// Describe implements Describer.
func (m *MockTool) Describe() model.ToolSpec {
	spec := m.Spec
	spec.Name = m.ToolName
	return spec
}

// Call implements Tool.
func (m *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockToolCall{Input: input, At: time.Now()})

	switch {
	case m.Err != nil:
		return nil, m.Err
	case m.Respond != nil:
		return m.Respond(input)
	case len(m.Responses) == 0:
		return map[string]interface{}{}, nil
	}
	out := m.Responses[min(m.next, len(m.Responses)-1)]
	if m.next < len(m.Responses) {
		m.next++
	}
	return out, nil
}

// Reset forgets recorded calls and rewinds Responses.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls, m.next = nil, 0
}

// CallCount returns the number of recorded calls.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastInput returns the input of the most recent call, or nil.
func (m *MockTool) LastInput() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1].Input
}
