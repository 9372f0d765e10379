package graph

import (
	"context"
	"testing"

	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/tool"
)

// newTestContext builds a sealed-pipeline context with the given tools.
func newTestContext(t *testing.T, chat model.ChatModel, maxIter int, tools ...tool.Tool) *AgentContext {
	t.Helper()
	reg, err := tool.NewRegistry(tools...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	p := pipeline.New()
	p.Seal()
	if chat == nil {
		chat = &model.MockChatModel{}
	}
	return NewAgentContext(ContextParams{
		RunID:    "test-run",
		Config:   Config{MaxIterations: maxIter},
		Model:    chat,
		Registry: reg,
		Pipeline: p,
	})
}

func passthrough[T any](_ context.Context, _ *AgentContext, in T) (T, error) {
	return in, nil
}

func mustConnect(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func mockTool(name string, out map[string]interface{}) *tool.MockTool {
	return &tool.MockTool{
		ToolName:  name,
		Spec:      model.ToolSpec{Description: name + " tool"},
		Responses: []map[string]interface{}{out},
	}
}

func toolNamesOf(specs []model.ToolSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}
