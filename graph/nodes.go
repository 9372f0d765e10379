package graph

import (
	"context"

	"github.com/dshills/agentgraph-go/graph/model"
)

// AddLLMRequestNode adds a node that appends its input as a user message
// (skipped when empty) and requests the model with the visible tools.
func AddLLMRequestNode(g Graph, name string) NodeRef[string, model.ChatOut] {
	return AddNode(g, name, func(ctx context.Context, ac *AgentContext, prompt string) (model.ChatOut, error) {
		if prompt != "" {
			if err := ac.Session().Append(model.UserMessage(prompt)); err != nil {
				return model.ChatOut{}, err
			}
		}
		return ac.RequestModel(ctx)
	})
}

// AddLLMRequestNoToolsNode is AddLLMRequestNode with tools hidden for the request.
func AddLLMRequestNoToolsNode(g Graph, name string) NodeRef[string, model.ChatOut] {
	return AddNode(g, name, func(ctx context.Context, ac *AgentContext, prompt string) (model.ChatOut, error) {
		if prompt != "" {
			if err := ac.Session().Append(model.UserMessage(prompt)); err != nil {
				return model.ChatOut{}, err
			}
		}
		return ac.RequestModelWithoutTools(ctx)
	})
}

// AddExecuteToolsNode adds a node that runs every tool call of a model
// response in parallel.
func AddExecuteToolsNode(g Graph, name string) NodeRef[model.ChatOut, []model.ToolResult] {
	return AddNode(g, name, func(ctx context.Context, ac *AgentContext, out model.ChatOut) ([]model.ToolResult, error) {
		return ac.ExecuteTools(ctx, out.ToolCalls)
	})
}

// AddSendToolResultsNode adds a node that appends tool results to the
// conversation and requests the model again.
func AddSendToolResultsNode(g Graph, name string) NodeRef[[]model.ToolResult, model.ChatOut] {
	return AddNode(g, name, func(ctx context.Context, ac *AgentContext, results []model.ToolResult) (model.ChatOut, error) {
		msgs := make([]model.Message, len(results))
		for i, r := range results {
			msgs[i] = model.ToolMessage(r)
		}
		if err := ac.Session().Append(msgs...); err != nil {
			return model.ChatOut{}, err
		}
		return ac.RequestModel(ctx)
	})
}

// OnToolCalls connects from to to, taken when the response requests tools.
func OnToolCalls[A, B any](from NodeRef[A, model.ChatOut], to NodeRef[model.ChatOut, B]) error {
	return ConnectIf(from, to, func(_ context.Context, _ *AgentContext, out model.ChatOut) bool {
		return out.HasToolCalls()
	})
}

// OnAssistantMessage connects from to to, forwarding the response text when
// the response requests no tools.
func OnAssistantMessage[A, B any](from NodeRef[A, model.ChatOut], to NodeRef[string, B]) error {
	return ConnectTransform(from, to, func(_ context.Context, _ *AgentContext, out model.ChatOut) (string, bool) {
		if out.HasToolCalls() {
			return "", false
		}
		return out.Text, true
	})
}
