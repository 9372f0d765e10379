package graph

import (
	"context"

	"github.com/dshills/agentgraph-go/graph/model"
)

// ReAct builds the standard tool-use loop:
//
//	start -> llm -(tool calls)-> tools -> send -(tool calls)-> tools ...
//	         llm -(text)-> finish      send -(text)-> finish
//
// The input is sent as a user message and the final assistant text is the
// output. Node names are "llm", "tools" and "send".
func ReAct(name string, opts ...SubgraphOption) (*Subgraph[string, string], error) {
	b := NewSubgraph[string, string](name, opts...)
	llm := AddLLMRequestNode(b, "llm")
	exec := AddExecuteToolsNode(b, "tools")
	send := AddSendToolResultsNode(b, "send")
	for _, err := range []error{
		Connect(b.Start(), llm),
		OnToolCalls(llm, exec),
		OnAssistantMessage(llm, b.Finish()),
		Connect(exec, send),
		OnToolCalls(send, exec),
		OnAssistantMessage(send, b.Finish()),
	} {
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// ActPrompt is the user message that hands a plan to the act phase of PlanAct.
const ActPrompt = "Carry out the plan above step by step, using tools where needed. Reply with the final answer."

// PlanAct builds a two-phase strategy. A "plan" subgraph asks the model for
// a plan with every tool hidden, then an "act" subgraph runs the ReAct loop
// on the same conversation with the tools chosen by act.
//
//	start -> plan(llm) -> act(llm <-> tools) -> finish
func PlanAct(name string, act ToolSelection) (*Subgraph[string, string], error) {
	pb := NewSubgraph[string, string]("plan", WithToolSelection(NoTools))
	planner := AddLLMRequestNoToolsNode(pb, "planner")
	if err := Connect(pb.Start(), planner); err != nil {
		return nil, err
	}
	if err := ConnectTransform(planner, pb.Finish(), func(_ context.Context, _ *AgentContext, out model.ChatOut) (string, bool) {
		return out.Text, true
	}); err != nil {
		return nil, err
	}
	plan, err := pb.Build()
	if err != nil {
		return nil, err
	}

	actor, err := ReAct("act", WithToolSelection(act))
	if err != nil {
		return nil, err
	}

	b := NewSubgraph[string, string](name)
	planNode := AddSubgraph(b, plan)
	actNode := AddSubgraph(b, actor)
	for _, err := range []error{
		Connect(b.Start(), planNode),
		ConnectTransform(planNode, actNode, func(context.Context, *AgentContext, string) (string, bool) {
			return ActPrompt, true
		}),
		Connect(actNode, b.Finish()),
	} {
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}
