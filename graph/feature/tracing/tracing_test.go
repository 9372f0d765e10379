package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/agentgraph-go/graph"
	"github.com/dshills/agentgraph-go/graph/emit"
	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/tool"
)

func newAgent(t *testing.T, chat model.ChatModel, buf *emit.BufferedEmitter, tools ...tool.Tool) *graph.Agent[string, string] {
	t.Helper()
	strategy, err := graph.ReAct("react")
	if err != nil {
		t.Fatalf("ReAct() error = %v", err)
	}
	p := pipeline.New()
	f := New(buf)
	f.Messages = true
	if err := p.Install(f); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	agent, err := graph.NewAgent(strategy, chat, graph.WithPipeline(p), graph.WithTools(tools...))
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}
	return agent
}

func TestTracing_RunEvents(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{ID: "1", Name: "search", Input: map[string]interface{}{}}}, TokensIn: 10, TokensOut: 3},
		{Text: "found it", TokensIn: 20, TokensOut: 5},
	}}
	search := &tool.MockTool{ToolName: "search", Responses: []map[string]interface{}{{"hits": 1}}}
	agent := newAgent(t, chat, buf, search)

	if _, err := agent.Run(context.Background(), "look"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	runs := buf.Runs()
	if len(runs) != 1 {
		t.Fatalf("runs = %v", runs)
	}
	events := buf.History(runs[0])

	want := []string{
		emit.KindAgentStarting, emit.KindStrategyStarting,
		emit.KindBeforeNode, emit.KindAfterNode, // start
		emit.KindBeforeNode, emit.KindBeforeLLMCall, emit.KindAfterLLMCall, emit.KindAfterNode, // llm
		emit.KindBeforeNode, emit.KindToolCall, emit.KindToolCallResult, emit.KindAfterNode, // tools
		emit.KindBeforeNode, emit.KindBeforeLLMCall, emit.KindAfterLLMCall, emit.KindAfterNode, // send
		emit.KindStrategyFinished, emit.KindAgentFinished,
	}
	if len(events) != len(want) {
		for _, e := range events {
			t.Logf("%s %s", e.Kind, e.NodeID)
		}
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.Kind != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, e.Kind, want[i])
		}
	}

	llm := buf.Filter(runs[0], emit.HistoryFilter{Kind: emit.KindAfterLLMCall})
	if llm[0].NodeID != "llm" || llm[0].Meta[emit.MetaTokensIn] != 10 || llm[0].Meta[emit.MetaModel] != "mock" {
		t.Errorf("first LLM event = %+v", llm[0])
	}
	before := buf.Filter(runs[0], emit.HistoryFilter{Kind: emit.KindBeforeLLMCall})
	if before[1].Meta["messages"] != 3 {
		t.Errorf("second request messages = %v, want 3", before[1].Meta["messages"])
	}
	nodes := buf.Filter(runs[0], emit.HistoryFilter{Kind: emit.KindAfterNode, NodeID: "tools"})
	if len(nodes) != 1 || nodes[0].Iteration != 3 {
		t.Errorf("tools node events = %+v", nodes)
	}
}

func TestTracing_Failures(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{ID: "1", Name: "broken"}, {ID: "2", Name: "missing"}}},
	}}
	broken := &tool.MockTool{ToolName: "broken", Err: errors.New("disk full")}
	agent, _ := graph.NewAgent(mustReAct(t), chat,
		graph.WithPipeline(installed(t, buf)),
		graph.WithTools(broken),
		graph.WithMaxIterations(4),
	)

	if _, err := agent.Run(context.Background(), "go"); err == nil {
		t.Fatal("expected iteration limit error")
	}
	runID := buf.Runs()[0]

	failures := buf.Filter(runID, emit.HistoryFilter{Kind: emit.KindToolCallFailure})
	if len(failures) == 0 || failures[0].Err() != "disk full" {
		t.Errorf("failure events = %+v", failures)
	}
	invalid := buf.Filter(runID, emit.HistoryFilter{Kind: emit.KindToolValidationError})
	if len(invalid) == 0 || invalid[0].Meta[emit.MetaTool] != "missing" {
		t.Errorf("validation events = %+v", invalid)
	}
	runErr := buf.Filter(runID, emit.HistoryFilter{Kind: emit.KindAgentRunError})
	if len(runErr) != 1 || runErr[0].Err() == "" {
		t.Errorf("run error events = %+v", runErr)
	}
}

func TestNew_NilEmitter(t *testing.T) {
	f := New(nil)
	if f.Key() != Key {
		t.Errorf("Key() = %q", f.Key())
	}
	p := pipeline.New()
	if err := p.Install(f); err != nil {
		t.Fatal(err)
	}
	if p.Handlers(pipeline.ToolCallResult) != 1 {
		t.Error("tool result handler not registered")
	}
}

func mustReAct(t *testing.T) *graph.Subgraph[string, string] {
	t.Helper()
	s, err := graph.ReAct("react")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func installed(t *testing.T, e emit.Emitter) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New()
	if err := p.Install(New(e)); err != nil {
		t.Fatal(err)
	}
	return p
}
