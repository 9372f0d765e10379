// Package tracing forwards every pipeline callback of an agent run to an
// emit.Emitter.
//
//	buf := emit.NewBufferedEmitter()
//	p := pipeline.New()
//	_ = p.Install(tracing.New(emit.Multi(buf, emit.NewOTelEmitter(tracer))))
//	agent, _ := graph.NewAgent(strategy, chat, graph.WithPipeline(p))
package tracing

import (
	"context"

	"github.com/dshills/agentgraph-go/graph/emit"
	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
)

// Key is the feature key tracing registers under.
const Key = "tracing"

// Feature converts pipeline events to emit events.
type Feature struct {
	emitter emit.Emitter

	// Messages includes the prompt length of LLM calls when set.
	Messages bool
}

// New returns a tracing feature writing to emitter. A nil emitter discards.
func New(emitter emit.Emitter) *Feature {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Feature{emitter: emitter}
}

// Key implements pipeline.Feature.
func (f *Feature) Key() string { return Key }

// Install implements pipeline.Feature.
func (f *Feature) Install(p *pipeline.Pipeline) error {
	p.InterceptAgentStarting(Key, func(_ context.Context, ev *pipeline.AgentStartingEvent) error {
		f.emit(ev.RunID, 0, "", emit.KindAgentStarting, meta{emit.MetaAgentID: ev.AgentID})
		return nil
	})
	p.InterceptAgentFinished(Key, func(_ context.Context, ev *pipeline.AgentFinishedEvent) error {
		f.emit(ev.RunID, 0, "", emit.KindAgentFinished, meta{
			emit.MetaAgentID:  ev.AgentID,
			emit.MetaDuration: ev.Duration.Milliseconds(),
		})
		return nil
	})
	p.InterceptAgentRunError(Key, func(_ context.Context, ev *pipeline.AgentRunErrorEvent) error {
		f.emit(ev.RunID, 0, "", emit.KindAgentRunError, meta{
			emit.MetaAgentID:  ev.AgentID,
			emit.MetaDuration: ev.Duration.Milliseconds(),
		}.withErr(ev.Err))
		return nil
	})
	p.InterceptStrategyStarting(Key, func(_ context.Context, ev *pipeline.StrategyStartingEvent) error {
		f.emit(ev.RunID, 0, "", emit.KindStrategyStarting, meta{emit.MetaSubgraph: ev.Strategy})
		return nil
	})
	p.InterceptStrategyFinished(Key, func(_ context.Context, ev *pipeline.StrategyFinishedEvent) error {
		f.emit(ev.RunID, 0, "", emit.KindStrategyFinished, meta{
			emit.MetaSubgraph: ev.Strategy,
			emit.MetaDuration: ev.Duration.Milliseconds(),
		})
		return nil
	})
	p.InterceptBeforeNode(Key, func(_ context.Context, ev *pipeline.NodeEvent) error {
		f.emit(ev.RunID, ev.Iteration, ev.NodeID, emit.KindBeforeNode, meta{emit.MetaSubgraph: ev.Subgraph})
		return nil
	})
	p.InterceptAfterNode(Key, func(_ context.Context, ev *pipeline.NodeEvent) error {
		f.emit(ev.RunID, ev.Iteration, ev.NodeID, emit.KindAfterNode, meta{
			emit.MetaSubgraph: ev.Subgraph,
			emit.MetaDuration: ev.Duration.Milliseconds(),
		}.withErr(ev.Err))
		return nil
	})
	p.InterceptBeforeLLMCall(Key, func(_ context.Context, ev *pipeline.LLMCallEvent) error {
		m := meta{emit.MetaModel: ev.Model, "tools": toolNames(ev.Tools)}
		if f.Messages {
			m["messages"] = len(ev.Messages)
		}
		f.emit(ev.RunID, 0, ev.NodeID, emit.KindBeforeLLMCall, m)
		return nil
	})
	p.InterceptAfterLLMCall(Key, func(_ context.Context, ev *pipeline.LLMCallEvent) error {
		m := meta{emit.MetaModel: ev.Model, emit.MetaDuration: ev.Duration.Milliseconds()}
		if ev.Response != nil {
			m[emit.MetaTokensIn] = ev.Response.TokensIn
			m[emit.MetaTokensOut] = ev.Response.TokensOut
			m["tool_calls"] = len(ev.Response.ToolCalls)
		}
		f.emit(ev.RunID, 0, ev.NodeID, emit.KindAfterLLMCall, m.withErr(ev.Err))
		return nil
	})
	p.InterceptToolCall(Key, func(_ context.Context, ev *pipeline.ToolCallEvent) error {
		f.emit(ev.RunID, 0, ev.NodeID, emit.KindToolCall, meta{emit.MetaTool: ev.Call.Name, "call_id": ev.Call.ID})
		return nil
	})
	p.InterceptToolValidationError(Key, f.toolOutcome(emit.KindToolValidationError))
	p.InterceptToolCallFailure(Key, f.toolOutcome(emit.KindToolCallFailure))
	p.InterceptToolCallResult(Key, f.toolOutcome(emit.KindToolCallResult))
	return nil
}

func (f *Feature) toolOutcome(kind string) pipeline.Handler[pipeline.ToolCallEvent] {
	return func(_ context.Context, ev *pipeline.ToolCallEvent) error {
		m := meta{
			emit.MetaTool:     ev.Call.Name,
			"call_id":         ev.Call.ID,
			emit.MetaDuration: ev.Duration.Milliseconds(),
		}
		if ev.Result != nil && ev.Result.Failed {
			m[emit.MetaError] = ev.Result.Error
		}
		f.emit(ev.RunID, 0, ev.NodeID, kind, m)
		return nil
	}
}

func (f *Feature) emit(runID string, iteration int, nodeID, kind string, m meta) {
	f.emitter.Emit(emit.Event{
		RunID:     runID,
		Iteration: iteration,
		NodeID:    nodeID,
		Kind:      kind,
		Meta:      m,
	})
}

type meta map[string]interface{}

func (m meta) withErr(err error) meta {
	if err != nil {
		m[emit.MetaError] = err.Error()
	}
	return m
}

func toolNames(tools []model.ToolSpec) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
