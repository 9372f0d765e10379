package emit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on every span.
const (
	AttrRunID     = "agentgraph.run_id"
	AttrNodeID    = "agentgraph.node_id"
	AttrIteration = "agentgraph.iteration"
)

// SpanRun names the span that covers a whole agent run.
const SpanRun = "agent_run"

// OTelEmitter turns events into OpenTelemetry spans.
//
// agent_starting opens a run span that stays open until agent_finished or
// agent_run_error for the same RunID; every other event of the run becomes a
// child span of it named after the event kind. Events that carry a duration
// (the "finished", "after" and tool result kinds) produce a span that starts
// duration before the event time, so the exported trace shows real node and
// model call latencies. Other events are zero-length spans.
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	emitter := emit.NewOTelEmitterFromProvider(tp)
type OTelEmitter struct {
	tracer   trace.Tracer
	provider trace.TracerProvider

	mu   sync.Mutex
	runs map[string]runSpan
}

type runSpan struct {
	ctx  context.Context
	span trace.Span
}

// NewOTelEmitter returns an emitter using tracer. A nil tracer falls back
// to the global provider.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	if tracer == nil {
		tracer = otel.Tracer("agentgraph")
	}
	return &OTelEmitter{tracer: tracer, runs: make(map[string]runSpan)}
}

// NewOTelEmitterFromProvider returns an emitter using a tracer from tp.
// Flush then flushes tp instead of the global provider.
func NewOTelEmitterFromProvider(tp trace.TracerProvider) *OTelEmitter {
	if tp == nil {
		return NewOTelEmitter(nil)
	}
	o := NewOTelEmitter(tp.Tracer("agentgraph"))
	o.provider = tp
	return o
}

// Emit records event as a span.
func (o *OTelEmitter) Emit(event Event) {
	o.emit(context.Background(), event)
}

// EmitContext records event as a child of any span in ctx. Without one the
// run span of event.RunID is the parent.
func (o *OTelEmitter) EmitContext(ctx context.Context, event Event) {
	o.emit(ctx, event)
}

func (o *OTelEmitter) emit(ctx context.Context, event Event) {
	event = event.stamped()
	if event.Kind == KindAgentStarting {
		o.startRun(ctx, event)
		return
	}

	parent := ctx
	run, hasRun := o.run(event.RunID)
	if hasRun && !trace.SpanContextFromContext(ctx).IsValid() {
		parent = run.ctx
	}

	start := event.Time
	if d := event.Duration(); d > 0 {
		start = event.Time.Add(-d)
	}
	_, span := o.tracer.Start(parent, event.Kind, trace.WithTimestamp(start))
	annotate(span, event)
	span.End(trace.WithTimestamp(event.Time))

	if hasRun && (event.Kind == KindAgentFinished || event.Kind == KindAgentRunError) {
		o.endRun(event)
	}
}

func (o *OTelEmitter) startRun(ctx context.Context, event Event) {
	runCtx, span := o.tracer.Start(ctx, SpanRun, trace.WithTimestamp(event.Time))
	annotate(span, event)
	o.mu.Lock()
	o.runs[event.RunID] = runSpan{ctx: runCtx, span: span}
	o.mu.Unlock()
}

func (o *OTelEmitter) run(runID string) (runSpan, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[runID]
	return r, ok
}

func (o *OTelEmitter) endRun(event Event) {
	o.mu.Lock()
	r, ok := o.runs[event.RunID]
	delete(o.runs, event.RunID)
	o.mu.Unlock()
	if !ok {
		return
	}
	if msg := event.Err(); msg != "" {
		r.span.SetStatus(codes.Error, msg)
	} else {
		r.span.SetStatus(codes.Ok, "")
	}
	r.span.End(trace.WithTimestamp(event.Time))
}

func annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String(AttrRunID, event.RunID),
		attribute.String(AttrNodeID, event.NodeID),
		attribute.Int(AttrIteration, event.Iteration),
	)
	for k, v := range event.Meta {
		span.SetAttributes(metaAttribute(k, v))
	}
	if msg := event.Err(); msg != "" {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
}

// Flush exports buffered spans. It flushes the provider given to
// NewOTelEmitterFromProvider, or else the global provider, when the provider
// supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	tp := o.provider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func metaAttribute(key string, value interface{}) attribute.KeyValue {
	switch key {
	case MetaModel, MetaTokensIn, MetaTokensOut:
		key = "agentgraph.llm." + key
	case MetaTool:
		key = "agentgraph.tool.name"
	case MetaDuration:
		key = "agentgraph." + key
	}
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
