// Package metrics records Prometheus metrics and per-run token costs for
// agent runs.
//
// Labels never include run IDs. Per-run usage is kept in memory while the
// run is active and handed to OnRunUsage when it ends.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/agentgraph-go/graph/pipeline"
)

// Key is the feature key metrics registers under.
const Key = "metrics"

const namespace = "agentgraph"

// Usage accumulates the model usage of one run.
type Usage struct {
	Calls     int
	TokensIn  int
	TokensOut int
	CostUSD   float64
	// Unpriced counts calls to models missing from the pricing table.
	Unpriced int
}

// Collector is a pipeline feature exporting agent metrics.
type Collector struct {
	inflight     prometheus.Gauge
	runs         *prometheus.CounterVec
	runLatency   *prometheus.HistogramVec
	nodeLatency  *prometheus.HistogramVec
	llmCalls     *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	cost         *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec

	pricing map[string]ModelPricing
	usage   sync.Map // runID -> *runUsage

	// OnRunUsage, when set, receives the usage of every finished run.
	OnRunUsage func(runID string, usage Usage)
}

type runUsage struct {
	mu sync.Mutex
	u  Usage
}

// New registers the collector's metrics with reg (the default registerer
// when nil). Registering two collectors with one registry panics, as with
// any duplicate Prometheus registration.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	ms := []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000}

	return &Collector{
		pricing: DefaultPricing,
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_runs",
			Help:      "Agent runs currently executing",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished agent runs by outcome",
		}, []string{"agent", "status"}),
		runLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_latency_ms",
			Help:      "Agent run duration in milliseconds",
			Buckets:   ms,
		}, []string{"agent", "status"}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   ms,
		}, []string{"subgraph", "node", "status"}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Model requests by model and outcome",
		}, []string{"model", "status"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_ms",
			Help:      "Model request duration in milliseconds",
			Buckets:   ms,
		}, []string{"model"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by direction (input, output)",
		}, []string{"model", "direction"}),
		cost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated model spend in USD",
		}, []string{"model"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by outcome (ok, failed, invalid)",
		}, []string{"tool", "outcome"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_ms",
			Help:      "Tool call duration in milliseconds",
			Buckets:   ms,
		}, []string{"tool"}),
	}
}

// WithPricing replaces the pricing table. It must be called before the
// collector is installed.
func (c *Collector) WithPricing(table map[string]ModelPricing) *Collector {
	c.pricing = table
	return c
}

// Usage returns the usage so far of an active run.
func (c *Collector) Usage(runID string) (Usage, bool) {
	v, ok := c.usage.Load(runID)
	if !ok {
		return Usage{}, false
	}
	ru := v.(*runUsage)
	ru.mu.Lock()
	defer ru.mu.Unlock()
	return ru.u, true
}

// Key implements pipeline.Feature.
func (c *Collector) Key() string { return Key }

// Install implements pipeline.Feature.
func (c *Collector) Install(p *pipeline.Pipeline) error {
	p.InterceptAgentStarting(Key, func(_ context.Context, ev *pipeline.AgentStartingEvent) error {
		c.inflight.Inc()
		c.usage.Store(ev.RunID, &runUsage{})
		return nil
	})
	p.InterceptAgentFinished(Key, func(_ context.Context, ev *pipeline.AgentFinishedEvent) error {
		c.finish(ev.RunID, ev.AgentID, "success", ev.Duration)
		return nil
	})
	p.InterceptAgentRunError(Key, func(_ context.Context, ev *pipeline.AgentRunErrorEvent) error {
		c.finish(ev.RunID, ev.AgentID, "error", ev.Duration)
		return nil
	})
	p.InterceptAfterNode(Key, func(_ context.Context, ev *pipeline.NodeEvent) error {
		c.nodeLatency.WithLabelValues(ev.Subgraph, ev.NodeID, status(ev.Err)).Observe(ms(ev.Duration))
		return nil
	})
	p.InterceptAfterLLMCall(Key, func(_ context.Context, ev *pipeline.LLMCallEvent) error {
		c.llmCalls.WithLabelValues(ev.Model, status(ev.Err)).Inc()
		c.llmLatency.WithLabelValues(ev.Model).Observe(ms(ev.Duration))
		if ev.Response == nil {
			return nil
		}
		in, out := ev.Response.TokensIn, ev.Response.TokensOut
		c.tokens.WithLabelValues(ev.Model, "input").Add(float64(in))
		c.tokens.WithLabelValues(ev.Model, "output").Add(float64(out))

		price, priced := PriceOf(c.pricing, ev.Model)
		cost := price.Cost(in, out)
		if priced {
			c.cost.WithLabelValues(ev.Model).Add(cost)
		}
		if v, ok := c.usage.Load(ev.RunID); ok {
			ru := v.(*runUsage)
			ru.mu.Lock()
			ru.u.Calls++
			ru.u.TokensIn += in
			ru.u.TokensOut += out
			ru.u.CostUSD += cost
			if !priced {
				ru.u.Unpriced++
			}
			ru.mu.Unlock()
		}
		return nil
	})
	p.InterceptToolCallResult(Key, c.toolOutcome("ok"))
	p.InterceptToolCallFailure(Key, c.toolOutcome("failed"))
	p.InterceptToolValidationError(Key, c.toolOutcome("invalid"))
	return nil
}

func (c *Collector) toolOutcome(outcome string) pipeline.Handler[pipeline.ToolCallEvent] {
	return func(_ context.Context, ev *pipeline.ToolCallEvent) error {
		c.toolCalls.WithLabelValues(ev.Call.Name, outcome).Inc()
		c.toolDuration.WithLabelValues(ev.Call.Name).Observe(ms(ev.Duration))
		return nil
	}
}

// finish records a run's outcome once. A run whose AgentFinished handlers
// fail after this one also reaches AgentRunError; only the first outcome
// counts. Runs rejected before the collector saw AgentStarting are not counted.
func (c *Collector) finish(runID, agentID, st string, d time.Duration) {
	v, ok := c.usage.LoadAndDelete(runID)
	if !ok {
		return
	}
	c.runs.WithLabelValues(agentID, st).Inc()
	c.runLatency.WithLabelValues(agentID, st).Observe(ms(d))
	c.inflight.Dec()
	if c.OnRunUsage == nil {
		return
	}
	ru := v.(*runUsage)
	ru.mu.Lock()
	u := ru.u
	ru.mu.Unlock()
	c.OnRunUsage(runID, u)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
