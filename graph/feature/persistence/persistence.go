// Package persistence stores a snapshot of every node an agent run executes.
//
// Snapshots carry the node output and the conversation as last seen by the
// model, which is enough to inspect a run after the fact or to seed a new
// run from where an old one stopped. The strategy output is saved as a
// checkpoint named after the run ID.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/store"
)

// Key is the feature key persistence registers under.
const Key = "persistence"

// Snapshot is what gets stored after each node.
type Snapshot struct {
	RunID     string          `json:"run_id"`
	AgentID   string          `json:"agent_id"`
	Subgraph  string          `json:"subgraph"`
	NodeID    string          `json:"node_id"`
	Iteration int             `json:"iteration"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Messages  []model.Message `json:"messages,omitempty"`
	Time      time.Time       `json:"time"`
}

// Feature writes snapshots to a store.
type Feature struct {
	store  store.Store[Snapshot]
	logger *slog.Logger
	strict bool
	runs   sync.Map // runID -> *runState
}

type runState struct {
	mu       sync.Mutex
	agentID  string
	seq      int
	messages []model.Message
}

// Option configures a Feature.
type Option func(*Feature)

// WithLogger sets the logger used to report write failures.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feature) { f.logger = l }
}

// Strict makes a failed write fail the run instead of being logged.
func Strict() Option {
	return func(f *Feature) { f.strict = true }
}

// New returns a feature persisting to s.
func New(s store.Store[Snapshot], opts ...Option) *Feature {
	f := &Feature{store: s, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Key implements pipeline.Feature.
func (f *Feature) Key() string { return Key }

// Install implements pipeline.Feature.
func (f *Feature) Install(p *pipeline.Pipeline) error {
	if f.store == nil {
		return fmt.Errorf("persistence: nil store")
	}
	p.InterceptAgentStarting(Key, func(_ context.Context, ev *pipeline.AgentStartingEvent) error {
		f.runs.Store(ev.RunID, &runState{agentID: ev.AgentID})
		return nil
	})
	p.InterceptAfterLLMCall(Key, func(_ context.Context, ev *pipeline.LLMCallEvent) error {
		rs := f.run(ev.RunID)
		if rs == nil || ev.Response == nil {
			return nil
		}
		msgs := make([]model.Message, len(ev.Messages), len(ev.Messages)+1)
		copy(msgs, ev.Messages)
		rs.mu.Lock()
		rs.messages = append(msgs, model.AssistantMessage(*ev.Response))
		rs.mu.Unlock()
		return nil
	})
	p.InterceptAfterNode(Key, func(ctx context.Context, ev *pipeline.NodeEvent) error {
		rs := f.run(ev.RunID)
		if rs == nil {
			return nil
		}
		rs.mu.Lock()
		rs.seq++
		seq := rs.seq
		snap := Snapshot{
			RunID:     ev.RunID,
			AgentID:   rs.agentID,
			Subgraph:  ev.Subgraph,
			NodeID:    ev.NodeID,
			Iteration: ev.Iteration,
			Messages:  rs.messages,
			Time:      time.Now(),
		}
		rs.mu.Unlock()
		if ev.Err != nil {
			snap.Error = ev.Err.Error()
		} else {
			snap.Output = encode(ev.Output)
		}
		return f.check(ev.RunID, "save step", f.store.SaveStep(ctx, ev.RunID, seq, ev.NodeID, snap))
	})
	p.InterceptStrategyFinished(Key, func(ctx context.Context, ev *pipeline.StrategyFinishedEvent) error {
		rs := f.run(ev.RunID)
		if rs == nil {
			return nil
		}
		rs.mu.Lock()
		seq := rs.seq
		snap := Snapshot{
			RunID:    ev.RunID,
			AgentID:  rs.agentID,
			Subgraph: ev.Strategy,
			Output:   encode(ev.Output),
			Messages: rs.messages,
			Time:     time.Now(),
		}
		rs.mu.Unlock()
		return f.check(ev.RunID, "save checkpoint", f.store.SaveCheckpoint(ctx, ev.RunID, snap, seq))
	})
	p.InterceptAgentFinished(Key, func(_ context.Context, ev *pipeline.AgentFinishedEvent) error {
		f.runs.Delete(ev.RunID)
		return nil
	})
	p.InterceptAgentRunError(Key, func(_ context.Context, ev *pipeline.AgentRunErrorEvent) error {
		f.runs.Delete(ev.RunID)
		return nil
	})
	return nil
}

// Latest returns the last node snapshot stored for runID.
func (f *Feature) Latest(ctx context.Context, runID string) (Snapshot, error) {
	snap, _, err := f.store.LoadLatest(ctx, runID)
	return snap, err
}

// Steps returns every node snapshot of runID in execution order.
func (f *Feature) Steps(ctx context.Context, runID string) ([]Snapshot, error) {
	recs, err := f.store.ListSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(recs))
	for i, r := range recs {
		out[i] = r.Snapshot
	}
	return out, nil
}

// Result returns the checkpoint stored when runID's strategy finished.
func (f *Feature) Result(ctx context.Context, runID string) (Snapshot, error) {
	snap, _, err := f.store.LoadCheckpoint(ctx, runID)
	return snap, err
}

func (f *Feature) run(runID string) *runState {
	v, ok := f.runs.Load(runID)
	if !ok {
		return nil
	}
	return v.(*runState)
}

func (f *Feature) check(runID, op string, err error) error {
	if err == nil {
		return nil
	}
	if f.strict {
		return fmt.Errorf("persistence: %s: %w", op, err)
	}
	f.logger.Warn("persistence write failed", "run_id", runID, "op", op, "error", err)
	return nil
}

// encode marshals v, falling back to its printed form for values JSON
// cannot represent.
func encode(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprint(v))
	}
	return data
}
