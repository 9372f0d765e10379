package graph

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dshills/agentgraph-go/graph/pipeline"
)

// graphDef is the erased definition shared by a builder and the subgraph it builds.
type graphDef struct {
	name      string
	selection ToolSelection
	start     *node
	finish    *node
	nodes     map[string]*node
	order     []*node
	errs      []error
	built     bool
}

func (d *graphDef) record(err error) {
	d.errs = append(d.errs, err)
}

// add registers n, recording construction errors for Build.
func (d *graphDef) add(n *node) bool {
	if d.built {
		d.record(newGraphError(ErrGraphFinalized, "GRAPH_FINALIZED", d.name, "cannot add node %q", n.name))
		return false
	}
	if n.kind != startNode && n.kind != finishNode &&
		(strings.HasPrefix(n.name, StartPrefix) || strings.HasPrefix(n.name, FinishPrefix)) {
		d.record(newGraphError(ErrDuplicateNode, "DUPLICATE_NODE", d.name, "node name %q uses a reserved prefix", n.name))
		return false
	}
	if _, exists := d.nodes[n.name]; exists {
		d.record(newGraphError(ErrDuplicateNode, "DUPLICATE_NODE", d.name, "duplicate node name %q", n.name))
		return false
	}
	d.nodes[n.name] = n
	d.order = append(d.order, n)
	return true
}

// SubgraphOption configures a subgraph at construction.
type SubgraphOption func(*graphDef)

// WithToolSelection sets the tool-visibility policy applied when the
// subgraph is entered. The default is AllTools.
func WithToolSelection(sel ToolSelection) SubgraphOption {
	return func(d *graphDef) {
		if sel != nil {
			d.selection = sel
		}
	}
}

// SubgraphBuilder assembles a subgraph taking I and producing O.
//
// A builder is not safe for concurrent use. Once Build succeeds the graph is
// sealed: further AddNode or Connect calls fail with GRAPH_FINALIZED.
//
// Example:
//
//	b := graph.NewSubgraph[string, string]("shout")
//	upper := graph.AddNode(b, "upper", func(ctx context.Context, ac *graph.AgentContext, in string) (string, error) {
//	    return strings.ToUpper(in), nil
//	})
//	_ = graph.Connect(b.Start(), upper)
//	_ = graph.Connect(upper, b.Finish())
//	sub, err := b.Build()
type SubgraphBuilder[I, O any] struct {
	d *graphDef
}

// NewSubgraph creates a builder with its start and finish nodes in place.
func NewSubgraph[I, O any](name string, opts ...SubgraphOption) *SubgraphBuilder[I, O] {
	d := &graphDef{
		name:      name,
		selection: AllTools,
		nodes:     make(map[string]*node),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.start = &node{name: StartPrefix + name, kind: startNode, owner: d, run: identity}
	d.finish = &node{name: FinishPrefix + name, kind: finishNode, owner: d, run: identity}
	d.add(d.start)
	d.add(d.finish)
	return &SubgraphBuilder[I, O]{d: d}
}

func (b *SubgraphBuilder[I, O]) def() *graphDef { return b.d }

// Name returns the subgraph name.
func (b *SubgraphBuilder[I, O]) Name() string { return b.d.name }

// Start returns the start node. It forwards the subgraph input unchanged.
func (b *SubgraphBuilder[I, O]) Start() NodeRef[I, I] {
	return NodeRef[I, I]{n: b.d.start}
}

// Finish returns the finish node. The value it receives is the subgraph output.
func (b *SubgraphBuilder[I, O]) Finish() NodeRef[O, O] {
	return NodeRef[O, O]{n: b.d.finish}
}

// Build validates and seals the subgraph.
//
// Every construction error recorded by AddNode is returned (joined), and the
// finish node must be reachable from the start node.
func (b *SubgraphBuilder[I, O]) Build() (*Subgraph[I, O], error) {
	d := b.d
	if d.built {
		return nil, newGraphError(ErrGraphFinalized, "GRAPH_FINALIZED", d.name, "subgraph already built")
	}
	if len(d.errs) > 0 {
		return nil, errors.Join(d.errs...)
	}
	if !d.reachable(d.start, d.finish) {
		return nil, newGraphError(ErrUnreachableFinish, "UNREACHABLE_FINISH", d.name,
			"%q cannot be reached from %q", d.finish.name, d.start.name)
	}
	if l, ok := d.selection.(ToolList); ok && len(l.Names) == 0 {
		d.selection = NoTools
	}
	d.built = true
	return &Subgraph[I, O]{def: d}, nil
}

// reachable runs a breadth-first search over edges.
func (d *graphDef) reachable(from, to *node) bool {
	seen := map[*node]bool{from: true}
	queue := []*node{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == to {
			return true
		}
		for _, e := range n.edges {
			if !seen[e.to] {
				seen[e.to] = true
				queue = append(queue, e.to)
			}
		}
	}
	return false
}

// Subgraph is a built, immutable graph taking I and producing O.
//
// It can be run directly against an AgentContext, used as an Agent's
// strategy, or embedded into an enclosing builder with AddSubgraph.
type Subgraph[I, O any] struct {
	def *graphDef
}

// Name returns the subgraph name.
func (s *Subgraph[I, O]) Name() string { return s.def.name }

// Selection returns the tool-visibility policy.
func (s *Subgraph[I, O]) Selection() ToolSelection { return s.def.selection }

// Nodes returns node names in creation order, start and finish first.
func (s *Subgraph[I, O]) Nodes() []string {
	names := make([]string, 0, len(s.def.order))
	for _, n := range s.def.order {
		names = append(names, n.name)
	}
	return names
}

// Run executes the subgraph against ac.
func (s *Subgraph[I, O]) Run(ctx context.Context, ac *AgentContext, input I) (O, error) {
	out, err := s.def.execute(ctx, ac, input)
	if err != nil {
		var zero O
		return zero, err
	}
	return mustCast[O](s.def.finish.name, out), nil
}

// execute applies the tool-visibility policy and runs the loop.
//
// For any policy other than AllTools the loop runs on a child context with
// narrowed tools. Whether the loop succeeds or fails, the child's
// conversation then replaces the parent's, as if the nodes had run on the
// parent; the parent's tools are never touched.
func (d *graphDef) execute(ctx context.Context, ac *AgentContext, in any) (out any, err error) {
	if !ac.Active() {
		return nil, ErrNotActive
	}
	if _, all := d.selection.(allTools); all {
		return d.loop(ctx, ac, in)
	}

	child, err := ac.deriveChild(ctx, d.name, d.selection)
	if err != nil {
		return nil, err
	}
	defer func() {
		merr := mergeHistory(ac, child)
		child.close()
		if merr != nil && err == nil {
			out, err = nil, merr
		}
	}()

	return d.loop(ctx, child, in)
}

// mergeHistory copies the child's conversation into the parent.
func mergeHistory(parent, child *AgentContext) error {
	history, err := child.session.History()
	if err != nil {
		return err
	}
	return parent.session.ReplaceHistory(history)
}

// loop walks from start to finish.
//
// Every executed node, including start, costs one iteration; reaching the
// finish node ends the walk without executing it.
func (d *graphDef) loop(ctx context.Context, ac *AgentContext, in any) (any, error) {
	current, value := d.start, in
	maxIter := ac.config.MaxIterations

	for current != d.finish {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var iteration int
		err := ac.iterations.WithLock(func(s *IterationState) (int, error) {
			n, err := s.Count()
			if err != nil {
				return 0, err
			}
			if maxIter > 0 && n+1 > maxIter {
				return 0, &ExecutionError{
					Message:   "iteration limit exceeded",
					Code:      "MAX_ITERATIONS_EXCEEDED",
					NodeID:    current.name,
					Iteration: n + 1,
					sentinel:  ErrMaxIterationsExceeded,
				}
			}
			iteration = n + 1
			return iteration, nil
		})
		if err != nil {
			return nil, err
		}

		out, err := d.executeNode(ctx, ac, current, value, iteration)
		if err != nil {
			return nil, err
		}

		e, next, ok := current.resolveEdge(ctx, ac, out)
		if !ok {
			return nil, &ExecutionError{
				Message:   "stuck at node",
				Code:      "STUCK_IN_NODE",
				NodeID:    current.name,
				Iteration: iteration,
				Output:    out,
				sentinel:  ErrStuckInNode,
			}
		}
		current, value = e.to, next
	}
	return value, nil
}

// executeNode runs n between BeforeNode and AfterNode dispatches.
// Handlers observe input and output; they cannot change them.
func (d *graphDef) executeNode(ctx context.Context, ac *AgentContext, n *node, in any, iteration int) (any, error) {
	ev := &pipeline.NodeEvent{
		RunID:     ac.runID,
		Subgraph:  d.name,
		NodeID:    n.name,
		Iteration: iteration,
		Input:     in,
	}
	if err := ac.pipeline.OnBeforeNode(ctx, ev); err != nil {
		return nil, err
	}

	nodeCtx := withNodeName(ctx, n.name)
	start := time.Now()
	out, err := n.run(nodeCtx, ac, in)
	if err != nil && n.kind != subgraphNode {
		var nerr *NodeError
		if !errors.As(err, &nerr) {
			err = &NodeError{NodeID: n.name, Cause: err}
		}
	}

	after := *ev
	after.Output, after.Err, after.Duration = out, err, time.Since(start)
	if herr := ac.pipeline.OnAfterNode(ctx, &after); herr != nil && err == nil {
		return nil, herr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

type nodeNameKey struct{}

func withNodeName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nodeNameKey{}, name)
}

// NodeName returns the name of the node executing under ctx, or "".
func NodeName(ctx context.Context) string {
	name, _ := ctx.Value(nodeNameKey{}).(string)
	return name
}
