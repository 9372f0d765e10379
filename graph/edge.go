package graph

import "context"

// Transform converts a source node's output into the destination node's
// input. Returning false suppresses the edge, letting the next edge in
// registration order try.
//
// Transforms should be deterministic: identical (output, context) must
// always produce the same decision.
type Transform[O, T any] func(ctx context.Context, ac *AgentContext, out O) (T, bool)

// edge is the type-erased form of a Transform plus its destination.
type edge struct {
	to        *node
	transform func(ctx context.Context, ac *AgentContext, out any) (any, bool)
}

// Connect adds an unconditional edge. The destination receives the source
// output unchanged.
func Connect[A, T, B any](from NodeRef[A, T], to NodeRef[T, B]) error {
	return ConnectTransform(from, to, func(_ context.Context, _ *AgentContext, out T) (T, bool) {
		return out, true
	})
}

// ConnectIf adds an edge taken only when pred accepts the source output.
//
// Example:
//
//	_ = graph.ConnectIf(check, retry, func(ctx context.Context, ac *graph.AgentContext, ok bool) bool { return !ok })
//	_ = graph.Connect(check, b.Finish())
func ConnectIf[A, T, B any](from NodeRef[A, T], to NodeRef[T, B], pred func(ctx context.Context, ac *AgentContext, out T) bool) error {
	if pred == nil {
		return invalidEdge(from.n, "nil predicate")
	}
	return ConnectTransform(from, to, func(ctx context.Context, ac *AgentContext, out T) (T, bool) {
		return out, pred(ctx, ac, out)
	})
}

// ConnectTransform adds an edge that converts O into T, or suppresses.
//
// Edges of a node are evaluated in the order they were added; the first one
// whose transform does not suppress wins.
//
// Errors:
//   - FINISH_TERMINAL: from is a finish node
//   - GRAPH_FINALIZED: the subgraph was already built
//   - CROSS_GRAPH_EDGE: from and to belong to different builders
//   - INVALID_EDGE: nil transform or zero NodeRef
func ConnectTransform[A, O, T, B any](from NodeRef[A, O], to NodeRef[T, B], tr Transform[O, T]) error {
	if from.n == nil || to.n == nil {
		return invalidEdge(from.n, "zero node reference")
	}
	if tr == nil {
		return invalidEdge(from.n, "nil transform")
	}
	d := from.n.owner
	if from.n.kind == finishNode {
		return newGraphError(ErrFinishNodeTerminal, "FINISH_TERMINAL", d.name, "cannot add edge from finish node %q", from.n.name)
	}
	if d.built {
		return newGraphError(ErrGraphFinalized, "GRAPH_FINALIZED", d.name, "cannot add edge from %q", from.n.name)
	}
	if to.n.owner != d {
		return newGraphError(ErrCrossGraphEdge, "CROSS_GRAPH_EDGE", d.name, "edge %q -> %q crosses subgraphs", from.n.name, to.n.name)
	}

	name := from.n.name + "->" + to.n.name
	from.n.edges = append(from.n.edges, &edge{
		to: to.n,
		transform: func(ctx context.Context, ac *AgentContext, out any) (any, bool) {
			return tr(ctx, ac, mustCast[O](name, out))
		},
	})
	return nil
}

func invalidEdge(from *node, reason string) error {
	sub := ""
	if from != nil && from.owner != nil {
		sub = from.owner.name
	}
	return newGraphError(ErrInvalidEdge, "INVALID_EDGE", sub, "%s", reason)
}

// resolveEdge scans edges in registration order and returns the first edge
// whose transform does not suppress, with the forwarded value.
func (n *node) resolveEdge(ctx context.Context, ac *AgentContext, out any) (*edge, any, bool) {
	for _, e := range n.edges {
		if v, ok := e.transform(ctx, ac, out); ok {
			return e, v, true
		}
	}
	return nil, nil, false
}
