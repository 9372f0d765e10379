package graph

import (
	"context"
	"fmt"
)

type nodeKind int

const (
	regularNode nodeKind = iota
	startNode
	finishNode
	subgraphNode
)

// Reserved name prefixes for the start and finish nodes of a subgraph.
const (
	StartPrefix  = "__start__"
	FinishPrefix = "__finish__"
)

// node is the type-erased representation stored in a subgraph.
// Typed values cross this boundary only through NodeRef and Transform
// wrappers; a failed assertion inside them is an invariant violation.
type node struct {
	name  string
	kind  nodeKind
	owner *graphDef
	run   func(ctx context.Context, ac *AgentContext, in any) (any, error)
	edges []*edge
}

// NodeRef is a typed handle to a node accepting I and producing O.
//
// NodeRefs are returned by AddNode, AddSubgraph and the builder's Start and
// Finish methods, and are used to wire edges with Connect and friends.
type NodeRef[I, O any] struct {
	n *node
}

// Name returns the node's name, or "" for the zero NodeRef.
func (r NodeRef[I, O]) Name() string {
	if r.n == nil {
		return ""
	}
	return r.n.name
}

// Graph is implemented by *SubgraphBuilder. It is the target of AddNode,
// AddSubgraph and the built-in node constructors.
type Graph interface {
	def() *graphDef
}

// AddNode adds a node named name whose execution function is fn.
//
// Names must be unique within the subgraph and must not use the reserved
// start/finish prefixes; violations are reported by Build. AddNode on a
// built subgraph is reported by Build as well.
//
// Example:
//
//	upper := graph.AddNode(b, "upper", func(ctx context.Context, ac *graph.AgentContext, in string) (string, error) {
//	    return strings.ToUpper(in), nil
//	})
func AddNode[I, O any](g Graph, name string, fn func(ctx context.Context, ac *AgentContext, in I) (O, error)) NodeRef[I, O] {
	d := g.def()
	if fn == nil {
		d.record(newGraphError(ErrInvalidNode, "INVALID_NODE", d.name, "node %q has no function", name))
		return NodeRef[I, O]{}
	}
	n := &node{
		name:  name,
		kind:  regularNode,
		owner: d,
		run: func(ctx context.Context, ac *AgentContext, in any) (any, error) {
			return fn(ctx, ac, mustCast[I](name, in))
		},
	}
	if !d.add(n) {
		return NodeRef[I, O]{}
	}
	return NodeRef[I, O]{n: n}
}

// AddSubgraph embeds a built subgraph as a node of g.
//
// The node is named after the subgraph. Each call creates a distinct node,
// so the same subgraph may be embedded in several places under different
// enclosing builders.
func AddSubgraph[I, O any](g Graph, sub *Subgraph[I, O]) NodeRef[I, O] {
	d := g.def()
	n := &node{
		name:  sub.Name(),
		kind:  subgraphNode,
		owner: d,
		run: func(ctx context.Context, ac *AgentContext, in any) (any, error) {
			return sub.def.execute(ctx, ac, in)
		},
	}
	if !d.add(n) {
		return NodeRef[I, O]{}
	}
	return NodeRef[I, O]{n: n}
}

func identity(_ context.Context, _ *AgentContext, in any) (any, error) {
	return in, nil
}

// mustCast asserts a value crossing the erased storage boundary. Typed
// wiring guarantees the assertion holds, so a failure panics.
func mustCast[T any](where string, v any) T {
	if v == nil {
		var zero T
		return zero
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("graph: internal type mismatch at %q: got %T, want %T", where, v, zero))
	}
	return t
}
