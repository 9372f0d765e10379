// Package graph provides the core agent graph model and execution loop for AgentGraph-Go.
package graph

import (
	"errors"
	"fmt"
)

// ErrUnreachableFinish indicates that a subgraph's finish node cannot be
// reached from its start node by following edges. Build reports it before
// any execution happens.
var ErrUnreachableFinish = errors.New("finish node is unreachable from start node")

// ErrFinishNodeTerminal indicates an attempt to add an outgoing edge to a
// finish node. Finish nodes are terminal.
var ErrFinishNodeTerminal = errors.New("finish nodes are terminal")

// ErrGraphFinalized indicates an attempt to modify a subgraph after Build.
var ErrGraphFinalized = errors.New("graph is finalized")

// ErrDuplicateNode indicates two nodes with the same name in one subgraph.
var ErrDuplicateNode = errors.New("duplicate node name")

// ErrCrossGraphEdge indicates an edge between nodes owned by different builders.
var ErrCrossGraphEdge = errors.New("edge connects nodes of different subgraphs")

// ErrInvalidNode indicates a node without an execution function.
var ErrInvalidNode = errors.New("invalid node")

// ErrInvalidEdge indicates an edge with a nil transform or an invalid endpoint.
var ErrInvalidEdge = errors.New("invalid edge")

// ErrMaxIterationsExceeded indicates the run executed more node transitions
// than Config.MaxIterations allows. This prevents runaway agent loops.
var ErrMaxIterationsExceeded = errors.New("execution exceeded maximum iterations limit")

// ErrStuckInNode indicates that none of a node's outgoing edges accepted its output.
var ErrStuckInNode = errors.New("no outgoing edge accepted node output")

// ErrNotActive indicates use of a closed AgentContext, Session, or an
// invalidated IterationState snapshot.
var ErrNotActive = errors.New("not active")

// GraphError reports a construction failure.
//
// Codes: UNREACHABLE_FINISH, FINISH_TERMINAL, GRAPH_FINALIZED, DUPLICATE_NODE,
// CROSS_GRAPH_EDGE, INVALID_EDGE, INVALID_NODE.
//
// Example:
//
//	_, err := b.Build()
//	var gerr *graph.GraphError
//	if errors.As(err, &gerr) && gerr.Code == "UNREACHABLE_FINISH" {
//	    // fix the wiring
//	}
type GraphError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code.
	Code string

	// Subgraph names the subgraph being built.
	Subgraph string

	sentinel error
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	msg := e.Message
	if e.Subgraph != "" {
		msg = "subgraph " + e.Subgraph + ": " + msg
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Unwrap exposes the sentinel so errors.Is(err, ErrUnreachableFinish) works.
func (e *GraphError) Unwrap() error {
	return e.sentinel
}

func newGraphError(sentinel error, code, subgraph, format string, args ...any) *GraphError {
	return &GraphError{
		Message:  fmt.Sprintf(format, args...),
		Code:     code,
		Subgraph: subgraph,
		sentinel: sentinel,
	}
}

// ExecutionError reports a fatal run condition. It is never retried.
//
// Codes: MAX_ITERATIONS_EXCEEDED, STUCK_IN_NODE.
type ExecutionError struct {
	Message string
	Code    string

	// NodeID names the node the run was at when it failed.
	NodeID string

	// Iteration is the counter value that triggered the failure.
	Iteration int

	// Output is the value no edge accepted (STUCK_IN_NODE only).
	Output any

	sentinel error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s (node %q)", e.Code, e.Message, e.NodeID)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *ExecutionError) Unwrap() error {
	return e.sentinel
}

// NodeError represents an error returned by a node's execution function.
type NodeError struct {
	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return "node " + e.NodeID + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
