// Package flowstep provides a minimal graph-based workflow executor.
//
// A workflow is a directed graph of named nodes, each bound to a named tool.
// The engine walks the graph from a start node, invoking each node's tool
// against an evolving shared state and recording a step log, until it reaches
// a node with no successor or a step fails.
//
// This package holds the core value types. The execution engine lives in the
// engine subpackage, tool registration in registry, and the HTTP transport
// in server:
//
//	import "github.com/petal-labs/flowstep/engine"
//	import "github.com/petal-labs/flowstep/registry"
//	import "github.com/petal-labs/flowstep/server"
package flowstep

import "context"

// State is the open key-value payload threaded through a run. Keys are
// strings; values are arbitrary JSON-like data. Tools receive the current
// state and return the next one.
type State map[string]any

// Clone returns a shallow copy of the state. Nested values are shared;
// tools that mutate nested structures own the consequences.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Tool is a named transformation from state to state. The returned state
// fully replaces the previous one: the engine performs no merging, so a tool
// must echo forward any keys it does not intend to change. The conventional
// pattern is to Clone the input and set new keys on the copy.
//
// A non-nil error marks the run as failed; the step is not logged.
type Tool func(ctx context.Context, state State) (State, error)
