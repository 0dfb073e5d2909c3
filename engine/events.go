// Package engine provides the execution engine for flowstep workflow graphs.
package engine

import "time"

// EventKind identifies the type of event emitted by the engine.
type EventKind string

const (
	// EventRunStarted is emitted when a graph run begins.
	EventRunStarted EventKind = "run.started"

	// EventStepStarted is emitted when a node's tool begins execution.
	EventStepStarted EventKind = "step.started"

	// EventStepFinished is emitted when a node's tool completes successfully.
	EventStepFinished EventKind = "step.finished"

	// EventStepFailed is emitted when a node's tool returns an error or the
	// bound tool cannot be resolved.
	EventStepFailed EventKind = "step.failed"

	// EventRunFinished is emitted when traversal terminates, whatever the
	// terminal status.
	EventRunFinished EventKind = "run.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured record of what happened during execution. Events
// carry names and timings only; state snapshots stay on the run log.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this run.
	RunID string

	// GraphID is the graph being traversed.
	GraphID string

	// Node is the node that produced this event (empty for run-level events).
	Node string

	// Tool is the tool bound to the node (empty for run-level events).
	Tool string

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the run or step started.
	Elapsed time.Duration

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// Err holds the failure message for step.failed and failed run.finished
	// events.
	Err string

	// Payload contains event-specific data such as the terminal status.
	Payload map[string]any
}

// EventHandler receives events during execution. Handlers run synchronously
// on the traversal goroutine and should return quickly.
type EventHandler func(Event)

// CombineHandlers fans one event out to several handlers in order. Nil
// handlers are skipped.
func CombineHandlers(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}
