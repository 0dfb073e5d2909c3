package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petal-labs/flowstep"
	"github.com/petal-labs/flowstep/registry"
)

// DefaultMaxSteps bounds traversal when Options.MaxSteps is unset. Graphs
// with cycles would otherwise loop forever, since the executor does no cycle
// detection.
const DefaultMaxSteps = 100

// Options configures an Engine.
type Options struct {
	// MaxSteps caps the number of executed steps per run. Exceeding it
	// terminates the run with StatusAborted. Zero means DefaultMaxSteps;
	// negative disables the guard.
	MaxSteps int

	// EventHandler receives events during execution.
	EventHandler EventHandler

	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time
}

// Engine orchestrates graph creation, run creation, and traversal. It owns
// the in-memory graph and run tables; construct one instance at process
// start and inject it into the transport layer.
type Engine struct {
	tools *registry.Registry
	opts  Options

	graphsMu sync.RWMutex
	graphs   map[string]*flowstep.Graph

	runsMu sync.RWMutex
	runs   map[string]*run
}

// New creates an engine resolving tools against the given registry.
func New(tools *registry.Registry, opts Options) *Engine {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		tools:  tools,
		opts:   opts,
		graphs: make(map[string]*flowstep.Graph),
		runs:   make(map[string]*run),
	}
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *registry.Registry {
	return e.tools
}

// CreateGraph validates and stores a graph definition, returning the stored
// graph. Validation failure stores nothing. The returned graph is shared and
// must be treated as read-only.
func (e *Engine) CreateGraph(nodes map[string]string, edges map[string]*string, start string) (*flowstep.Graph, error) {
	g, err := flowstep.NewGraph(nodes, edges, start)
	if err != nil {
		return nil, err
	}

	e.graphsMu.Lock()
	e.graphs[g.ID] = g
	e.graphsMu.Unlock()

	e.opts.Logger.Debug("graph created", "graph_id", g.ID, "nodes", len(g.Nodes), "start", g.Start)
	return g, nil
}

// Graph returns a stored graph by ID.
func (e *Engine) Graph(id string) (*flowstep.Graph, error) {
	e.graphsMu.RLock()
	defer e.graphsMu.RUnlock()
	g, ok := e.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", flowstep.ErrGraphNotFound, id)
	}
	return g, nil
}

// StartRun executes the identified graph to completion against a copy of
// initial and returns the terminal run snapshot. Traversal runs synchronously
// on the calling goroutine.
//
// Failures during traversal (unknown tool, tool error, unknown next node,
// step limit, cancellation) are captured in the run's status and error
// fields, not returned as a Go error: "run failed" and "call failed" are
// different outcomes. The only error this method returns is an unknown
// graph ID.
func (e *Engine) StartRun(ctx context.Context, graphID string, initial flowstep.State) (RunSnapshot, error) {
	g, err := e.Graph(graphID)
	if err != nil {
		return RunSnapshot{}, err
	}

	r := newRun(g, initial)
	e.runsMu.Lock()
	e.runs[r.id] = r
	e.runsMu.Unlock()

	e.execute(ctx, g, r)
	return r.Snapshot(), nil
}

// GetRun returns a snapshot of a run by ID. The snapshot reflects the run at
// call time; a run observed mid-traversal reports StatusRunning.
func (e *Engine) GetRun(runID string) (RunSnapshot, error) {
	e.runsMu.RLock()
	r, ok := e.runs[runID]
	e.runsMu.RUnlock()
	if !ok {
		return RunSnapshot{}, fmt.Errorf("%w: %q", flowstep.ErrRunNotFound, runID)
	}
	return r.Snapshot(), nil
}

// Runs returns snapshots of all runs, newest data included, in no particular
// order.
func (e *Engine) Runs() []RunSnapshot {
	e.runsMu.RLock()
	defer e.runsMu.RUnlock()
	out := make([]RunSnapshot, 0, len(e.runs))
	for _, r := range e.runs {
		out = append(out, r.Snapshot())
	}
	return out
}

// execute drives the traversal loop for one run.
func (e *Engine) execute(ctx context.Context, g *flowstep.Graph, r *run) {
	runStart := e.opts.Now()
	var seq uint64
	emit := func(ev Event) {
		if e.opts.EventHandler == nil {
			return
		}
		seq++
		ev.Seq = seq
		ev.RunID = r.id
		ev.GraphID = g.ID
		if ev.Time.IsZero() {
			ev.Time = e.opts.Now()
		}
		e.opts.EventHandler(ev)
	}

	emit(Event{
		Kind:    EventRunStarted,
		Time:    runStart,
		Payload: map[string]any{"start": g.Start},
	})

	status, errMsg := e.walk(ctx, g, r, emit)
	r.finish(status, errMsg)

	finish := Event{
		Kind:    EventRunFinished,
		Elapsed: e.opts.Now().Sub(runStart),
		Err:     errMsg,
		Payload: map[string]any{"status": string(status)},
	}
	emit(finish)

	e.opts.Logger.Debug("run finished",
		"run_id", r.id, "graph_id", g.ID, "status", status, "steps", len(r.log))
}

func (e *Engine) walk(ctx context.Context, g *flowstep.Graph, r *run, emit func(Event)) (flowstep.RunStatus, string) {
	steps := 0
	for {
		node := r.currentNode()
		if node == "" {
			return flowstep.StatusSuccess, ""
		}

		if err := ctx.Err(); err != nil {
			return flowstep.StatusAborted, fmt.Sprintf("run canceled: %v", err)
		}
		if e.opts.MaxSteps > 0 && steps >= e.opts.MaxSteps {
			return flowstep.StatusAborted, fmt.Sprintf("step limit %d exceeded before reaching a terminal node", e.opts.MaxSteps)
		}

		toolName := g.Nodes[node]
		tool, err := e.tools.Resolve(toolName)
		if err != nil {
			emit(Event{Kind: EventStepFailed, Node: node, Tool: toolName, Err: err.Error()})
			return flowstep.StatusError, fmt.Sprintf("unknown tool: %s", toolName)
		}

		stepStart := e.opts.Now()
		emit(Event{Kind: EventStepStarted, Node: node, Tool: toolName, Time: stepStart})

		next, err := tool(ctx, r.currentState())
		if err != nil {
			// The step is not logged: state did not transition.
			emit(Event{
				Kind:    EventStepFailed,
				Node:    node,
				Tool:    toolName,
				Elapsed: e.opts.Now().Sub(stepStart),
				Err:     err.Error(),
			})
			return flowstep.StatusError, err.Error()
		}

		successor, hasNext := g.Next(node)
		if hasNext {
			if _, known := g.Nodes[successor]; !known {
				// Only reachable for graphs built outside NewGraph validation.
				r.applyStep(node, toolName, next, node)
				emit(Event{Kind: EventStepFailed, Node: node, Tool: toolName, Err: "unknown next node: " + successor})
				return flowstep.StatusError, fmt.Sprintf("unknown next node: %s", successor)
			}
		} else {
			successor = ""
		}

		r.applyStep(node, toolName, next, successor)
		steps++
		emit(Event{
			Kind:    EventStepFinished,
			Node:    node,
			Tool:    toolName,
			Elapsed: e.opts.Now().Sub(stepStart),
		})

		e.opts.Logger.Debug("step executed", "run_id", r.id, "node", node, "tool", toolName)
	}
}
