package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/petal-labs/flowstep"
)

// run is the engine's mutable record of one graph traversal. All fields
// behind mu are updated atomically per step, so a concurrent Snapshot never
// observes a state that does not match its log.
type run struct {
	id      string
	graphID string

	mu      sync.RWMutex
	current string // empty once finished without error
	state   flowstep.State
	log     []flowstep.Step
	status  flowstep.RunStatus
	errMsg  string
}

func newRun(g *flowstep.Graph, initial flowstep.State) *run {
	return &run{
		id:      uuid.New().String(),
		graphID: g.ID,
		current: g.Start,
		state:   initial.Clone(),
		log:     make([]flowstep.Step, 0),
		status:  flowstep.StatusRunning,
	}
}

// currentState returns the live state for the next tool invocation. Only the
// traversal goroutine calls this, but the lock keeps the read coherent with
// concurrent snapshots.
func (r *run) currentState() flowstep.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *run) currentNode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// applyStep commits one successful step: the tool's returned state replaces
// the run state verbatim, a post-step snapshot is appended to the log, and
// the cursor advances to next (empty means terminal).
func (r *run) applyStep(node, tool string, state flowstep.State, next string) {
	if state == nil {
		state = flowstep.State{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.log = append(r.log, flowstep.Step{Node: node, Tool: tool, State: state.Clone()})
	r.current = next
}

func (r *run) finish(status flowstep.RunStatus, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.errMsg = errMsg
}

// RunSnapshot is an immutable copy of a run, safe to retain and serialize.
type RunSnapshot struct {
	RunID       string             `json:"run_id"`
	GraphID     string             `json:"graph_id"`
	CurrentNode string             `json:"current_node,omitempty"`
	State       flowstep.State     `json:"state"`
	Log         []flowstep.Step    `json:"log"`
	Status      flowstep.RunStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
}

// Snapshot returns a point-in-time copy of the run. Log entry states were
// cloned at append time, so sharing the backing entries is safe.
func (r *run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := make([]flowstep.Step, len(r.log))
	copy(log, r.log)

	return RunSnapshot{
		RunID:       r.id,
		GraphID:     r.graphID,
		CurrentNode: r.current,
		State:       r.state.Clone(),
		Log:         log,
		Status:      r.status,
		Error:       r.errMsg,
	}
}
