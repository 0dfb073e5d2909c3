package flowstep

// RunStatus is the terminal (or in-flight) status of a run.
type RunStatus string

const (
	// StatusRunning marks a run whose traversal has not yet terminated.
	StatusRunning RunStatus = "running"

	// StatusSuccess marks a run that reached a terminal node.
	StatusSuccess RunStatus = "success"

	// StatusError marks a run that stopped on an unknown tool, a tool
	// failure, or an unknown next node.
	StatusError RunStatus = "error"

	// StatusAborted marks a run stopped by the step limit or by context
	// cancellation, before reaching a terminal node.
	StatusAborted RunStatus = "aborted"
)

// Step records one executed node: the node name, the tool it ran, and a
// snapshot of the state after the tool returned. A failed tool invocation
// produces no Step.
type Step struct {
	Node  string `json:"node"`
	Tool  string `json:"tool"`
	State State  `json:"state"`
}
