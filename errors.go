package flowstep

import "errors"

// Graph validation errors, reported by NewGraph in the order checked.
var (
	ErrDuplicateNode    = errors.New("duplicate node name")
	ErrUnknownEdgeNode  = errors.New("unknown node in edges")
	ErrUnknownNextNode  = errors.New("unknown next node")
	ErrUnknownStartNode = errors.New("start node is not a known node")
)

// Lookup and registration errors.
var (
	ErrGraphNotFound = errors.New("graph not found")
	ErrRunNotFound   = errors.New("run not found")
	ErrDuplicateTool = errors.New("tool already registered")
	ErrUnknownTool   = errors.New("unknown tool")
)
