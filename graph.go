package flowstep

import (
	"fmt"

	"github.com/google/uuid"
)

// Graph is an immutable, validated workflow definition. Nodes map node names
// to tool names; Edges map a node to its single successor. A node absent from
// Edges is terminal. Graphs are only constructed through NewGraph and must
// not be mutated afterwards.
type Graph struct {
	ID    string            `json:"id"`
	Nodes map[string]string `json:"nodes"`
	Edges map[string]string `json:"edges"`
	Start string            `json:"start_node"`
}

// NewGraph validates the definition and returns a Graph with a freshly
// generated ID. Edge targets may be nil, meaning the source node is terminal;
// nil targets are normalized away so that terminality is always expressed by
// an absent Edges key.
//
// Tool names bound to nodes are deliberately not validated here: resolution
// is deferred to run time, so graphs may be authored before all of their
// tools exist.
func NewGraph(nodes map[string]string, edges map[string]*string, start string) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: graph has no nodes", ErrUnknownStartNode)
	}

	for from, to := range edges {
		if _, ok := nodes[from]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEdgeNode, from)
		}
		if to != nil {
			if _, ok := nodes[*to]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownNextNode, *to)
			}
		}
	}

	if _, ok := nodes[start]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStartNode, start)
	}

	g := &Graph{
		ID:    uuid.New().String(),
		Nodes: make(map[string]string, len(nodes)),
		Edges: make(map[string]string, len(edges)),
		Start: start,
	}
	for name, tool := range nodes {
		g.Nodes[name] = tool
	}
	for from, to := range edges {
		if to != nil {
			g.Edges[from] = *to
		}
	}
	return g, nil
}

// Next returns the successor of the given node. The second return value is
// false when the node is terminal.
func (g *Graph) Next(node string) (string, bool) {
	next, ok := g.Edges[node]
	return next, ok
}
