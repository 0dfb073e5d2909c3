package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/petal-labs/flowstep"
)

// NodeConfig is one node in a create-graph request.
type NodeConfig struct {
	Name string `json:"name"`
	Tool string `json:"tool"`
}

// CreateGraphRequest is the body of POST /graph/create. Edges map a node
// name to its successor, with null marking a terminal node.
type CreateGraphRequest struct {
	Nodes     []NodeConfig       `json:"nodes"`
	Edges     map[string]*string `json:"edges"`
	StartNode string             `json:"start_node"`
}

// CreateGraphResponse is the body of a successful POST /graph/create.
type CreateGraphResponse struct {
	GraphID string `json:"graph_id"`
}

// RunGraphRequest is the body of POST /graph/run.
type RunGraphRequest struct {
	GraphID      string         `json:"graph_id"`
	InitialState flowstep.State `json:"initial_state"`
}

// RunGraphResponse is the body of a successful POST /graph/run.
type RunGraphResponse struct {
	RunID      string             `json:"run_id"`
	GraphID    string             `json:"graph_id"`
	FinalState flowstep.State     `json:"final_state"`
	Log        []flowstep.Step    `json:"log"`
	Status     flowstep.RunStatus `json:"status"`
	Error      *string            `json:"error"`
}

// GetRunStateResponse is the body of GET /graph/state/{run_id}. CurrentNode
// is null once a run has finished without error.
type GetRunStateResponse struct {
	RunID       string             `json:"run_id"`
	GraphID     string             `json:"graph_id"`
	CurrentNode *string            `json:"current_node"`
	State       flowstep.State     `json:"state"`
	Log         []flowstep.Step    `json:"log"`
	Status      flowstep.RunStatus `json:"status"`
	Error       *string            `json:"error"`
}

// ListToolsResponse is the body of GET /tools.
type ListToolsResponse struct {
	Tools []string `json:"tools"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTools returns all registered tool names.
func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ListToolsResponse{Tools: s.engine.Tools().Names()})
}

// handleCreateGraph validates and stores a graph definition.
func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var req CreateGraphRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	nodes := make(map[string]string, len(req.Nodes))
	for _, node := range req.Nodes {
		if _, exists := nodes[node.Name]; exists {
			writeError(w, http.StatusBadRequest, "DUPLICATE_NODE",
				fmt.Sprintf("duplicate node name: %s", node.Name))
			return
		}
		nodes[node.Name] = node.Tool
	}

	g, err := s.engine.CreateGraph(nodes, req.Edges, req.StartNode)
	if err != nil {
		writeError(w, http.StatusBadRequest, validationCode(err), err.Error())
		return
	}

	s.logger.Info("graph created", "graph_id", g.ID, "nodes", len(g.Nodes))
	writeJSON(w, http.StatusCreated, CreateGraphResponse{GraphID: g.ID})
}

// handleRunGraph executes a stored graph to completion and returns the
// terminal run. A failed run is still a 200: traversal failure is data.
func (s *Server) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	var req RunGraphRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	snap, err := s.engine.StartRun(r.Context(), req.GraphID, req.InitialState)
	if err != nil {
		if errors.Is(err, flowstep.ErrGraphNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
		return
	}

	s.logger.Info("run finished", "run_id", snap.RunID, "graph_id", snap.GraphID, "status", snap.Status)
	writeJSON(w, http.StatusOK, RunGraphResponse{
		RunID:      snap.RunID,
		GraphID:    snap.GraphID,
		FinalState: snap.State,
		Log:        snap.Log,
		Status:     snap.Status,
		Error:      optional(snap.Error),
	})
}

// handleGetRunState returns a run snapshot by ID.
func (s *Server) handleGetRunState(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	snap, err := s.engine.GetRun(runID)
	if err != nil {
		if errors.Is(err, flowstep.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, GetRunStateResponse{
		RunID:       snap.RunID,
		GraphID:     snap.GraphID,
		CurrentNode: optional(snap.CurrentNode),
		State:       snap.State,
		Log:         snap.Log,
		Status:      snap.Status,
		Error:       optional(snap.Error),
	})
}

// decodeBody reads and unmarshals a JSON request body, writing the
// appropriate error response on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return false
	}
	return true
}

// validationCode maps graph validation errors onto stable API error codes.
func validationCode(err error) string {
	switch {
	case errors.Is(err, flowstep.ErrDuplicateNode):
		return "DUPLICATE_NODE"
	case errors.Is(err, flowstep.ErrUnknownEdgeNode):
		return "UNKNOWN_EDGE_NODE"
	case errors.Is(err, flowstep.ErrUnknownNextNode):
		return "UNKNOWN_NEXT_NODE"
	case errors.Is(err, flowstep.ErrUnknownStartNode):
		return "INVALID_START_NODE"
	default:
		return "VALIDATION_ERROR"
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
