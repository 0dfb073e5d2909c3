package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/petal-labs/flowstep"
	"github.com/petal-labs/flowstep/engine"
	"github.com/petal-labs/flowstep/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New()
	if err := registry.RegisterBuiltins(reg); err != nil {
		t.Fatalf("registering builtins: %v", err)
	}
	if err := reg.Register("fail", func(_ context.Context, _ flowstep.State) (flowstep.State, error) {
		return nil, fmt.Errorf("tool blew up")
	}); err != nil {
		t.Fatalf("registering fail tool: %v", err)
	}
	eng := engine.New(reg, engine.Options{Logger: slog.New(slog.DiscardHandler)})
	return New(Config{Engine: eng, Logger: slog.New(slog.DiscardHandler)})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeResponse[apiError](t, rec).Error.Code
}

func createEchoGraph(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/graph/create", CreateGraphRequest{
		Nodes: []NodeConfig{
			{Name: "a", Tool: "echo"},
			{Name: "b", Tool: "echo"},
		},
		Edges:     map[string]*string{"a": strPtr("b")},
		StartNode: "a",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create graph status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeResponse[CreateGraphResponse](t, rec).GraphID
}

func strPtr(s string) *string { return &s }

func TestHealth(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeResponse[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status ok", body)
	}
}

func TestListTools(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doJSON(t, h, http.MethodGet, "/tools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse[ListToolsResponse](t, rec)
	want := map[string]bool{"echo": false, "extract_functions": false, "count_lines": false}
	for _, name := range resp.Tools {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q missing from %v", name, resp.Tools)
		}
	}
}

func TestCreateGraph(t *testing.T) {
	h := newTestServer(t).Handler()
	id := createEchoGraph(t, h)
	if id == "" {
		t.Error("expected non-empty graph_id")
	}
}

func TestCreateGraph_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      CreateGraphRequest
		wantCode string
	}{
		{
			name: "duplicate node",
			req: CreateGraphRequest{
				Nodes:     []NodeConfig{{Name: "a", Tool: "echo"}, {Name: "a", Tool: "echo"}},
				StartNode: "a",
			},
			wantCode: "DUPLICATE_NODE",
		},
		{
			name: "unknown edge source",
			req: CreateGraphRequest{
				Nodes:     []NodeConfig{{Name: "a", Tool: "echo"}},
				Edges:     map[string]*string{"ghost": strPtr("a")},
				StartNode: "a",
			},
			wantCode: "UNKNOWN_EDGE_NODE",
		},
		{
			name: "unknown edge target",
			req: CreateGraphRequest{
				Nodes:     []NodeConfig{{Name: "a", Tool: "echo"}},
				Edges:     map[string]*string{"a": strPtr("ghost")},
				StartNode: "a",
			},
			wantCode: "UNKNOWN_NEXT_NODE",
		},
		{
			name: "unknown start node",
			req: CreateGraphRequest{
				Nodes:     []NodeConfig{{Name: "a", Tool: "echo"}},
				StartNode: "ghost",
			},
			wantCode: "INVALID_START_NODE",
		},
	}

	h := newTestServer(t).Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/graph/create", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.wantCode {
				t.Errorf("error code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestCreateGraph_BadJSON(t *testing.T) {
	h := newTestServer(t).Handler()
	req := httptest.NewRequest(http.MethodPost, "/graph/create", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errorCode(t, rec); got != "PARSE_ERROR" {
		t.Errorf("error code = %q, want PARSE_ERROR", got)
	}
}

func TestRunGraph(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	graphID := createEchoGraph(t, h)

	rec := doJSON(t, h, http.MethodPost, "/graph/run", RunGraphRequest{
		GraphID:      graphID,
		InitialState: map[string]any{"code": "def f(): pass"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse[RunGraphResponse](t, rec)
	if resp.Status != "success" {
		t.Errorf("status = %q, want success (error %v)", resp.Status, resp.Error)
	}
	if len(resp.Log) != 2 {
		t.Errorf("log length = %d, want 2", len(resp.Log))
	}
	if resp.FinalState["code"] != "def f(): pass" {
		t.Errorf("final state = %v", resp.FinalState)
	}
	if resp.Error != nil {
		t.Errorf("error = %v, want null", *resp.Error)
	}

	// The run is retrievable afterwards and reports no current node.
	stateRec := doJSON(t, h, http.MethodGet, "/graph/state/"+resp.RunID, nil)
	if stateRec.Code != http.StatusOK {
		t.Fatalf("state status = %d", stateRec.Code)
	}
	state := decodeResponse[GetRunStateResponse](t, stateRec)
	if state.RunID != resp.RunID || state.Status != "success" {
		t.Errorf("state = %+v", state)
	}
	if state.CurrentNode != nil {
		t.Errorf("current_node = %q, want null", *state.CurrentNode)
	}
}

func TestRunGraph_FailedRunIsStill200(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/graph/create", CreateGraphRequest{
		Nodes:     []NodeConfig{{Name: "a", Tool: "fail"}},
		StartNode: "a",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	graphID := decodeResponse[CreateGraphResponse](t, rec).GraphID

	runRec := doJSON(t, h, http.MethodPost, "/graph/run", RunGraphRequest{GraphID: graphID})
	if runRec.Code != http.StatusOK {
		t.Fatalf("run status = %d, want 200 even for a failed run", runRec.Code)
	}
	resp := decodeResponse[RunGraphResponse](t, runRec)
	if resp.Status != "error" {
		t.Errorf("status = %q, want error", resp.Status)
	}
	if resp.Error == nil || *resp.Error != "tool blew up" {
		t.Errorf("error = %v, want tool blew up", resp.Error)
	}
	if len(resp.Log) != 0 {
		t.Errorf("log length = %d, want 0", len(resp.Log))
	}
}

func TestRunGraph_UnknownGraph(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doJSON(t, h, http.MethodPost, "/graph/run", RunGraphRequest{GraphID: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := errorCode(t, rec); got != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", got)
	}
}

func TestGetRunState_UnknownRun(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doJSON(t, h, http.MethodGet, "/graph/state/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := errorCode(t, rec); got != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", got)
	}
}

func TestBodyLimit(t *testing.T) {
	reg := registry.New()
	eng := engine.New(reg, engine.Options{Logger: slog.New(slog.DiscardHandler)})
	srv := New(Config{Engine: eng, MaxBody: 64, Logger: slog.New(slog.DiscardHandler)})
	h := srv.Handler()

	big := strings.Repeat("x", 1024)
	req := httptest.NewRequest(http.MethodPost, "/graph/create", strings.NewReader(`{"start_node":"`+big+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if got := errorCode(t, rec); got != "BODY_TOO_LARGE" {
		t.Errorf("error code = %q, want BODY_TOO_LARGE", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/graph/create", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
