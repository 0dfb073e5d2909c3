package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeTemp(t, "review.yaml", `
name: review
nodes:
  extract: extract_functions
  style: check_style
edges:
  extract: style
  style: null
start_node: extract
`)

	gf, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if gf.Name != "review" {
		t.Errorf("Name = %q, want review", gf.Name)
	}
	if gf.Nodes["extract"] != "extract_functions" {
		t.Errorf("Nodes[extract] = %q", gf.Nodes["extract"])
	}
	if gf.StartNode != "extract" {
		t.Errorf("StartNode = %q", gf.StartNode)
	}
	if to := gf.Edges["extract"]; to == nil || *to != "style" {
		t.Errorf("Edges[extract] = %v, want style", to)
	}
	if to, ok := gf.Edges["style"]; !ok || to != nil {
		t.Errorf("Edges[style] = %v, %v, want explicit null", to, ok)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeTemp(t, "graph.json", `{
  "nodes": {"a": "echo", "b": "echo"},
  "edges": {"a": "b", "b": null},
  "start_node": "a"
}`)

	gf, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(gf.Nodes) != 2 {
		t.Errorf("node count = %d, want 2", len(gf.Nodes))
	}
	if gf.StartNode != "a" {
		t.Errorf("StartNode = %q, want a", gf.StartNode)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
	}{
		{"bad yaml", "x.yaml", ":\n:"},
		{"bad json", "x.json", "{"},
		{"no nodes", "x.json", `{"edges": {}, "start_node": "a"}`},
		{"no start", "x.yaml", "nodes:\n  a: echo\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content), tt.path); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}
