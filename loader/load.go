// Package loader reads graph definition files for the flowstep CLI.
// It supports the same definition shape in JSON and YAML.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"encoding/json"

	"gopkg.in/yaml.v3"
)

// GraphFile is the on-disk graph definition shape:
//
//	name: review
//	nodes:
//	  extract: extract_functions
//	  style: check_style
//	edges:
//	  extract: style
//	  style: null
//	start_node: extract
//
// Edge targets may be null or omitted, both meaning the node is terminal.
type GraphFile struct {
	Name      string             `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes     map[string]string  `json:"nodes" yaml:"nodes"`
	Edges     map[string]*string `json:"edges" yaml:"edges"`
	StartNode string             `json:"start_node" yaml:"start_node"`
}

// Load reads and parses a graph definition file. The format is chosen by
// extension: .yaml/.yml parse as YAML, everything else as JSON.
func Load(path string) (*GraphFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses graph definition bytes, using the path only for format
// detection and error messages.
func Parse(data []byte, path string) (*GraphFile, error) {
	var gf GraphFile
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("parsing JSON %s: %w", path, err)
		}
	}

	if len(gf.Nodes) == 0 {
		return nil, fmt.Errorf("%s: graph file defines no nodes", path)
	}
	if strings.TrimSpace(gf.StartNode) == "" {
		return nil, fmt.Errorf("%s: start_node is required", path)
	}
	return &gf, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
