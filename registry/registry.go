// Package registry provides the process-wide tool registry for flowstep.
// It maps tool names to callable state transformations used by the engine,
// the server API, and the CLI.
package registry

import (
	"fmt"
	"sync"

	"github.com/petal-labs/flowstep"
)

// Registry holds all registered tools. The zero value is not usable; create
// instances with New. Registries are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]flowstep.Tool
	order []string // preserves registration order
}

// New creates an empty tool registry.
func New() *Registry {
	return &Registry{
		tools: make(map[string]flowstep.Tool),
	}
}

// Register adds a name-to-tool binding. Rebinding an existing name is
// rejected with flowstep.ErrDuplicateTool rather than silently overwritten.
func (r *Registry) Register(name string, tool flowstep.Tool) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool == nil {
		return fmt.Errorf("tool %q: function is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", flowstep.ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the tool bound to the given name.
func (r *Registry) Resolve(name string) (flowstep.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", flowstep.ErrUnknownTool, name)
	}
	return tool, nil
}

// Has returns true if the name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
