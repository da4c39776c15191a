// Package tools defines the tool interface the model calls through function
// calling, a thread-safe registry, and the built-in memory and focus tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is one callable exposed to the model.
type Tool interface {
	// Name returns the function-calling name (alphanumeric, underscores).
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Tool-level failures are communicated via
	// Result.IsError so the model can recover; the error return is for
	// infrastructure failures only.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is a tool's output sent back to the model.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Errorf builds an error result.
func Errorf(format string, args ...any) *Result {
	return &Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

// MaxParamsSize bounds tool argument payloads.
const MaxParamsSize = 10 << 20

// Registry manages available tools with thread-safe registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Execute runs a tool by name. Unknown tools and oversized parameters come
// back as error results, not errors, so the model sees them.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	if len(params) > MaxParamsSize {
		return Errorf("tool parameters exceed maximum size of %d bytes", MaxParamsSize), nil
	}
	t, ok := r.Get(name)
	if !ok {
		return Errorf("tool not found: %s", name), nil
	}
	return t.Execute(ctx, params)
}
