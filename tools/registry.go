// Tool registry: the set of tools offered to the oracle.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Offer order is registration order, so tool definitions are stable
//   across replays

package tools

import (
	"fmt"
	"sync"

	"github.com/richinex/spindle/llm"
)

// Registry holds tools by name, preserving registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Default returns a registry offering only the research tool.
func Default() *Registry {
	r := NewRegistry()
	_ = r.Register(NewResearchTool())
	return r
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns metadata for all registered tools in registration order.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, len(r.order))
	for _, name := range r.order {
		metadata = append(metadata, r.tools[name].Metadata())
	}
	return metadata
}

// Definitions returns the tool definitions offered to the oracle.
func (r *Registry) Definitions() []llm.ToolDefinition {
	metas := r.List()
	defs := make([]llm.ToolDefinition, len(metas))
	for i, m := range metas {
		defs[i] = m.Definition()
	}
	return defs
}
