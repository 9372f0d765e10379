package tool

import (
	"fmt"
	"sync"

	"github.com/dshills/agentgraph-go/graph/model"
)

// Registry is an ordered name→tool lookup.
//
// The agent core only uses it to narrow which tools a subgraph may see;
// invoking tools is the job of an Environment.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Tool
	specs   map[string]model.ToolSpec
	schemas map[string]*Schema
}

// NewRegistry creates a registry holding the given tools in order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool),
		specs:   make(map[string]model.ToolSpec),
		schemas: make(map[string]*Schema),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique and the tool's schema must
// compile.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool: cannot register unnamed tool")
	}
	spec := SpecOf(t)
	schema, err := CompileSchema(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool: duplicate tool name %q", name)
	}
	r.order = append(r.order, name)
	r.tools[name] = t
	r.specs[name] = spec
	r.schemas[name] = schema
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Descriptor returns the ToolSpec registered under name.
func (r *Registry) Descriptor(name string) (model.ToolSpec, bool) {
	if r == nil {
		return model.ToolSpec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Schema returns the compiled input schema of the tool registered under name.
func (r *Registry) Schema(name string) (*Schema, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Descriptors returns every ToolSpec in registration order.
func (r *Registry) Descriptors() []model.ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Select returns the descriptors for names, in the order given.
// Unknown names are reported in the error and skipped.
func (r *Registry) Select(names []string) ([]model.ToolSpec, error) {
	out := make([]model.ToolSpec, 0, len(names))
	var unknown []string
	for _, name := range names {
		spec, ok := r.Descriptor(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, spec)
	}
	if len(unknown) > 0 {
		return out, fmt.Errorf("tool: unknown tools %v", unknown)
	}
	return out, nil
}
