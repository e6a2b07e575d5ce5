package tool

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Registry is the immutable capability set shared by all sessions. Tools are
// registered once at construction time; afterwards the registry is read-only
// and therefore safe for unguarded concurrent lookups.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry builds a registry from the given tools. A tool with an invalid
// parameter schema is rejected so misconfiguration surfaces at startup rather
// than mid-conversation; duplicate names are rejected for the same reason.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*gojsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		r.tools[t.Name()] = t
		if params := t.Parameters(); params != nil {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
			if err != nil {
				return nil, fmt.Errorf("tool %q has invalid parameter schema: %w", t.Name(), err)
			}
			r.schemas[t.Name()] = schema
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error. Intended for wiring code
// where the tool set is static.
func MustRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// Names returns the registered tool names sorted ascending.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered tools in name order.
func (r *Registry) Tools() []Tool {
	names := r.Names()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// validate checks decoded arguments against the tool's schema. Tools without
// a schema accept anything.
func (r *Registry) validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return &ValidationError{Field: first.Field(), Message: first.Description()}
	}
	return nil
}
