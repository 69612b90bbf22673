// Package catalog holds the fixed enumeration of storefront business event
// types the webhook engine can deliver.
//
// The builtin types cover the storefront's own events; applications may
// register additional types at boot. Registration is in-process only — the
// catalog is code-defined, not persisted.
package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Definition is the canonical description of a business event type.
type Definition struct {
	// Name is the dot-separated event type name.
	// Convention: "<resource>.<action>" — e.g. "order.created".
	Name string `json:"name"`

	// Description is a human-readable explanation of when this event fires.
	Description string `json:"description"`

	// Schema is an optional JSON Schema describing the payload shape.
	// When set, Enqueue validates the event payload against it.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Example is an optional example payload for documentation and testing.
	Example json.RawMessage `json:"example,omitempty"`
}

// nameShape is the required "<resource>.<action>" form for event type names.
var nameShape = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// Registry is the in-process catalog of known event types.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns a Registry preloaded with the builtin storefront
// event types.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition, len(builtins))}
	for _, def := range builtins {
		r.defs[def.Name] = def
	}
	return r
}

// Register adds an application-defined event type to the catalog. Intended
// for boot time; registering an existing name replaces its definition.
func (r *Registry) Register(def Definition) error {
	if !nameShape.MatchString(def.Name) {
		return fmt.Errorf("catalog: invalid event type name %q (want \"resource.action\")", def.Name)
	}

	r.mu.Lock()
	r.defs[def.Name] = def
	r.mu.Unlock()
	return nil
}

// Known reports whether the event type is in the catalog.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Lookup returns the definition for an event type.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
