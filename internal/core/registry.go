package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the operation definitions available to the engine.
//
// It is constructed once at startup and passed by reference to the
// orchestrator and web layer. Definitions are looked up fresh on every
// call so a session never has to serialize a callback.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]OperationDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]OperationDefinition)}
}

// Register adds an operation definition.
// Panics if a definition with the same ref is already registered.
func (r *Registry) Register(def OperationDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Ref]; exists {
		panic(fmt.Sprintf("operation already registered: %s", def.Ref))
	}

	r.defs[def.Ref] = def
}

// Get returns an operation definition by ref.
// Returns false if not found.
func (r *Registry) Get(ref string) (OperationDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[ref]
	return def, ok
}

// All returns all registered definitions.
// Sorted by kind then by ref for consistent ordering.
func (r *Registry) All() []OperationDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]OperationDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].Ref < result[j].Ref
	})

	return result
}

// ByKind returns all definitions of one kind, sorted by ref.
func (r *Registry) ByKind(kind Kind) []OperationDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []OperationDefinition
	for _, def := range r.defs {
		if def.Kind == kind {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Ref < result[j].Ref
	})

	return result
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
