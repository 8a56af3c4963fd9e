// Package providers holds the adapter registry and the adapter
// implementations behind the engine's fixed resource types.
package providers

import (
	"sync"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// Registry maps resource types to their adapters. It implements
// engine.AdapterRegistry.
type Registry struct {
	mu       sync.RWMutex
	adapters map[engine.ResourceType]engine.Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[engine.ResourceType]engine.Adapter)}
}

// Register binds an adapter to a resource type, replacing any previous
// binding.
func (r *Registry) Register(t engine.ResourceType, a engine.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[t] = a
}

// Adapter implements engine.AdapterRegistry.
func (r *Registry) Adapter(t engine.ResourceType) (engine.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	return a, ok
}

// Types returns the registered resource types.
func (r *Registry) Types() []engine.ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]engine.ResourceType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}
