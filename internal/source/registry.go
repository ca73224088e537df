package source

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Registry holds the rate-limited adapters keyed by source name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*Limited
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]*Limited)}
}

// Register adds an adapter under its own name, replacing any previous entry.
func (r *Registry) Register(a *Limited) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (*Limited, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, eris.Errorf("source: no adapter registered for %q", name)
	}
	return a, nil
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capable returns the registered adapters that support op, in the order given
// by names. Unknown names are skipped.
func (r *Registry) Capable(names []string, op Capability) []*Limited {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Limited, 0, len(names))
	for _, name := range names {
		a, ok := r.adapters[name]
		if !ok {
			continue
		}
		if Supports(a, op) {
			out = append(out, a)
		}
	}
	return out
}
