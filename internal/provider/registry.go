package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
)

// Factory builds one adapter from its shared dependencies.
type Factory func(deps Deps) (Adapter, error)

// Registry maps provider types to adapter factories. Adapters are
// constructed once on first lookup and reused for the process lifetime.
type Registry struct {
	deps Deps

	mu        sync.Mutex
	factories map[config.ProviderType]Factory
	adapters  map[config.ProviderType]Adapter
}

// NewRegistry creates an empty registry with shared adapter dependencies.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:      deps,
		factories: make(map[config.ProviderType]Factory),
		adapters:  make(map[config.ProviderType]Adapter),
	}
}

// Register installs a factory for a provider type. Registering the same
// type twice is a programming error.
func (r *Registry) Register(t config.ProviderType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[t]; dup {
		panic(fmt.Sprintf("provider: duplicate registration for %s", t))
	}
	r.factories[t] = factory
}

// Adapter returns the adapter for a provider type, constructing it on
// first use.
func (r *Registry) Adapter(t config.ProviderType) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[t]; ok {
		return a, nil
	}
	factory, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("provider: no adapter registered for %q", t)
	}
	a, err := factory(r.deps)
	if err != nil {
		return nil, fmt.Errorf("provider: build %s adapter: %w", t, err)
	}
	r.adapters[t] = a
	return a, nil
}

// Types returns the registered provider types in stable order.
func (r *Registry) Types() []config.ProviderType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]config.ProviderType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
