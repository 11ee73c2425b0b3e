package pipeline

import (
	"fmt"
	"sort"
	"sync"
)

// Config carries per-instance stage options from a pipeline definition.
type Config map[string]any

// Factory builds a stage instance from definition config.
type Factory func(cfg Config) (Stage, error)

// Registry maps stage IDs to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a stage factory under the given ID.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("pipeline: stage id is required")
	}
	if factory == nil {
		return fmt.Errorf("pipeline: factory is required for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("pipeline: stage %s already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister panics when registration fails. Used by package-level wiring
// where a failure is a programming error.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Resolve instantiates a stage by ID.
func (r *Registry) Resolve(id string, cfg Config) (Stage, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown stage %s", id)
	}
	stage, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build stage %s: %w", id, err)
	}
	if stage == nil {
		return nil, fmt.Errorf("pipeline: factory for %s returned nil", id)
	}
	return stage, nil
}

// IDs lists the registered stage IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
