package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Kind names a component capability slot.
type Kind string

const (
	KindTransformer Kind = "transformer"
	KindRetriever   Kind = "retriever"
	KindReranker    Kind = "reranker"
)

// Factory builds a component instance from its configuration.
type Factory func(cfg Config) (any, error)

// Registry maps (kind, implementation name) to a factory. It is populated
// once at bootstrap and read concurrently by in-flight requests afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]map[string]Factory
}

func New() *Registry {
	return &Registry{factories: make(map[Kind]map[string]Factory)}
}

func (r *Registry) Register(kind Kind, name string, factory Factory) error {
	if kind == "" || name == "" {
		return fmt.Errorf("registry: kind and name are required")
	}
	if factory == nil {
		return fmt.Errorf("registry: factory for %s/%s is nil", kind, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.factories[kind]
	if !ok {
		byName = make(map[string]Factory)
		r.factories[kind] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("registry: %s/%s already registered", kind, name)
	}
	byName[name] = factory
	return nil
}

func (r *Registry) MustRegister(kind Kind, name string, factory Factory) {
	if err := r.Register(kind, name, factory); err != nil {
		panic(err)
	}
}

// Create instantiates a registered implementation from configuration.
func (r *Registry) Create(kind Kind, name string, cfg Config) (any, error) {
	r.mu.RLock()
	byName, kindKnown := r.factories[kind]
	factory, nameKnown := byName[name]
	r.mu.RUnlock()

	if !kindKnown {
		return nil, domain.WrapError(domain.ErrUnknownComponent, "create", fmt.Errorf("unknown kind %q", kind))
	}
	if !nameKnown {
		return nil, domain.WrapError(domain.ErrUnknownComponent, "create", fmt.Errorf("unknown %s implementation %q", kind, name))
	}

	instance, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s/%s: %w", kind, name, err)
	}
	return instance, nil
}

// List returns the registered implementation names for a kind, sorted.
func (r *Registry) List(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories[kind]))
	for name := range r.factories[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
