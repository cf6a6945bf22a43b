package source

import (
	"context"
	"fmt"
	"sort"

	"ProductScout/internal/domain"
)

// Options tunes a single retrieval call.
type Options struct {
	Limit    int
	Category string
}

// Adapter retrieves mentions from one external source (Reddit, web search, ...).
// Implementations return an empty slice when nothing matches; errors are reserved
// for transport failures.
type Adapter interface {
	Name() string
	Retrieve(ctx context.Context, terms []string, opts Options) ([]domain.Mention, error)
}

// Registry keeps a mapping from adapter names to their implementations.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds or replaces an adapter implementation.
func (r *Registry) Register(adapter Adapter) {
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	r.adapters[adapter.Name()] = adapter
}

// Resolve returns an adapter by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if adapter, ok := r.adapters[name]; ok {
		return adapter, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

// All returns registered adapters ordered by name.
func (r *Registry) All() []Adapter {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		adapters = append(adapters, r.adapters[name])
	}
	return adapters
}
