package db

import (
	"fmt"
	"sort"
	"sync"

	"maskflow/internal/domain"
)

// Factory builds an unconnected Adapter from resolved params.
type Factory func(p Params) (Adapter, error)

// Registry binds backend kinds to adapter factories. It is built once at
// startup and injected; a kind that was never registered is reported as
// KindUnavailable when an adapter is requested.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.BackendKind]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[domain.BackendKind]Factory)}
}

// DefaultRegistry registers every built-in backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.KindSQLServer, NewMSSQL)
	r.Register(domain.KindAzureSQL, NewMSSQL)
	r.Register(domain.KindPostgreSQL, NewPostgres)
	r.Register(domain.KindSQLite, NewSQLite)
	return r
}

// Register binds kind to f, replacing any earlier binding.
func (r *Registry) Register(kind domain.BackendKind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Supports reports whether kind has a registered factory.
func (r *Registry) Supports(kind domain.BackendKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds lists the registered kinds, sorted.
func (r *Registry) Kinds() []domain.BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.BackendKind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds an adapter for p.Kind.
func (r *Registry) New(p Params) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[p.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{
			Kind:    KindUnavailable,
			Op:      "open",
			Backend: p.Kind,
			Detail:  fmt.Sprintf("no adapter registered for backend kind %q", p.Kind),
		}
	}
	return f(p)
}
