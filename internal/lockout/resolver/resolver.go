// Package resolver maps identifier strings (the value of the configured
// login field) to concrete subjects. One resolver is registered per subject
// kind; the identifier-to-subject strategy is fixed: a single configurable
// login field, resolved through the kind's own store.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"lockgate/internal/lockout/models"
)

// KindResolver resolves identifiers for one subject kind.
// A nil subject with a nil error means "not found".
type KindResolver interface {
	FindByIdentifier(ctx context.Context, identifier string) (models.Subject, error)
}

// Registry maps subject kinds to their resolvers. Bare identifiers resolve
// through the default kind.
type Registry struct {
	mu          sync.RWMutex
	byKind      map[string]KindResolver
	defaultKind string
}

func NewRegistry(defaultKind string) *Registry {
	return &Registry{
		byKind:      make(map[string]KindResolver),
		defaultKind: defaultKind,
	}
}

// Register adds a resolver for a kind, replacing any previous one.
func (r *Registry) Register(kind string, resolver KindResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = resolver
}

// Resolve looks up an identifier under the default kind.
func (r *Registry) Resolve(ctx context.Context, identifier string) (models.Subject, error) {
	return r.ResolveKind(ctx, r.defaultKind, identifier)
}

// ResolveKind looks up an identifier under an explicit kind.
func (r *Registry) ResolveKind(ctx context.Context, kind, identifier string) (models.Subject, error) {
	r.mu.RLock()
	resolver, ok := r.byKind[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no resolver registered for subject kind %q", kind)
	}
	return resolver.FindByIdentifier(ctx, identifier)
}
