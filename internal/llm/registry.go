package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrProviderNotRegistered is returned when a workflow names a provider that
// no backend has been registered for.
var ErrProviderNotRegistered = errors.New("llm: provider is not registered")

// Factory builds a Client bound to the given model.
type Factory func(ctx context.Context, model string) (Client, error)

// Registry maps provider names to backend factories. Adding a backend is a
// registration, not a new conditional in the executor.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Register adds or replaces the factory for a provider name.
func (r *Registry) Register(provider string, f Factory) {
	key := normalizeProvider(provider)
	if key == "" || f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// Has reports whether a factory is registered for the provider.
func (r *Registry) Has(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[normalizeProvider(provider)]
	return ok
}

// Providers lists registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build creates a client for provider/model.
func (r *Registry) Build(ctx context.Context, provider, model string) (Client, error) {
	r.mu.RLock()
	f, ok := r.factories[normalizeProvider(provider)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, provider)
	}
	return f(ctx, model)
}
