package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"transitions-api-go/services/transitions"
)

// Provider defines the interface that all generation backends must implement
type Provider interface {
	// Name returns the provider's identifier (e.g., "musicgen", "stable-audio", "fal")
	Name() string

	// Available reports why the provider cannot be used right now, or nil.
	// It must not perform network calls; a missing API key is the usual reason.
	Available() error

	// Generate produces audio for the resolved request.
	// Failures are *transitions.Error values attributed to this provider.
	Generate(ctx context.Context, req transitions.Resolved) ([]byte, error)
}

// Registry holds all registered providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, replacing any provider with the same name
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return p, nil
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has checks if a provider is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}
