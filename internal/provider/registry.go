package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/nimbuside/nimbus/pkg/types"
)

// Registry holds one Provider instance per backend type, in registration
// order. Constructed once at process start and passed by reference; there
// is no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. Registering the same name twice is an error;
// one instance per provider type is the invariant the manager relies on.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; ok {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, name)
	}
	return p, nil
}

// Names returns registered provider names in registration order. Probing
// and tie-breaking depend on this order being stable.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns providers in registration order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Capabilities returns the declared capabilities of a provider.
func (r *Registry) Capabilities(name string) (*types.Capabilities, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	caps := p.Capabilities()
	return &caps, nil
}

// HealthCheckAll probes every provider and returns per-provider results.
// Individual failures are captured, not propagated; one unhealthy backend
// must not hide the state of the rest.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, p := range r.All() {
		results[p.Name()] = p.HealthCheck(ctx)
	}
	return results
}

// InitializeAll initializes providers in registration order, stopping at
// the first failure.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, p := range r.All() {
		if err := p.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize provider %s: %w", p.Name(), err)
		}
	}
	return nil
}

// CloseAll closes every provider, returning the first error seen.
func (r *Registry) CloseAll() error {
	var first error
	for _, p := range r.All() {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
