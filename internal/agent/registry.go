package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Registry maps capability names to agent factories. Registration is
// validated against the catalog so the planner can never select a capability
// nobody implements.
type Registry struct {
	mu        sync.RWMutex
	catalog   *Catalog
	factories map[string]Factory
}

// NewRegistry creates a registry bound to the given catalog.
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{
		catalog:   catalog,
		factories: make(map[string]Factory),
	}
}

// Register binds a factory to a catalog capability. Registering a capability
// the catalog does not list, or registering twice, is a startup error.
func (r *Registry) Register(capability string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.catalog.Get(capability); !ok {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("capability %q is not in the catalog", capability))
	}
	if _, dup := r.factories[capability]; dup {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("capability %q already registered", capability))
	}
	r.factories[capability] = factory
	return nil
}

// Create instantiates a fresh agent for the capability.
func (r *Registry) Create(capability string) (Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[capability]
	r.mu.RUnlock()

	if !ok {
		return nil, types.NewError(types.PLANNING_NO_CAPABILITY,
			fmt.Sprintf("no agent registered for capability %q", capability))
	}
	return factory()
}

// Capabilities returns the registered capability names in catalog order.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, name := range r.catalog.Names() {
		if _, ok := r.factories[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Catalog returns the catalog this registry validates against.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Health reports degraded when catalog capabilities lack a registered agent.
func (r *Registry) Health(ctx context.Context) types.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, name := range r.catalog.Names() {
		if _, ok := r.factories[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return types.Healthy("all catalog capabilities registered")
	}
	return types.Degraded(fmt.Sprintf("unregistered capabilities: %v", missing))
}
