package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redbco/redb-broker/pkg/config"
)

// StoreRedis is the dialer name for key-value endpoints.
const StoreRedis = "redis"

// Registry manages the registration and retrieval of store dialers.
type Registry struct {
	dialers map[string]Dialer
	mu      sync.RWMutex
}

// NewRegistry creates a new dialer registry.
func NewRegistry() *Registry {
	return &Registry{
		dialers: make(map[string]Dialer),
	}
}

// Register registers a dialer.
// If a dialer with the same name is already registered, it will be replaced.
func (r *Registry) Register(dialer Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dialers[dialer.Name()] = dialer
}

// Get retrieves a registered dialer by store name.
// Returns ErrDialerNotFound if the dialer is not registered.
func (r *Registry) Get(store string) (Dialer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dialer, exists := r.dialers[store]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDialerNotFound, store)
	}

	return dialer, nil
}

// IsRegistered checks if a dialer is registered for the given store.
func (r *Registry) IsRegistered(store string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.dialers[store]
	return exists
}

// ListRegistered returns the sorted names of all registered dialers.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.dialers))
	for name := range r.dialers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a dialer from the registry.
func (r *Registry) Unregister(store string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.dialers, store)
}

// Resolve returns the dialer responsible for an endpoint.
func (r *Registry) Resolve(endpoint config.Endpoint) (Dialer, error) {
	store, err := StoreFor(endpoint)
	if err != nil {
		return nil, err
	}
	return r.Get(store)
}

// Dial opens a client for the endpoint using the registered dialer.
func (r *Registry) Dial(ctx context.Context, endpoint config.Endpoint) (Client, error) {
	dialer, err := r.Resolve(endpoint)
	if err != nil {
		return nil, err
	}
	return dialer.Dial(ctx, endpoint)
}

// StoreFor maps an endpoint onto the name of the dialer that serves it.
func StoreFor(endpoint config.Endpoint) (string, error) {
	kind, ok := endpoint.Kind()
	if !ok {
		return "", NewConfigurationError(endpoint.Address(), "type", fmt.Sprintf("unknown endpoint type: %s", endpoint.Type))
	}
	if kind == config.KindKeyValue {
		return StoreRedis, nil
	}
	return endpoint.DriverName(), nil
}

// globalRegistry is the default global dialer registry.
var globalRegistry = NewRegistry()

// Register registers a dialer in the global registry.
func Register(dialer Dialer) {
	globalRegistry.Register(dialer)
}

// Get retrieves a dialer from the global registry.
func Get(store string) (Dialer, error) {
	return globalRegistry.Get(store)
}

// ListRegistered returns all registered store names from the global registry.
func ListRegistered() []string {
	return globalRegistry.ListRegistered()
}

// GlobalRegistry returns the global dialer registry.
func GlobalRegistry() *Registry {
	return globalRegistry
}
