package towersdk

import (
	"maps"
	"sync"
)

// EndpointRegistry maps logical API names ("groups", "users", ...) to absolute
// URLs. Entries are only ever added: once a name is resolved it keeps its URL
// for the life of the registry.
type EndpointRegistry struct {
	mu        sync.RWMutex
	endpoints map[string]string
}

// NewEndpointRegistry returns an empty registry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{
		endpoints: make(map[string]string),
	}
}

// Lookup returns the URL cached for name.
func (r *EndpointRegistry) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.endpoints[name]
	return u, ok
}

// StoreIfAbsent caches url under name unless name is already present, and
// returns the URL the registry holds for name afterwards.
func (r *EndpointRegistry) StoreIfAbsent(name, url string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.endpoints[name]; ok {
		return existing
	}
	r.endpoints[name] = url
	return url
}

// Len returns the number of cached endpoints.
func (r *EndpointRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Snapshot returns a copy of the cached endpoints.
func (r *EndpointRegistry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.endpoints)
}
