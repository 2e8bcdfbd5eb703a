package musiclink

import (
	"sync"
)

// Registry is an ordered collection of resolvers. Registration order is priority.
type Registry struct {
	resolvers []Resolver
	mutex     sync.RWMutex
}

// NewRegistry creates a registry holding the given resolvers in order.
func NewRegistry(resolvers ...Resolver) *Registry {
	r := &Registry{}
	for _, resolver := range resolvers {
		r.Register(resolver)
	}
	return r
}

// Register appends a resolver. Registering a platform twice is legal; the earlier one always wins.
func (r *Registry) Register(resolver Resolver) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resolvers = append(r.resolvers, resolver)
}

// GetResolver returns the first resolver that can handle the query, or nil.
func (r *Registry) GetResolver(query string) Resolver {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, resolver := range r.resolvers {
		if resolver.CanResolve(query) {
			return resolver
		}
	}
	return nil
}

// Lookup returns the first resolver registered under the platform name, or nil.
func (r *Registry) Lookup(platform string) Resolver {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, resolver := range r.resolvers {
		if resolver.PlatformName() == platform {
			return resolver
		}
	}
	return nil
}

// CanResolve checks if any resolver can handle the given query.
func (r *Registry) CanResolve(query string) bool {
	return r.GetResolver(query) != nil
}

// ListPlatforms returns platform names in registration order.
func (r *Registry) ListPlatforms() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	platforms := make([]string, 0, len(r.resolvers))
	for _, resolver := range r.resolvers {
		platforms = append(platforms, resolver.PlatformName())
	}
	return platforms
}
