package musiclink

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Router is the public entry point for resolution. It dispatches through a Registry and
// falls back to a search on the default streamable platform.
type Router struct {
	registry        *Registry
	defaultPlatform string
	logger          *zap.Logger
}

// NewRouter creates a router. An empty defaultPlatform means YouTube.
func NewRouter(registry *Registry, defaultPlatform string, logger *zap.Logger) *Router {
	if defaultPlatform == "" {
		defaultPlatform = PlatformYouTube
	}
	return &Router{
		registry:        registry,
		defaultPlatform: defaultPlatform,
		logger:          logger,
	}
}

// Registry returns the registry the router dispatches through.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Resolve returns the track for query.
// The first resolver claiming the query decides the outcome; there is no fallback to later resolvers.
// When nothing claims it, the top default-platform search result is returned.
func (r *Router) Resolve(ctx context.Context, query string) (*Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &UnsupportedPlatformError{Query: query}
	}

	if resolver := r.registry.GetResolver(query); resolver != nil {
		r.logger.Debug("Dispatching query",
			zap.String("query", query),
			zap.String("platform", resolver.PlatformName()))
		return resolver.Resolve(ctx, query)
	}

	fallback := r.registry.Lookup(r.defaultPlatform)
	if fallback == nil {
		r.logger.Debug("No resolver and no default platform registered",
			zap.String("query", query),
			zap.String("default_platform", r.defaultPlatform))
		return nil, &UnsupportedPlatformError{Query: query}
	}

	results := fallback.Search(ctx, query, 1)
	if len(results) == 0 {
		return nil, &UnsupportedPlatformError{Query: query}
	}

	r.logger.Debug("Resolved query via fallback search",
		zap.String("query", query),
		zap.String("platform", r.defaultPlatform),
		zap.String("track_id", results[0].ID))
	return results[0], nil
}

// Search always searches the default platform; the registry is not consulted.
// It never fails and returns an empty slice when nothing is found.
func (r *Router) Search(ctx context.Context, query string, limit int) []*Track {
	resolver := r.registry.Lookup(r.defaultPlatform)
	if resolver == nil {
		return []*Track{}
	}
	results := resolver.Search(ctx, query, limit)
	if results == nil {
		return []*Track{}
	}
	return results
}
