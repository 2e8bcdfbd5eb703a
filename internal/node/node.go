// Package node ties the resolution pipeline to its caches and to the playback engine.
package node

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"spence/internal/store"
	"spence/pkg/musiclink"
	"spence/pkg/text"
)

// Cache tiers reported to the Recorder.
const (
	TierMemory = "memory"
	TierStore  = "store"
)

// ErrNoEngine is returned by CreatePlayer when the node was built without a playback engine.
var ErrNoEngine = errors.New("no playback engine configured")

// Router resolves and searches queries. *musiclink.Router implements it.
type Router interface {
	Resolve(ctx context.Context, query string) (*musiclink.Track, error)
	Search(ctx context.Context, query string, limit int) []*musiclink.Track
}

// TrackStore is the persistent second cache tier. *store.TrackStore implements it.
type TrackStore interface {
	Get(ctx context.Context, query string) (*store.StoredTrack, bool, error)
	Put(ctx context.Context, query string, track *musiclink.Track) error
	Ping(ctx context.Context) error
}

// Recorder receives resolution telemetry.
type Recorder interface {
	CacheHit(tier string)
	CacheMiss()
	Resolution(platform string, duration time.Duration, err error)
	SearchResults(count int)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)                         {}
func (nopRecorder) CacheMiss()                              {}
func (nopRecorder) Resolution(string, time.Duration, error) {}
func (nopRecorder) SearchResults(int)                       {}

// Option configures a Node.
type Option func(*Node)

// WithTrackStore adds a persistent cache tier behind the in-memory cache.
func WithTrackStore(trackStore TrackStore) Option {
	return func(n *Node) {
		n.store = trackStore
	}
}

// WithEngine sets the playback engine used by CreatePlayer.
func WithEngine(engine Engine) Option {
	return func(n *Node) {
		n.engine = engine
	}
}

// WithRecorder sets the telemetry sink.
func WithRecorder(recorder Recorder) Option {
	return func(n *Node) {
		n.recorder = recorder
	}
}

// Node resolves queries through the cache tiers and the router and creates players.
type Node struct {
	router   Router
	cache    *store.ResolutionCache
	store    TrackStore
	engine   Engine
	recorder Recorder
	logger   *zap.Logger
}

// New creates a node. cache must not be nil.
func New(router Router, cache *store.ResolutionCache, logger *zap.Logger, opts ...Option) *Node {
	n := &Node{
		router:   router,
		cache:    cache,
		recorder: nopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Resolve returns the track for query, consulting the memory cache, then the track store, then the router.
// The query is canonicalized first, so a pasted share message and its bare link share a cache entry.
// Failed resolutions are never cached.
func (n *Node) Resolve(ctx context.Context, query string) (*musiclink.Track, error) {
	key := text.CanonicalQuery(query)

	if track, ok := n.cache.Get(key); ok {
		n.recorder.CacheHit(TierMemory)
		return track, nil
	}

	if n.store != nil && key != "" {
		stored, ok, err := n.store.Get(ctx, key)
		switch {
		case err != nil:
			n.logger.Warn("Track store read failed", zap.String("query", key), zap.Error(err))
		case ok:
			n.recorder.CacheHit(TierStore)
			n.cache.SetAt(key, stored.Track, stored.StoredAt)
			return stored.Track, nil
		}
	}

	n.recorder.CacheMiss()
	start := time.Now()
	track, err := n.router.Resolve(ctx, key)
	n.recorder.Resolution(resolutionPlatform(track, err), time.Since(start), err)
	if err != nil {
		n.logger.Debug("Resolution failed", zap.String("query", key), zap.Error(err))
		var unsupported *musiclink.UnsupportedPlatformError
		if errors.As(err, &unsupported) {
			// Name what the caller asked for, not the canonical key.
			return nil, &musiclink.UnsupportedPlatformError{Query: query}
		}
		return nil, err
	}

	n.cache.Set(key, track)
	if n.store != nil {
		if err := n.store.Put(ctx, key, track); err != nil {
			n.logger.Warn("Track store write failed", zap.String("query", key), zap.Error(err))
		}
	}

	n.logger.Info("Resolved track",
		zap.String("query", key),
		zap.String("platform", track.Platform),
		zap.String("track_id", track.ID),
		zap.Duration("elapsed", time.Since(start)))
	return track, nil
}

// Search searches the default platform. It never fails.
func (n *Node) Search(ctx context.Context, query string, limit int) []*musiclink.Track {
	results := n.router.Search(ctx, query, limit)
	n.recorder.SearchResults(len(results))
	return results
}

// CreatePlayer creates a player on the playback engine.
func (n *Node) CreatePlayer() (*Player, error) {
	if n.engine == nil {
		return nil, ErrNoEngine
	}
	return newPlayer(n.engine.CreatePlayer()), nil
}

// Ready reports whether the node can serve requests.
func (n *Node) Ready(ctx context.Context) error {
	if n.store == nil {
		return nil
	}
	return n.store.Ping(ctx)
}

// Shutdown clears the in-memory cache. The track store is left to its owner.
func (n *Node) Shutdown() {
	n.cache.Clear()
	n.logger.Info("Node shut down")
}

func resolutionPlatform(track *musiclink.Track, err error) string {
	if err == nil {
		return track.Platform
	}
	var notFound *musiclink.TrackNotFoundError
	if errors.As(err, &notFound) {
		return notFound.Platform
	}
	return "none"
}
