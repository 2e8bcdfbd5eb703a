// Package core holds the service configuration.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"spence/internal/store"
	"spence/pkg/musiclink"
	"spence/pkg/transport"
)

const (
	// DefaultServerPort is the HTTP API port.
	DefaultServerPort = 8080
	// DefaultSearchLimit is the search result count when a request names none.
	DefaultSearchLimit = 10
	// MaxSearchLimit caps search requests.
	MaxSearchLimit = 50
	// DefaultStorePurgeInterval is how often expired rows are deleted from the track store.
	DefaultStorePurgeInterval = 30 * time.Minute
)

type Config struct {
	Resolver   ResolverConfig
	Cache      CacheConfig
	Store      StoreConfig
	Spotify    SpotifyConfig
	SoundCloud SoundCloudConfig
	Server     ServerConfig
	Log        LogConfig
}

type ResolverConfig struct {
	DefaultPlatform   string
	RequestsPerSecond float64
	MaxRetries        int
	MatchPolicy       string
	MatchThreshold    float64
	CandidateLimit    int
	SearchLimit       int
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type StoreConfig struct {
	// Path is the SQLite database file; empty disables the persistent tier.
	Path          string
	PurgeInterval time.Duration
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
}

type SoundCloudConfig struct {
	ClientID string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{
			DefaultPlatform:   musiclink.PlatformYouTube,
			RequestsPerSecond: transport.DefaultRequestsPerSecond,
			MaxRetries:        transport.DefaultMaxRetries,
			MatchPolicy:       string(musiclink.PolicyWeighted),
			MatchThreshold:    musiclink.DefaultMatchThreshold,
			CandidateLimit:    musiclink.DefaultCandidateLimit,
			SearchLimit:       DefaultSearchLimit,
		},
		Cache: CacheConfig{
			Size: store.DefaultCacheSize,
			TTL:  store.DefaultCacheTTL,
		},
		Store: StoreConfig{
			PurgeInterval: DefaultStorePurgeInterval,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks ranges and names. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := musiclink.ParseMatchPolicy(c.Resolver.MatchPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Resolver.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("requests per second must be positive, got %v", c.Resolver.RequestsPerSecond))
	}
	if c.Resolver.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be at least 1, got %d", c.Resolver.MaxRetries))
	}
	if c.Resolver.MatchThreshold <= 0 || c.Resolver.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("match threshold must be in (0, 1], got %v", c.Resolver.MatchThreshold))
	}
	if c.Resolver.CandidateLimit < 1 {
		errs = append(errs, fmt.Errorf("candidate limit must be at least 1, got %d", c.Resolver.CandidateLimit))
	}
	if c.Resolver.SearchLimit < 1 || c.Resolver.SearchLimit > MaxSearchLimit {
		errs = append(errs, fmt.Errorf("search limit must be between 1 and %d, got %d", MaxSearchLimit, c.Resolver.SearchLimit))
	}
	if c.Cache.Size < 1 {
		errs = append(errs, fmt.Errorf("cache size must be at least 1, got %d", c.Cache.Size))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive, got %v", c.Cache.TTL))
	}
	if c.Store.Path != "" && c.Store.PurgeInterval <= 0 {
		errs = append(errs, fmt.Errorf("store purge interval must be positive, got %v", c.Store.PurgeInterval))
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		errs = append(errs, errors.New("spotify client ID and secret must be set together"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
