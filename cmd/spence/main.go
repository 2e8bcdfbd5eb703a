// Package main provides the spence CLI: the resolution API server and one-shot resolve/search commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"spence/internal/core"
	httpserver "spence/internal/http"
	"spence/internal/node"
	"spence/internal/store"
	"spence/pkg/musiclink"
	"spence/pkg/transport"
)

const (
	envPrefix = "SPENCE"
	// resolveConcurrency bounds parallel resolutions in the resolve command.
	resolveConcurrency = 4
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "spence",
	Short: "Spence - resolve music links to playable tracks",
	Long: `Spence resolves YouTube, SoundCloud, Spotify, Apple Music and Deezer links, or free-text
search phrases, to a single playable track. Non-streamable catalogs are matched to YouTube.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if viper.GetBool("generate-env-example") {
			return generateEnvExample(cmd)
		}
		return cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP resolution API",
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <query>...",
	Short: "Resolve links or search phrases and print the tracks as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the streamable platform and print the tracks as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List supported platforms in dispatch order",
	RunE:  runPlatforms,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, text)")
	flags.String("default-platform", defaults.Resolver.DefaultPlatform, "Platform searched when no resolver claims a query")
	flags.Float64("requests-per-second", defaults.Resolver.RequestsPerSecond, "Outbound requests per second per remote origin")
	flags.Int("max-retries", defaults.Resolver.MaxRetries, "Attempts per outbound request")
	flags.String("match-policy", defaults.Resolver.MatchPolicy, "Cross-platform match policy (weighted, nearest-duration)")
	flags.Float64("match-threshold", defaults.Resolver.MatchThreshold, "Minimum weighted score for preferring the top match")
	flags.Int("candidate-limit", defaults.Resolver.CandidateLimit, "Streamable search results considered when matching")
	flags.Int("search-limit", defaults.Resolver.SearchLimit, "Default number of search results")
	flags.Int("cache-size", defaults.Cache.Size, "Maximum in-memory cached resolutions")
	flags.Duration("cache-ttl", defaults.Cache.TTL, "Age after which a cached resolution is stale")
	flags.String("store-path", defaults.Store.Path, "SQLite file for persistent resolutions (empty disables)")
	flags.Duration("store-purge-interval", defaults.Store.PurgeInterval, "How often expired stored resolutions are deleted")
	flags.String("spotify-client-id", "", "Spotify client ID (optional, enables client credentials)")
	flags.String("spotify-client-secret", "", "Spotify client secret")
	flags.String("soundcloud-client-id", "", "SoundCloud client ID (optional, skips scraping until rejected)")
	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	searchCmd.Flags().Int("limit", 0, "Number of results (default --search-limit)")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, resolveCmd, searchCmd, platformsCmd)
}

func initConfig() {
	// Load .env file explicitly using gotenv
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Resolver.DefaultPlatform = viper.GetString("default-platform")
	cfg.Resolver.RequestsPerSecond = viper.GetFloat64("requests-per-second")
	cfg.Resolver.MaxRetries = viper.GetInt("max-retries")
	cfg.Resolver.MatchPolicy = viper.GetString("match-policy")
	cfg.Resolver.MatchThreshold = viper.GetFloat64("match-threshold")
	cfg.Resolver.CandidateLimit = viper.GetInt("candidate-limit")
	cfg.Resolver.SearchLimit = viper.GetInt("search-limit")

	cfg.Cache.Size = viper.GetInt("cache-size")
	cfg.Cache.TTL = viper.GetDuration("cache-ttl")

	cfg.Store.Path = viper.GetString("store-path")
	cfg.Store.PurgeInterval = viper.GetDuration("store-purge-interval")

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.SoundCloud.ClientID = viper.GetString("soundcloud-client-id")

	cfg.Server.Host = viper.GetString("server-host")
	cfg.Server.Port = viper.GetInt("server-port")

	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")

	return cfg
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "text") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

// pipeline is the wired resolution stack.
type pipeline struct {
	node       *node.Node
	registry   *musiclink.Registry
	cache      *store.ResolutionCache
	trackStore *store.TrackStore
}

func (p *pipeline) Close() {
	p.node.Shutdown()
	if p.trackStore != nil {
		if err := p.trackStore.Close(); err != nil {
			logger.Debug("Failed to close track store", zap.Error(err))
		}
	}
}

func buildPipeline(recorder node.Recorder) (*pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	policy, _ := musiclink.ParseMatchPolicy(config.Resolver.MatchPolicy)

	limiter := transport.NewRateLimiter(config.Resolver.RequestsPerSecond)
	client := transport.NewClient(limiter, config.Resolver.MaxRetries, logger.Named("transport"))

	registry := musiclink.NewDefaultRegistry(client, musiclink.Options{
		Matcher: musiclink.MatcherConfig{
			Policy:         policy,
			Threshold:      config.Resolver.MatchThreshold,
			CandidateLimit: config.Resolver.CandidateLimit,
		},
		Spotify: musiclink.SpotifyConfig{
			ClientID:     config.Spotify.ClientID,
			ClientSecret: config.Spotify.ClientSecret,
		},
		SoundCloudClientID: config.SoundCloud.ClientID,
	}, logger)
	router := musiclink.NewRouter(registry, config.Resolver.DefaultPlatform, logger.Named("router"))
	cache := store.NewResolutionCache(config.Cache.Size, config.Cache.TTL)

	opts := []node.Option{}
	if recorder != nil {
		opts = append(opts, node.WithRecorder(recorder))
	}

	var trackStore *store.TrackStore
	if config.Store.Path != "" {
		var err error
		trackStore, err = store.OpenTrackStore(config.Store.Path, config.Cache.TTL, logger.Named("store"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, node.WithTrackStore(trackStore))
	}

	return &pipeline{
		node:       node.New(router, cache, logger.Named("node"), opts...),
		registry:   registry,
		cache:      cache,
		trackStore: trackStore,
	}, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpserver.NewMetrics(registry)

	p, err := buildPipeline(metrics)
	if err != nil {
		return err
	}
	defer p.Close()
	metrics.WatchCacheSize(p.cache.Len)

	logger.Info("Starting spence",
		zap.Strings("platforms", p.registry.ListPlatforms()),
		zap.String("match_policy", config.Resolver.MatchPolicy),
		zap.Float64("requests_per_second", config.Resolver.RequestsPerSecond),
		zap.Bool("persistent_store", p.trackStore != nil))

	server := httpserver.NewServer(&config.Server, p.node, p.registry.ListPlatforms(),
		config.Resolver.SearchLimit, metrics, registry, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	if p.trackStore != nil {
		g.Go(func() error {
			return purgeLoop(gCtx, p.trackStore, config.Store.PurgeInterval)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("spence stopped with error", zap.Error(err))
		return err
	}

	logger.Info("spence stopped gracefully")
	return nil
}

// purgeLoop deletes expired stored resolutions until ctx is done.
func purgeLoop(ctx context.Context, trackStore *store.TrackStore, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := trackStore.Purge(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Failed to purge track store", zap.Error(err))
			}
		}
	}
}

// resolveResult is one line of resolve command output.
type resolveResult struct {
	Query string           `json:"query"`
	Track *musiclink.Track `json:"track,omitempty"`
	Error string           `json:"error,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	results := resolveAll(cmd.Context(), p.node, args)

	failed := 0
	encoder := json.NewEncoder(cmd.OutOrStdout())
	for _, result := range results {
		if result.Error != "" {
			failed++
		}
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries could not be resolved", failed, len(results))
	}
	return nil
}

// resolveAll resolves queries concurrently and returns results in argument order.
func resolveAll(ctx context.Context, resolver interface {
	Resolve(ctx context.Context, query string) (*musiclink.Track, error)
}, queries []string) []resolveResult {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]resolveResult, len(queries))
	var g errgroup.Group
	g.SetLimit(resolveConcurrency)

	for i, query := range queries {
		g.Go(func() error {
			results[i].Query = query
			track, err := resolver.Resolve(ctx, query)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Track = track
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runSearch(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = config.Resolver.SearchLimit
	}

	query := strings.Join(args, " ")
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(p.node.Search(cmd.Context(), query, limit))
}

func runPlatforms(cmd *cobra.Command, _ []string) error {
	p, err := buildPipeline(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	for i, platform := range p.registry.ListPlatforms() {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, platform)
	}
	return nil
}
