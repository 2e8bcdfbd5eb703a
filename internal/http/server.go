// Package http serves the resolution API, health checks and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spence/internal/core"
	"spence/pkg/musiclink"
)

const (
	serviceName     = "spence"
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

// API is the resolution surface served over HTTP. *node.Node implements it.
type API interface {
	Resolve(ctx context.Context, query string) (*musiclink.Track, error)
	Search(ctx context.Context, query string, limit int) []*musiclink.Track
	Ready(ctx context.Context) error
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

// routes carries what the handlers need.
type routes struct {
	api         API
	platforms   []string
	searchLimit int
	metrics     *Metrics
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
}

// NewServer creates the HTTP server. gatherer is exposed on /metrics.
func NewServer(
	config *core.ServerConfig,
	api API,
	platforms []string,
	searchLimit int,
	metrics *Metrics,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	if searchLimit < 1 {
		searchLimit = core.DefaultSearchLimit
	}
	mux := setupRoutes(&routes{
		api:         api,
		platforms:   platforms,
		searchLimit: searchLimit,
		metrics:     metrics,
		gatherer:    gatherer,
		logger:      logger,
	})

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, mux),
		metrics: metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

func setupRoutes(r *routes) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /resolve", r.instrument("resolve", r.handleResolve))
	mux.Handle("GET /search", r.instrument("search", r.handleSearch))
	mux.Handle("GET /platforms", r.instrument("platforms", r.handlePlatforms))
	mux.HandleFunc("GET /healthz", healthzHandler)
	mux.HandleFunc("GET /readyz", r.handleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", homeHandler(r.logger))

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// statusWriter records the response code for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument assigns a request ID, counts the request and logs it.
func (r *routes) instrument(route string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestID := req.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		handler(sw, req)

		r.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(sw.code)).Inc()
		r.logger.Debug("Handled request",
			zap.String("request_id", requestID),
			zap.String("route", route),
			zap.String("query", req.URL.Query().Get("q")),
			zap.Int("status", sw.code),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (r *routes) handleResolve(w http.ResponseWriter, req *http.Request) {
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	track, err := r.api.Resolve(req.Context(), query)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, track)
}

type searchResponse struct {
	Query  string             `json:"query"`
	Tracks []*musiclink.Track `json:"tracks"`
}

func (r *routes) handleSearch(w http.ResponseWriter, req *http.Request) {
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	limit := r.searchLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, core.MaxSearchLimit)
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:  query,
		Tracks: r.api.Search(req.Context(), query, limit),
	})
}

func (r *routes) handlePlatforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"platforms": r.platforms})
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (r *routes) handleReadyz(w http.ResponseWriter, req *http.Request) {
	if err := r.api.Ready(req.Context()); err != nil {
		r.logger.Warn("Readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "service": serviceName})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": serviceName})
}

// errorStatus maps resolution errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, musiclink.ErrUnsupportedPlatform):
		return http.StatusUnprocessableEntity
	case errors.Is(err, musiclink.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(homePage)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

const homePage = `<!DOCTYPE html>
<html>
<head>
    <title>Spence</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">Spence</h1>
    <p>Track resolution for YouTube, SoundCloud, Spotify, Apple Music and Deezer links</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/resolve?q=">/resolve?q=</a> - Resolve a link or search phrase to a playable track</div>
    <div class="endpoint"><a href="/search?q=">/search?q=&amp;limit=</a> - Search the streamable platform</div>
    <div class="endpoint"><a href="/platforms">Platforms</a> - Registered resolvers in priority order</div>
    <div class="endpoint"><a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`
