package http

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"spence/pkg/musiclink"
)

// Resolution outcomes used as the status label.
const (
	statusOK          = "ok"
	statusNotFound    = "not_found"
	statusUnsupported = "unsupported"
	statusError       = "error"
)

// Metrics holds the service's Prometheus collectors. It implements node.Recorder.
type Metrics struct {
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	CacheHitsTotal     *prometheus.CounterVec
	CacheMissesTotal   prometheus.Counter
	SearchSizes        prometheus.Histogram
	RequestsTotal      *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetrics creates the collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spence_resolutions_total",
				Help: "Total number of router resolutions by platform and outcome",
			},
			[]string{"platform", "status"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spence_resolution_duration_seconds",
				Help:    "Time spent resolving uncached queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spence_cache_hits_total",
				Help: "Total number of resolutions served from a cache tier",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spence_cache_misses_total",
				Help: "Total number of resolutions that missed every cache tier",
			},
		),
		SearchSizes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spence_search_results",
				Help:    "Number of tracks returned per search",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spence_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"route", "code"},
		),
		registerer: registerer,
	}

	registerer.MustRegister(
		metrics.ResolutionsTotal,
		metrics.ResolutionDuration,
		metrics.CacheHitsTotal,
		metrics.CacheMissesTotal,
		metrics.SearchSizes,
		metrics.RequestsTotal,
	)

	return metrics
}

// WatchCacheSize exports the in-memory cache size as a gauge.
func (m *Metrics) WatchCacheSize(size func() int) {
	m.registerer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "spence_cache_entries",
			Help: "Current number of entries in the in-memory resolution cache",
		},
		func() float64 { return float64(size()) },
	))
}

func (m *Metrics) CacheHit(tier string) {
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) CacheMiss() {
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) Resolution(platform string, duration time.Duration, err error) {
	m.ResolutionsTotal.WithLabelValues(platform, resolutionStatus(err)).Inc()
	m.ResolutionDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func (m *Metrics) SearchResults(count int) {
	m.SearchSizes.Observe(float64(count))
}

func resolutionStatus(err error) string {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, musiclink.ErrUnsupportedPlatform):
		return statusUnsupported
	case errors.Is(err, musiclink.ErrTrackNotFound):
		return statusNotFound
	default:
		return statusError
	}
}
