package obs

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	upstreamErrors    *prometheus.CounterVec
	upstreamRoundTrip prometheus.Histogram
	fallbackLookups   *prometheus.CounterVec
	installAssets     *prometheus.CounterVec
	lifecycleEvents   *prometheus.CounterVec
	storesDeleted     *prometheus.CounterVec
	activeCache       *prometheus.GaugeVec
	mu                sync.Mutex
	lastCache         string
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_edge_requests_total",
		Help: "Total requests handled by the edge",
	}, []string{"cache_status", "status_class"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiado_edge_request_duration_seconds",
		Help:    "Edge request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"cache_status"})

	upstreamErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_edge_upstream_errors_total",
		Help: "Total network failures talking to the origin",
	}, []string{"category"})

	upstreamRoundTrip := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fiado_edge_upstream_roundtrip_seconds",
		Help:    "Origin roundtrip duration",
		Buckets: prometheus.DefBuckets,
	})

	fallbackLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_cache_fallback_lookups_total",
		Help: "Cache lookups after a network failure",
	}, []string{"result"})

	installAssets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_cache_install_assets_total",
		Help: "Static assets primed during install",
	}, []string{"result"})

	lifecycleEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_cache_lifecycle_events_total",
		Help: "Worker lifecycle events",
	}, []string{"event", "result"})

	storesDeleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_cache_stale_stores_total",
		Help: "Stale cache stores handled during activation",
	}, []string{"result"})

	activeCache := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fiado_cache_active_info",
		Help: "Active cache store name",
	}, []string{"cache_name"})

	registry.MustRegister(requests, requestDuration, upstreamErrors, upstreamRoundTrip, fallbackLookups, installAssets, lifecycleEvents, storesDeleted, activeCache)

	return &Metrics{
		registry:          registry,
		requests:          requests,
		requestDuration:   requestDuration,
		upstreamErrors:    upstreamErrors,
		upstreamRoundTrip: upstreamRoundTrip,
		fallbackLookups:   fallbackLookups,
		installAssets:     installAssets,
		lifecycleEvents:   lifecycleEvents,
		storesDeleted:     storesDeleted,
		activeCache:       activeCache,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(cacheStatus string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	cacheStatus = defaultString(cacheStatus, "bypass")
	m.requests.WithLabelValues(cacheStatus, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(cacheStatus).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstreamRoundTrip(duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRoundTrip.Observe(duration.Seconds())
}

func (m *Metrics) RecordUpstreamError(category string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(category).Inc()
}

// RecordFallback counts a cache lookup made after a network failure;
// result is "hit", "miss" or "error".
func (m *Metrics) RecordFallback(result string) {
	if m == nil {
		return
	}
	m.fallbackLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordInstallAsset(result string) {
	if m == nil {
		return
	}
	m.installAssets.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLifecycle(event string, result string) {
	if m == nil {
		return
	}
	m.lifecycleEvents.WithLabelValues(event, result).Inc()
}

func (m *Metrics) RecordStaleStore(result string) {
	if m == nil {
		return
	}
	m.storesDeleted.WithLabelValues(result).Inc()
}

func (m *Metrics) SetActiveCache(name string) {
	if m == nil || name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastCache != "" && m.lastCache != name {
		m.activeCache.WithLabelValues(m.lastCache).Set(0)
	}
	m.activeCache.WithLabelValues(name).Set(1)
	m.lastCache = name
}

func statusClass(status int) string {
	if status <= 0 {
		return "unknown"
	}
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}
