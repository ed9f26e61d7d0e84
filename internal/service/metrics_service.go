package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation on a private registry.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	flushTotal      *prometheus.CounterVec
	flushItems      *prometheus.HistogramVec
	flushDuration   *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	autosaves       *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		flushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_flush_total",
			Help: "Flushes by workflow and outcome",
		}, []string{"workflow", "outcome"}),
		flushItems: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sync_flush_items",
			Help:    "Items sent per flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}, []string{"workflow"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sync_flush_duration_seconds",
			Help:    "Flush latency including the remote upsert",
			Buckets: prometheus.DefBuckets,
		}, []string{"workflow", "outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "draft_mutations_total",
			Help: "Draft edits applied by workflow",
		}, []string{"workflow"}),
		autosaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosave_triggers_total",
			Help: "Automatic flush dispatches by result",
		}, []string{"result"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite,
		m.cacheHits, m.cacheMisses, m.flushTotal, m.flushItems, m.flushDuration, m.mutations, m.autosaves, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the private registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveFlush records one flush.
func (m *MetricsService) ObserveFlush(workflow, outcome string, items int, duration time.Duration) {
	if m == nil {
		return
	}
	m.flushTotal.WithLabelValues(workflow, outcome).Inc()
	m.flushDuration.WithLabelValues(workflow, outcome).Observe(duration.Seconds())
	if items > 0 {
		m.flushItems.WithLabelValues(workflow).Observe(float64(items))
	}
}

// ObserveMutation counts applied draft edits.
func (m *MetricsService) ObserveMutation(workflow string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mutations.WithLabelValues(workflow).Add(float64(n))
}

// ObserveAutoSave counts automatic flush dispatches.
func (m *MetricsService) ObserveAutoSave(result string) {
	if m == nil {
		return
	}
	m.autosaves.WithLabelValues(result).Inc()
}
