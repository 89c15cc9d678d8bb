package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for lagoon.
type Metrics struct {
	config MetricsConfig

	// API metrics
	apiRequests    *prometheus.CounterVec
	apiDuration    *prometheus.HistogramVec
	apiRateLimited prometheus.Counter

	// Reconcile metrics
	reconciles        *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec

	// Action wait metrics
	actionWaits       *prometheus.CounterVec
	actionWaitSeconds *prometheus.HistogramVec

	// Inventory metrics
	inventoryBuilds    *prometheus.CounterVec
	inventoryHosts     prometheus.Gauge
	inventoryCacheHits *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of DigitalOcean API requests",
			},
			[]string{"method", "status"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Duration of DigitalOcean API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),
		apiRateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_rate_limited_total",
				Help:      "Total number of API requests rejected with HTTP 429",
			},
		),

		reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciles_total",
				Help:      "Total number of resource reconciliations",
			},
			[]string{"resource", "changed"},
		),
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of resource reconciliations in seconds",
				Buckets:   buckets,
			},
			[]string{"resource"},
		),

		actionWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_waits_total",
				Help:      "Total number of waits on asynchronous actions",
			},
			[]string{"resource", "outcome"},
		),
		actionWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_wait_duration_seconds",
				Help:      "Time spent waiting for asynchronous actions in seconds",
				Buckets:   buckets,
			},
			[]string{"resource"},
		),

		inventoryBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inventory_builds_total",
				Help:      "Total number of inventory builds",
			},
			[]string{"source"},
		),
		inventoryHosts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inventory_hosts",
				Help:      "Number of hosts in the most recent inventory build",
			},
		),
		inventoryCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inventory_cache_lookups_total",
				Help:      "Total number of inventory cache lookups",
			},
			[]string{"result"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.apiRequests,
		m.apiDuration,
		m.apiRateLimited,
		m.reconciles,
		m.reconcileDuration,
		m.actionWaits,
		m.actionWaitSeconds,
		m.inventoryBuilds,
		m.inventoryHosts,
		m.inventoryCacheHits,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// API Metrics

// RecordAPIRequest records a DigitalOcean API request with its duration.
func (m *Metrics) RecordAPIRequest(method string, status int, duration time.Duration) {
	if m.apiRequests == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(method).Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		m.apiRateLimited.Inc()
	}
}

// Reconcile Metrics

// RecordReconcile records a resource reconciliation outcome.
func (m *Metrics) RecordReconcile(resource string, changed bool, duration time.Duration) {
	if m.reconciles == nil {
		return
	}
	m.reconciles.WithLabelValues(resource, strconv.FormatBool(changed)).Inc()
	m.reconcileDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// Action Wait Metrics

// RecordActionWait records a wait on an asynchronous action.
// outcome is one of "completed", "errored", or "timeout".
func (m *Metrics) RecordActionWait(resource, outcome string, duration time.Duration) {
	if m.actionWaits == nil {
		return
	}
	m.actionWaits.WithLabelValues(resource, outcome).Inc()
	m.actionWaitSeconds.WithLabelValues(resource).Observe(duration.Seconds())
}

// Inventory Metrics

// RecordInventoryBuild records an inventory build and the host count.
// source is "api" or "cache".
func (m *Metrics) RecordInventoryBuild(source string, hosts int) {
	if m.inventoryBuilds == nil {
		return
	}
	m.inventoryBuilds.WithLabelValues(source).Inc()
	m.inventoryHosts.Set(float64(hosts))
}

// RecordCacheLookup records an inventory cache lookup result ("hit" or "miss").
func (m *Metrics) RecordCacheLookup(result string) {
	if m.inventoryCacheHits == nil {
		return
	}
	m.inventoryCacheHits.WithLabelValues(result).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
