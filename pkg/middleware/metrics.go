// Package middleware provides HTTP middleware for observability:
// Prometheus metrics and OpenTelemetry tracing. It also exposes the
// nil-safe Record functions the server wires into world hooks, so metric
// collection degrades to no-ops until Prometheus() has been installed.
package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "worldsync").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "worldsync",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the sync server.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	commandsTotal   *prometheus.CounterVec
	broadcastsTotal prometheus.Counter
	broadcastBytes  prometheus.Counter
	deliveryErrors  prometheus.Counter
	encodeErrors    prometheus.Counter
	entities        prometheus.Gauge
}

// globalMetrics is the singleton metrics instance.
// Created on first call to Prometheus().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by path and status",
			ConstLabels: config.ConstLabels,
		}, []string{"path", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"path"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of active WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_total",
			Help:        "Total number of WebSocket sessions accepted",
			ConstLabels: config.ConstLabels,
		}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_total",
			Help:        "Total number of world commands applied by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "broadcasts_total",
			Help:        "Total number of state broadcasts",
			ConstLabels: config.ConstLabels,
		}),

		broadcastBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "broadcast_bytes_total",
			Help:        "Total bytes of state frames broadcast to clients",
			ConstLabels: config.ConstLabels,
		}),

		deliveryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "delivery_errors_total",
			Help:        "Total number of failed broadcast deliveries",
			ConstLabels: config.ConstLabels,
		}),

		encodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "encode_errors_total",
			Help:        "Total number of snapshot encode failures",
			ConstLabels: config.ConstLabels,
		}),

		entities: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "entities",
			Help:        "Number of entities tracked by the world",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus creates HTTP middleware that collects Prometheus metrics.
//
// Metrics collected:
//   - worldsync_http_requests_total: Counter of requests by path and status
//   - worldsync_http_request_duration_seconds: Histogram of request duration
//   - worldsync_active_sessions: Gauge of active WebSocket sessions
//   - worldsync_sessions_total: Counter of sessions accepted
//   - worldsync_commands_total: Counter of world commands by kind
//   - worldsync_broadcasts_total: Counter of state broadcasts
//   - worldsync_broadcast_bytes_total: Counter of broadcast payload bytes
//   - worldsync_delivery_errors_total: Counter of failed deliveries
//   - worldsync_encode_errors_total: Counter of snapshot encode failures
//   - worldsync_entities: Gauge of tracked entities
//
// The session, command, and broadcast metrics are fed through the Record
// functions in this package; install them via the server's world hooks.
//
// Expose the metrics with promhttp.Handler() on a /metrics route.
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Initialize metrics once
	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if path == "" {
				path = "/"
			}
			m.requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
			m.requestsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		})
	}
}

// statusRecorder captures the response status. It forwards Hijack so the
// WebSocket upgrade still works behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordSessionOpen records a new WebSocket session.
func RecordSessionOpen() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Inc()
		globalMetrics.sessionsTotal.Inc()
	}
}

// RecordSessionClose records a WebSocket session ending.
func RecordSessionClose() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Dec()
	}
}

// RecordCommand records a world command applied, by kind.
func RecordCommand(kind string) {
	if globalMetrics != nil {
		globalMetrics.commandsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordBroadcast records one state broadcast fan-out.
func RecordBroadcast(recipients, bytes int) {
	if globalMetrics != nil {
		globalMetrics.broadcastsTotal.Inc()
		globalMetrics.broadcastBytes.Add(float64(bytes * recipients))
	}
}

// RecordDeliveryError records a failed broadcast delivery.
func RecordDeliveryError() {
	if globalMetrics != nil {
		globalMetrics.deliveryErrors.Inc()
	}
}

// RecordEncodeError records a snapshot encode failure.
func RecordEncodeError() {
	if globalMetrics != nil {
		globalMetrics.encodeErrors.Inc()
	}
}

// RecordEntityCount records the current number of tracked entities.
func RecordEntityCount(n int) {
	if globalMetrics != nil {
		globalMetrics.entities.Set(float64(n))
	}
}
