package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the counters
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	RetryAttempts     *prometheus.CounterVec
	FallbacksTotal    *prometheus.CounterVec
	RecoveriesTotal   *prometheus.CounterVec

	// Health metrics
	CircuitBreakerState *prometheus.GaugeVec
	HealthStatus        prometheus.Gauge
	AlertsTotal         *prometheus.CounterVec

	// State metrics
	StateSaves *prometheus.CounterVec

	// Runtime metrics
	MemoryUsage    *prometheus.GaugeVec
	GoroutineCount prometheus.Gauge
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "scribeflow",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics. When
// disabled it returns an empty Metrics whose record methods are no-ops.
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),

		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "operations_total",
				Help:      "Total number of monitored operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Monitored operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "fallbacks_total",
				Help:      "Service call outcomes through the fallback layer",
			},
			[]string{"service", "outcome"},
		),
		RecoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "recoveries_total",
				Help:      "Automatic error recovery attempts",
			},
			[]string{"kind", "status"},
		),

		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),
		HealthStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "health_status",
				Help:      "Derived health status (0=idle, 1=starting, 2=healthy, 3=degraded, 4=unhealthy)",
			},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "alerts_total",
				Help:      "Alerts raised by the health monitor and health loop",
			},
			[]string{"type", "severity"},
		),

		StateSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "state_saves_total",
				Help:      "State persistence attempts",
			},
			[]string{"status"},
		),

		MemoryUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Memory usage in bytes",
			},
			[]string{"type"},
		),
		GoroutineCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "goroutines",
				Help:      "Number of running goroutines",
			},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.OperationsTotal,
		m.OperationDuration,
		m.RetryAttempts,
		m.FallbacksTotal,
		m.RecoveriesTotal,
		m.CircuitBreakerState,
		m.HealthStatus,
		m.AlertsTotal,
		m.StateSaves,
		m.MemoryUsage,
		m.GoroutineCount,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordOperation records a monitored operation invocation
func (m *Metrics) RecordOperation(operation string, duration time.Duration, success bool) {
	if m == nil || m.OperationsTotal == nil {
		return
	}

	m.OperationsTotal.WithLabelValues(operation, outcomeLabel(success)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRetry counts one retry attempt for an operation class
func (m *Metrics) RecordRetry(operation string) {
	if m == nil || m.RetryAttempts == nil {
		return
	}

	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// RecordFallback records the outcome of a service call through the
// fallback layer
func (m *Metrics) RecordFallback(service, outcome string) {
	if m == nil || m.FallbacksTotal == nil {
		return
	}

	m.FallbacksTotal.WithLabelValues(service, outcome).Inc()
}

// RecordRecovery records an automatic recovery attempt
func (m *Metrics) RecordRecovery(kind string, success bool) {
	if m == nil || m.RecoveriesTotal == nil {
		return
	}

	m.RecoveriesTotal.WithLabelValues(kind, outcomeLabel(success)).Inc()
}

// SetBreakerState updates the breaker state gauge for a service
func (m *Metrics) SetBreakerState(service, state string) {
	if m == nil || m.CircuitBreakerState == nil {
		return
	}

	var value float64
	switch state {
	case "OPEN":
		value = 1
	case "HALF_OPEN":
		value = 2
	}
	m.CircuitBreakerState.WithLabelValues(service).Set(value)
}

// SetHealthStatus updates the derived health status gauge
func (m *Metrics) SetHealthStatus(status string) {
	if m == nil || m.HealthStatus == nil {
		return
	}

	var value float64
	switch status {
	case "starting":
		value = 1
	case "healthy":
		value = 2
	case "degraded":
		value = 3
	case "unhealthy":
		value = 4
	}
	m.HealthStatus.Set(value)
}

// RecordAlert counts a raised alert
func (m *Metrics) RecordAlert(alertType, severity string) {
	if m == nil || m.AlertsTotal == nil {
		return
	}

	m.AlertsTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordStateSave counts a state persistence attempt
func (m *Metrics) RecordStateSave(success bool) {
	if m == nil || m.StateSaves == nil {
		return
	}

	m.StateSaves.WithLabelValues(outcomeLabel(success)).Inc()
}

func outcomeLabel(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusError
}

// PrometheusMiddleware returns a Gin middleware that records HTTP metrics
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m != nil && m.HTTPRequestsInFlight != nil {
			m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
			defer m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Dec()
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Collector periodically samples runtime statistics into the gauges
type Collector struct {
	metrics  *Metrics
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a runtime metrics collector
func NewCollector(metrics *Metrics, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:  metrics,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collection and blocks until stopped or the context ends
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Stop stops collection
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.metrics == nil || c.metrics.MemoryUsage == nil {
		return
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	c.metrics.MemoryUsage.WithLabelValues("heap_alloc").Set(float64(stats.HeapAlloc))
	c.metrics.MemoryUsage.WithLabelValues("heap_sys").Set(float64(stats.HeapSys))
	c.metrics.MemoryUsage.WithLabelValues("stack_sys").Set(float64(stats.StackSys))
	c.metrics.GoroutineCount.Set(float64(runtime.NumGoroutine()))
}
