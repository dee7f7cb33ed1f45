package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// Registration goes to the default registry, so the enabled instance is
// built once and shared by every test in this package.
var (
	testMetricsOnce sync.Once
	testMetrics     *Metrics
)

func enabledMetrics() *Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = NewMetrics(&Config{Namespace: "scribeflow_test", Enabled: true})
	})
	return testMetrics
}

func TestNewMetrics_Disabled(t *testing.T) {
	m := NewMetrics(&Config{Enabled: false})

	assert.NotNil(t, m)
	assert.Nil(t, m.HTTPRequestsTotal)

	// Every record method must be a no-op rather than a panic
	m.RecordHTTPRequest("GET", "/x", 200, time.Millisecond)
	m.RecordOperation("parse", time.Millisecond, true)
	m.RecordRetry("parse")
	m.RecordFallback("summarize", "fallback_success")
	m.RecordRecovery("timeout", true)
	m.SetBreakerState("summarize", "OPEN")
	m.SetHealthStatus("healthy")
	m.RecordAlert("performance", "warning")
	m.RecordStateSave(true)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordHTTPRequest("GET", "/x", 200, time.Millisecond)
	m.RecordOperation("parse", time.Millisecond, true)
	m.RecordStateSave(false)
	m.SetHealthStatus("degraded")
}

func TestRecordOperation(t *testing.T) {
	m := enabledMetrics()

	m.RecordOperation("extract_text", 50*time.Millisecond, true)
	m.RecordOperation("extract_text", 80*time.Millisecond, false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationsTotal.WithLabelValues("extract_text", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationsTotal.WithLabelValues("extract_text", "error")))
}

func TestRecordRetryAndFallback(t *testing.T) {
	m := enabledMetrics()

	m.RecordRetry("classify")
	m.RecordRetry("classify")
	m.RecordFallback("summarize", "fallback_success")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RetryAttempts.WithLabelValues("classify")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("summarize", "fallback_success")))
}

func TestSetBreakerState(t *testing.T) {
	m := enabledMetrics()

	m.SetBreakerState("ocr", "CLOSED")
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("ocr")))

	m.SetBreakerState("ocr", "OPEN")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("ocr")))

	m.SetBreakerState("ocr", "HALF_OPEN")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("ocr")))
}

func TestSetHealthStatus(t *testing.T) {
	m := enabledMetrics()

	m.SetHealthStatus("unhealthy")
	assert.Equal(t, float64(4), testutil.ToFloat64(m.HealthStatus))

	m.SetHealthStatus("healthy")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.HealthStatus))
}

func TestRecordStateSave(t *testing.T) {
	m := enabledMetrics()

	m.RecordStateSave(true)
	m.RecordStateSave(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StateSaves.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StateSaves.WithLabelValues("error")))
}

func TestPrometheusMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := enabledMetrics()

	router := gin.New()
	router.Use(m.PrometheusMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200")))
}

func TestPrometheusMiddleware_NilMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var m *Metrics
	router := gin.New()
	router.Use(m.PrometheusMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCollector(t *testing.T) {
	m := enabledMetrics()

	collector := NewCollector(m, time.Second)
	collector.collect()

	assert.Greater(t, testutil.ToFloat64(m.GoroutineCount), float64(0))
}

func TestCollector_NilMetrics(t *testing.T) {
	collector := NewCollector(nil, time.Second)
	collector.collect()
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "success", outcomeLabel(true))
	assert.Equal(t, "error", outcomeLabel(false))
}
