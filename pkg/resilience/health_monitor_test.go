package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/scribeflow/resilience/pkg/errors"
)

func recordRequests(hm *HealthMonitor, total, failed int, duration time.Duration) {
	for i := 0; i < total; i++ {
		hm.RecordRequest(duration, i >= failed)
	}
}

func TestHealthMonitor_IdleStatus(t *testing.T) {
	hm := NewHealthMonitor()

	status := hm.Status()
	assert.Equal(t, StatusIdle, status.Status)
	assert.Equal(t, "System is idle - no requests processed yet", status.Message)
	assert.Equal(t, int64(0), status.RequestsTotal)
	assert.Nil(t, status.SuccessRate)
	assert.Nil(t, status.AvgResponseTime)
	assert.Empty(t, status.RecentErrors)
	assert.Empty(t, status.Alerts)
}

func TestHealthMonitor_StartingBelowMinRequests(t *testing.T) {
	hm := NewHealthMonitor()

	recordRequests(hm, 3, 0, 100*time.Millisecond)

	status := hm.Status()
	assert.Equal(t, StatusStarting, status.Status)
	assert.Equal(t, "System starting up - 3 requests processed", status.Message)
	require.NotNil(t, status.SuccessRate)
	assert.Equal(t, 100.0, *status.SuccessRate)
}

func TestHealthMonitor_HealthyStatus(t *testing.T) {
	hm := NewHealthMonitor()

	recordRequests(hm, 10, 0, 200*time.Millisecond)

	status := hm.Status()
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, "System operating normally", status.Message)
	require.NotNil(t, status.AvgResponseTime)
	assert.Equal(t, 0.2, *status.AvgResponseTime)
}

func TestHealthMonitor_DegradedOnSuccessRate(t *testing.T) {
	hm := NewHealthMonitor()

	// 9 of 10 succeed
	recordRequests(hm, 10, 1, 100*time.Millisecond)

	status := hm.Status()
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, "System degraded - 90.0% success rate", status.Message)
}

func TestHealthMonitor_UnhealthyOnSuccessRate(t *testing.T) {
	hm := NewHealthMonitor()

	// Half the requests fail
	recordRequests(hm, 10, 5, 100*time.Millisecond)

	status := hm.Status()
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "System unhealthy - 50.0% success rate", status.Message)
}

func TestHealthMonitor_SuccessRateBoundaries(t *testing.T) {
	// Exactly 95% is not healthy
	hm := NewHealthMonitor()
	recordRequests(hm, 20, 1, 100*time.Millisecond)
	assert.Equal(t, StatusDegraded, hm.Status().Status)

	// Exactly 80% is not degraded
	hm = NewHealthMonitor()
	recordRequests(hm, 10, 2, 100*time.Millisecond)
	assert.Equal(t, StatusUnhealthy, hm.Status().Status)
}

func TestHealthMonitor_SlowResponsesDemoteHealthy(t *testing.T) {
	hm := NewHealthMonitor()

	// All successes, but far over the slow threshold
	recordRequests(hm, 10, 0, 6*time.Second)

	status := hm.Status()
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, "System degraded - high response time (6.00s)", status.Message)
	require.NotNil(t, status.SuccessRate)
	assert.Equal(t, 100.0, *status.SuccessRate)
}

func TestHealthMonitor_PerformanceAlert(t *testing.T) {
	hm := NewHealthMonitor()

	// The alert needs a full trailing window of slow samples
	recordRequests(hm, 9, 0, 6*time.Second)
	status := hm.Status()
	assert.Empty(t, status.Alerts)

	hm.RecordRequest(6*time.Second, true)

	status = hm.Status()
	require.Len(t, status.Alerts, 1)
	alert := status.Alerts[0]
	assert.Equal(t, AlertTypePerformance, alert.Type)
	assert.Equal(t, SeverityWarning, alert.Severity)
	assert.Equal(t, "High response time detected: 6.00s", alert.Message)
	assert.NotEmpty(t, alert.ID)
}

func TestHealthMonitor_PerformanceAlertDeduplicated(t *testing.T) {
	hm := NewHealthMonitor()

	// Identical repeated condition raises a single alert
	recordRequests(hm, 15, 0, 6*time.Second)
	assert.Len(t, hm.Status().Alerts, 1)

	// A different window average produces a new message and a new alert
	hm.RecordRequest(26*time.Second, true)
	assert.Len(t, hm.Status().Alerts, 2)
}

func TestHealthMonitor_ErrorRateAlert(t *testing.T) {
	clock := newFakeClock()
	hm := NewHealthMonitor()
	hm.now = clock.Now

	// Ten errors inside the window stay below the limit
	for i := 0; i < 10; i++ {
		hm.RecordError(errors.New("boom"), nil)
	}
	assert.Empty(t, hm.Status().Alerts)

	// The eleventh crosses it
	hm.RecordError(errors.New("boom"), nil)

	status := hm.Status()
	require.Len(t, status.Alerts, 1)
	alert := status.Alerts[0]
	assert.Equal(t, AlertTypeErrorRate, alert.Type)
	assert.Equal(t, SeverityError, alert.Severity)
	assert.Equal(t, "High error rate: 11 errors in 5 minutes", alert.Message)
}

func TestHealthMonitor_ErrorRateWindowExpires(t *testing.T) {
	clock := newFakeClock()
	hm := NewHealthMonitor()
	hm.now = clock.Now

	for i := 0; i < 11; i++ {
		hm.RecordError(errors.New("boom"), nil)
	}
	require.Len(t, hm.Status().Alerts, 1)

	// Six minutes later the burst has aged out; a single new error does
	// not re-trigger
	clock.Advance(6 * time.Minute)
	hm.RecordError(errors.New("boom"), nil)
	assert.Len(t, hm.Status().Alerts, 1)
}

func TestHealthMonitor_ErrorClassification(t *testing.T) {
	hm := NewHealthMonitor()

	hm.RecordError(apperrors.NewTimeoutError("model call"), map[string]string{"function": "summarize"})
	hm.RecordError(errors.New("mystery"), nil)

	status := hm.Status()
	require.Len(t, status.RecentErrors, 2)
	assert.Equal(t, "timeout", status.RecentErrors[0].Kind)
	assert.Equal(t, "summarize", status.RecentErrors[0].Context["function"])
	assert.Equal(t, "unknown", status.RecentErrors[1].Kind)
}

func TestHealthMonitor_RecentErrorsWindow(t *testing.T) {
	hm := NewHealthMonitor()

	for i := 0; i < 8; i++ {
		hm.RecordError(apperrors.NewInternalError(string(rune('a'+i))), nil)
	}

	// Status exposes only the last five
	status := hm.Status()
	require.Len(t, status.RecentErrors, 5)
	assert.Contains(t, status.RecentErrors[0].Message, "d")
	assert.Contains(t, status.RecentErrors[4].Message, "h")
}

func TestHealthMonitor_AlertSink(t *testing.T) {
	hm := NewHealthMonitor()

	var received []Alert
	hm.SetAlertSink(func(alert Alert) {
		received = append(received, alert)
	})

	recordRequests(hm, 10, 0, 6*time.Second)

	require.Len(t, received, 1)
	assert.Equal(t, AlertTypePerformance, received[0].Type)
}

func TestHealthMonitor_Reset(t *testing.T) {
	hm := NewHealthMonitor()

	recordRequests(hm, 10, 5, 6*time.Second)
	hm.RecordError(errors.New("boom"), nil)
	require.NotEqual(t, StatusIdle, hm.Status().Status)

	hm.Reset()

	status := hm.Status()
	assert.Equal(t, StatusIdle, status.Status)
	assert.Equal(t, int64(0), status.RequestsTotal)
	assert.Empty(t, status.RecentErrors)
	assert.Empty(t, status.Alerts)
}

func TestHealthMonitor_ForceCheck(t *testing.T) {
	hm := NewHealthMonitor()

	hm.ForceCheck()

	status := hm.Status()
	assert.Equal(t, int64(1), status.RequestsTotal)
	assert.Equal(t, StatusStarting, status.Status)
}

func TestHealthMonitor_SetMinRequests(t *testing.T) {
	hm := NewHealthMonitor()
	hm.SetMinRequests(1)

	hm.RecordRequest(100*time.Millisecond, true)
	assert.Equal(t, StatusHealthy, hm.Status().Status)

	// Values below one clamp to one
	hm.SetMinRequests(0)
	hm.mu.Lock()
	threshold := hm.minRequests
	hm.mu.Unlock()
	assert.Equal(t, 1, threshold)
}

func TestHealthMonitor_ResponseTimesBounded(t *testing.T) {
	hm := NewHealthMonitor()

	for i := 0; i < maxResponseTimes+5; i++ {
		hm.RecordRequest(time.Millisecond, true)
	}

	hm.mu.Lock()
	samples := len(hm.responseTimes)
	hm.mu.Unlock()

	assert.Equal(t, maxResponseTimes, samples)
	assert.Equal(t, int64(maxResponseTimes+5), hm.Status().RequestsTotal)
}
