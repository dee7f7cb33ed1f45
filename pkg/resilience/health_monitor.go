package resilience

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/logging"
)

// Health status values derived from recorded request outcomes
const (
	StatusIdle      = "idle"
	StatusStarting  = "starting"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const (
	// DefaultMinRequests is the request count below which the system
	// reports "starting" instead of a rate-derived status
	DefaultMinRequests = 5

	maxResponseTimes = 1000
	maxErrorRecords  = 500
	maxAlerts        = 100

	// perfWindow is the trailing sample count for the response time alert
	perfWindow = 10
	// slowThresholdSeconds marks an average response time as degraded
	slowThresholdSeconds = 5.0

	errorRateWindow = 5 * time.Minute
	errorRateLimit  = 10
)

// ErrorRecord captures one recorded failure with its classification
type ErrorRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// HealthStatus is the derived health view of the service
type HealthStatus struct {
	Status          string        `json:"status"`
	Message         string        `json:"message"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	RequestsTotal   int64         `json:"requests_total"`
	SuccessRate     *float64      `json:"success_rate"`
	AvgResponseTime *float64      `json:"avg_response_time"`
	RecentErrors    []ErrorRecord `json:"recent_errors"`
	Alerts          []Alert       `json:"alerts"`
	Timestamp       time.Time     `json:"timestamp"`
}

// HealthMonitor derives service health from recorded request outcomes.
// Buffers are bounded: the oldest entries are evicted beyond 1000
// response-time samples, 500 error records and 100 alerts.
type HealthMonitor struct {
	mu             sync.Mutex
	requestsTotal  int64
	requestsFailed int64
	responseTimes  []float64
	errorRecords   []ErrorRecord
	alerts         []Alert
	startTime      time.Time
	minRequests    int

	sink   AlertSink
	logger *logging.Logger
	now    func() time.Time
}

// NewHealthMonitor creates a monitor with an empty history
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		startTime:   time.Now(),
		minRequests: DefaultMinRequests,
		logger:      logging.GetLogger(),
		now:         time.Now,
	}
}

// SetAlertSink registers a callback invoked for every new alert. The
// callback runs outside the monitor lock.
func (hm *HealthMonitor) SetAlertSink(sink AlertSink) {
	hm.mu.Lock()
	hm.sink = sink
	hm.mu.Unlock()
}

// RecordRequest records one request outcome and checks the response
// time alert condition
func (hm *HealthMonitor) RecordRequest(duration time.Duration, success bool) {
	hm.mu.Lock()
	hm.requestsTotal++
	if !success {
		hm.requestsFailed++
	}

	hm.responseTimes = append(hm.responseTimes, duration.Seconds())
	if len(hm.responseTimes) > maxResponseTimes {
		hm.responseTimes = hm.responseTimes[1:]
	}

	alert := hm.checkPerformanceLocked()
	sink := hm.sink
	hm.mu.Unlock()

	if alert != nil && sink != nil {
		sink(*alert)
	}
}

// RecordError records a failure with its classification and checks the
// error rate alert condition
func (hm *HealthMonitor) RecordError(err error, context map[string]string) {
	record := ErrorRecord{
		Timestamp: hm.now(),
		Kind:      string(errors.KindOf(err)),
		Message:   err.Error(),
		Context:   context,
	}

	hm.mu.Lock()
	hm.errorRecords = append(hm.errorRecords, record)
	if len(hm.errorRecords) > maxErrorRecords {
		hm.errorRecords = hm.errorRecords[1:]
	}

	alert := hm.checkErrorRateLocked()
	sink := hm.sink
	hm.mu.Unlock()

	if alert != nil && sink != nil {
		sink(*alert)
	}
}

// Status derives the current health view.
//
// With no requests recorded the system is idle. Below the minimum
// request threshold it is starting. Otherwise the success rate decides:
// above 95% is healthy and above 80% degraded; anything lower is
// unhealthy. A healthy status is demoted to degraded when the average
// response time exceeds the slow threshold.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	now := hm.now()
	status := HealthStatus{
		UptimeSeconds: now.Sub(hm.startTime).Seconds(),
		RequestsTotal: hm.requestsTotal,
		RecentErrors:  []ErrorRecord{},
		Alerts:        []Alert{},
		Timestamp:     now,
	}

	if hm.requestsTotal == 0 {
		status.Status = StatusIdle
		status.Message = "System is idle - no requests processed yet"
		return status
	}

	successRate := roundTo(float64(hm.requestsTotal-hm.requestsFailed)/float64(hm.requestsTotal)*100, 2)
	avg := 0.0
	if len(hm.responseTimes) > 0 {
		sum := 0.0
		for _, v := range hm.responseTimes {
			sum += v
		}
		avg = roundTo(sum/float64(len(hm.responseTimes)), 3)
	}
	status.SuccessRate = &successRate
	status.AvgResponseTime = &avg

	switch {
	case hm.requestsTotal < int64(hm.minRequests):
		status.Status = StatusStarting
		status.Message = fmt.Sprintf("System starting up - %d requests processed", hm.requestsTotal)
	case successRate > 95:
		status.Status = StatusHealthy
		status.Message = "System operating normally"
	case successRate > 80:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("System degraded - %.1f%% success rate", successRate)
	default:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("System unhealthy - %.1f%% success rate", successRate)
	}

	if avg > slowThresholdSeconds && status.Status == StatusHealthy {
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("System degraded - high response time (%.2fs)", avg)
	}

	if n := len(hm.errorRecords); n > 0 {
		start := n - 5
		if start < 0 {
			start = 0
		}
		status.RecentErrors = append(status.RecentErrors, hm.errorRecords[start:]...)
	}
	if n := len(hm.alerts); n > 0 {
		start := n - 10
		if start < 0 {
			start = 0
		}
		status.Alerts = append(status.Alerts, hm.alerts[start:]...)
	}

	return status
}

// Reset clears all recorded metrics and restarts the uptime clock
func (hm *HealthMonitor) Reset() {
	hm.mu.Lock()
	hm.requestsTotal = 0
	hm.requestsFailed = 0
	hm.responseTimes = nil
	hm.errorRecords = nil
	hm.alerts = nil
	hm.startTime = hm.now()
	hm.mu.Unlock()

	hm.logger.Info("Health metrics reset")
}

// ForceCheck records a synthetic successful request so an idle system
// can prove liveness
func (hm *HealthMonitor) ForceCheck() {
	hm.RecordRequest(100*time.Millisecond, true)
	hm.logger.Info("Forced health check completed")
}

// SetMinRequests sets the threshold below which the system reports
// "starting". Values below 1 are clamped to 1.
func (hm *HealthMonitor) SetMinRequests(n int) {
	if n < 1 {
		n = 1
	}

	hm.mu.Lock()
	hm.minRequests = n
	hm.mu.Unlock()

	hm.logger.Info("Minimum requests threshold set", "threshold", n)
}

// checkPerformanceLocked raises a performance alert when the mean of
// the trailing window exceeds the slow threshold. Callers must hold mu.
func (hm *HealthMonitor) checkPerformanceLocked() *Alert {
	if len(hm.responseTimes) < perfWindow {
		return nil
	}

	window := hm.responseTimes[len(hm.responseTimes)-perfWindow:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(perfWindow)

	if avg <= slowThresholdSeconds {
		return nil
	}

	return hm.appendAlertLocked(AlertTypePerformance, SeverityWarning,
		fmt.Sprintf("High response time detected: %.2fs", avg))
}

// checkErrorRateLocked raises an error rate alert when more than ten
// errors fall inside the trailing five minute window. Callers must
// hold mu.
func (hm *HealthMonitor) checkErrorRateLocked() *Alert {
	cutoff := hm.now().Add(-errorRateWindow)
	recent := 0
	for _, record := range hm.errorRecords {
		if record.Timestamp.After(cutoff) {
			recent++
		}
	}

	if recent <= errorRateLimit {
		return nil
	}

	return hm.appendAlertLocked(AlertTypeErrorRate, SeverityError,
		fmt.Sprintf("High error rate: %d errors in 5 minutes", recent))
}

// appendAlertLocked appends an alert unless the most recent alert
// carries the identical message. Returns nil when deduplicated.
// Callers must hold mu.
func (hm *HealthMonitor) appendAlertLocked(alertType string, severity AlertSeverity, message string) *Alert {
	if n := len(hm.alerts); n > 0 && hm.alerts[n-1].Message == message {
		return nil
	}

	alert := Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: hm.now(),
	}

	hm.alerts = append(hm.alerts, alert)
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[1:]
	}

	return &alert
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
