package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/logging"
	"github.com/scribeflow/resilience/pkg/metrics"
	"github.com/scribeflow/resilience/pkg/state"
)

// ServiceSummarization is the fallback-only service registered by
// default. The document pipeline installs the model-backed primary at
// startup.
const ServiceSummarization = "summarization"

// ManagerConfig holds the background loop settings and the template for
// per-service circuit breakers
type ManagerConfig struct {
	// HealthCheckInterval is the period of the health evaluation loop
	HealthCheckInterval time.Duration
	// CleanupInterval is the period of the session cleanup loop
	CleanupInterval time.Duration
	// MinRequests is the health monitor warmup threshold
	MinRequests int
	// Breaker is the template applied to every per-service breaker
	Breaker CircuitBreakerConfig
}

// DefaultManagerConfig returns the production defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HealthCheckInterval: 60 * time.Second,
		CleanupInterval:     time.Hour,
		MinRequests:         DefaultMinRequests,
	}
}

// Option configures a Manager during construction
type Option func(*Manager)

// WithLogger overrides the global logger
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStateStore attaches the persistent state store. Without it the
// manager runs on a no-op store and nothing survives restarts.
func WithStateStore(store StateStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithClock overrides the time source, primarily for tests
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithAlertNotifier attaches a notifier receiving monitor and health
// loop alerts
func WithAlertNotifier(notifier AlertNotifier) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// WithMetrics attaches the Prometheus collectors. All recording calls
// are safe without it.
func WithMetrics(collector *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = collector
	}
}

// Manager wires the retry, health monitoring, fallback, recovery and
// state subsystems together and runs the background health and cleanup
// loops. One Manager serves the whole process; construct it once and
// inject it where resilience wrapping is needed.
type Manager struct {
	config ManagerConfig
	logger *logging.Logger
	clock  Clock

	retry    *RetryManager
	monitor  *HealthMonitor
	fallback *FallbackManager
	recovery *ErrorRecovery
	store    StateStore
	metrics  *metrics.Metrics
	notifier AlertNotifier

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager creates a fully wired resilience manager. Zero-value
// config fields fall back to DefaultManagerConfig.
func NewManager(config ManagerConfig, opts ...Option) *Manager {
	defaults := DefaultManagerConfig()
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.MinRequests <= 0 {
		config.MinRequests = defaults.MinRequests
	}

	m := &Manager{
		config: config,
		logger: logging.GetLogger(),
		clock:  SystemClock(),
		store:  NoopStore(),
	}

	for _, opt := range opts {
		opt(m)
	}

	breakerCfg := m.config.Breaker
	if breakerCfg.Clock == nil {
		breakerCfg.Clock = m.clock
	}
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(name string, from, to CircuitState) {
			m.metrics.SetBreakerState(name, to.String())
		}
	}

	m.retry = NewRetryManager()
	m.retry.OnRetry = func(class string, attempt int, err error, delay time.Duration) {
		m.metrics.RecordRetry(class)
	}

	m.monitor = NewHealthMonitor()
	m.monitor.SetMinRequests(m.config.MinRequests)
	m.monitor.SetAlertSink(m.alertSink)

	m.fallback = NewFallbackManager(breakerCfg)
	m.fallback.OnOutcome = func(service, outcome string) {
		m.metrics.RecordFallback(service, outcome)
	}

	m.recovery = NewErrorRecovery(m.store)

	m.registerDefaultFallbacks()

	return m
}

// registerDefaultFallbacks installs the fallback-only strategies every
// deployment carries
func (m *Manager) registerDefaultFallbacks() {
	m.fallback.Register(ServiceSummarization, nil, func(ctx context.Context, args interface{}) (interface{}, error) {
		text, ok := args.(string)
		if !ok {
			return nil, errors.NewValidationError("summarization fallback expects a text argument")
		}
		return SummarizeFallback(text), nil
	})
}

func (m *Manager) alertSink(alert Alert) {
	m.metrics.RecordAlert(alert.Type, string(alert.Severity))
	if m.notifier != nil {
		m.notifier.Notify(context.Background(), alert)
	}
}

// Start launches the health check and state cleanup loops. It returns
// an error when the manager is already running.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return errors.NewInternalError("resilience manager is already running")
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.healthLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		m.cleanupLoop(ctx)
	}()
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(m.doneCh)

	m.logger.Info("Health monitoring started", "interval", m.config.HealthCheckInterval.String())
	m.logger.Info("State cleanup started", "interval", m.config.CleanupInterval.String())
	return nil
}

// Stop signals both loops and waits for them to exit. The wait is
// bounded by the context.
func (m *Manager) Stop(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return nil
	}
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}

	select {
	case <-m.doneCh:
		m.running = false
		m.logger.Info("Resilience manager stopped")
		return nil
	case <-ctx.Done():
		return errors.NewTimeoutError("resilience manager shutdown")
	}
}

func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runHealthCheck(ctx)
		}
	}
}

// runHealthCheck evaluates system health once. A failure here must
// never kill the loop.
func (m *Manager) runHealthCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Health check error", "panic", fmt.Sprintf("%v", r))
		}
	}()

	status := m.monitor.Status()

	switch status.Status {
	case StatusUnhealthy:
		m.logger.Error("System unhealthy",
			"message", status.Message,
			"requests_total", status.RequestsTotal,
		)
		m.raiseHealthAlert(ctx, SeverityCritical, status)
	case StatusDegraded:
		m.logger.Warn("System degraded",
			"message", status.Message,
			"requests_total", status.RequestsTotal,
		)
		m.raiseHealthAlert(ctx, SeverityWarning, status)
	case StatusIdle, StatusStarting:
		m.logger.Debug("System "+status.Status, "message", status.Message)
	default:
		// Healthy systems log occasionally to avoid spam
		if status.RequestsTotal > 0 && status.RequestsTotal%100 == 0 {
			m.logger.Info(fmt.Sprintf("System healthy: %d requests processed", status.RequestsTotal))
		}
	}

	m.store.Set("health_status", status)
	m.metrics.SetHealthStatus(status.Status)
}

func (m *Manager) raiseHealthAlert(ctx context.Context, severity AlertSeverity, status HealthStatus) {
	if m.notifier == nil {
		return
	}

	alert := Alert{
		ID:        uuid.New().String(),
		Type:      AlertTypeHealth,
		Severity:  severity,
		Message:   fmt.Sprintf("System %s: %s", status.Status, status.Message),
		Timestamp: m.clock.Now(),
	}
	m.metrics.RecordAlert(alert.Type, string(alert.Severity))
	m.notifier.Notify(ctx, alert)
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runCleanup()
		}
	}
}

func (m *Manager) runCleanup() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Cleanup error", "panic", fmt.Sprintf("%v", r))
		}
	}()

	m.store.CleanupSessions()
	m.store.RequestSave()
}

// Monitor returns middleware recording every invocation's response time
// and failure under the given operation name
func (m *Manager) Monitor(name string) Middleware {
	return func(next Operation) Operation {
		return func(ctx context.Context) (interface{}, error) {
			start := m.clock.Now()
			result, err := next(ctx)
			duration := m.clock.Now().Sub(start)

			if err != nil {
				m.monitor.RecordError(err, map[string]string{
					"function": truncate(name, 100),
				})
			}
			m.monitor.RecordRequest(duration, err == nil)
			m.metrics.RecordOperation(name, duration, err == nil)

			return result, err
		}
	}
}

// WithResilience combines monitoring and retries for one operation
// class. The monitor wraps the operation inside the retry loop, so
// every attempt is recorded, not just the final outcome.
func (m *Manager) WithResilience(operationType string) Middleware {
	return func(next Operation) Operation {
		monitored := m.Monitor(operationType)(next)
		return func(ctx context.Context) (interface{}, error) {
			return m.retry.Execute(ctx, operationType, monitored)
		}
	}
}

// WithFallback routes the operation through the named service's
// fallback strategy. When the service has no primary yet, the wrapped
// operation is installed as the primary on first use.
func (m *Manager) WithFallback(service string) Middleware {
	return func(next Operation) Operation {
		return func(ctx context.Context) (interface{}, error) {
			if !m.fallback.HasPrimary(service) {
				m.fallback.SetPrimary(service, func(ctx context.Context, _ interface{}) (interface{}, error) {
					return next(ctx)
				})
			}
			return m.fallback.Execute(ctx, service, nil)
		}
	}
}

// WithRecovery attempts automatic recovery when the operation fails. A
// successful strategy substitutes its result for the operation's;
// otherwise the original error comes back.
func (m *Manager) WithRecovery() Middleware {
	return func(next Operation) Operation {
		return func(ctx context.Context) (interface{}, error) {
			result, err := next(ctx)
			if err == nil {
				return result, nil
			}

			recovered, recErr := m.recovery.Recover(ctx, err, FailureContext{})
			m.metrics.RecordRecovery(string(errors.KindOf(err)), recErr == nil)
			if recErr != nil {
				return nil, recErr
			}
			return recovered, nil
		}
	}
}

// ExecuteWithFallback invokes a registered service directly with the
// caller's arguments
func (m *Manager) ExecuteWithFallback(ctx context.Context, service string, args interface{}) (interface{}, error) {
	return m.fallback.Execute(ctx, service, args)
}

// GetHealthStatus returns the current derived health status
func (m *Manager) GetHealthStatus() HealthStatus {
	return m.monitor.Status()
}

// SystemMetrics aggregates health, breaker and state information for
// the system metrics endpoint
type SystemMetrics struct {
	Health          HealthStatus               `json:"health"`
	CircuitBreakers map[string]BreakerSnapshot `json:"circuit_breakers"`
	State           state.Info                 `json:"state_info"`
	UptimeSeconds   float64                    `json:"uptime"`
}

// GetSystemMetrics returns a point-in-time view across all subsystems
func (m *Manager) GetSystemMetrics() SystemMetrics {
	health := m.monitor.Status()

	return SystemMetrics{
		Health:          health,
		CircuitBreakers: m.fallback.BreakerSnapshots(),
		State:           m.store.Info(),
		UptimeSeconds:   health.UptimeSeconds,
	}
}

// SimulateActivity records synthetic request activity for exercising
// the health monitor in development environments
func (m *Manager) SimulateActivity(numRequests int, successRate float64) {
	if numRequests <= 0 {
		numRequests = 10
	}
	if successRate <= 0 || successRate > 1 {
		successRate = 0.9
	}

	for i := 0; i < numRequests; i++ {
		responseTime := time.Duration((0.1 + rand.Float64()*1.9) * float64(time.Second))
		success := rand.Float64() < successRate
		m.monitor.RecordRequest(responseTime, success)
	}

	m.logger.Info(fmt.Sprintf("Simulated %d requests with %.0f%% success rate", numRequests, successRate*100))
}

// ResetHealthMetrics clears the health monitor's counters and windows
func (m *Manager) ResetHealthMetrics() {
	m.monitor.Reset()
	m.logger.Info("Health metrics reset")
}

// ForceHealthCheck records a synthetic healthy request and returns the
// resulting status, letting probes verify the monitoring pipeline end
// to end
func (m *Manager) ForceHealthCheck() HealthStatus {
	m.monitor.ForceCheck()
	return m.monitor.Status()
}

// Retry exposes the retry manager for policy tuning
func (m *Manager) Retry() *RetryManager { return m.retry }

// Fallback exposes the fallback manager for service registration
func (m *Manager) Fallback() *FallbackManager { return m.fallback }

// Recovery exposes the error recovery registry
func (m *Manager) Recovery() *ErrorRecovery { return m.recovery }

// HealthMonitor exposes the health monitor
func (m *Manager) HealthMonitor() *HealthMonitor { return m.monitor }

// Store exposes the state store the manager was built with
func (m *Manager) Store() StateStore { return m.store }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
