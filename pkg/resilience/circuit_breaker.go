package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scribeflow/resilience/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, calls are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, calls are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, a single trial call is allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

const (
	// DefaultFailureThreshold is the consecutive failure count that opens the circuit
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is the open period before a trial call is allowed
	DefaultRecoveryTimeout = 60 * time.Second
)

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// RecoveryTimeout is the period of the open state after which
	// the next call runs as a half-open trial
	RecoveryTimeout time.Duration
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
	// Clock overrides the time source, primarily for tests
	Clock Clock
}

// CircuitBreaker rejects calls to a downstream service after a run of
// consecutive failures and probes it again once the recovery timeout
// has elapsed.
//
// The mutex is held for the entire wrapped call: operations guarded by
// one breaker are serialized, and the state a call observes cannot
// change underneath it.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	onStateChange    func(name string, from CircuitState, to CircuitState)
	clock            Clock
	logger           *logging.Logger

	mutex        sync.Mutex
	state        CircuitState
	failureCount int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		recoveryTimeout:  config.RecoveryTimeout,
		onStateChange:    config.OnStateChange,
		clock:            config.Clock,
		logger:           logging.GetLogger(),
		state:            StateClosed,
	}

	if cb.failureThreshold <= 0 {
		cb.failureThreshold = DefaultFailureThreshold
	}
	if cb.recoveryTimeout <= 0 {
		cb.recoveryTimeout = DefaultRecoveryTimeout
	}
	if cb.clock == nil {
		cb.clock = SystemClock()
	}

	return cb
}

// Execute runs the given operation if the circuit breaker accepts it.
// When the circuit is open and the recovery timeout has not elapsed the
// operation is not invoked and a *CircuitOpenError is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.lastFailure) < cb.recoveryTimeout {
			return nil, &CircuitOpenError{Name: cb.name}
		}
		cb.setStateLocked(StateHalfOpen)
	}

	defer func() {
		if r := recover(); r != nil {
			cb.failureLocked()
			panic(r)
		}
	}()

	result, err := op(ctx)
	if err != nil {
		cb.failureLocked()
		return nil, err
	}

	cb.successLocked()
	return result, nil
}

// Call is a convenience method wrapping Execute for functions that don't need context
func (cb *CircuitBreaker) Call(fn func() (interface{}, error)) (interface{}, error) {
	return cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return fn()
	})
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// BreakerSnapshot is a point-in-time view of a breaker for metrics reporting
type BreakerSnapshot struct {
	State        string     `json:"state"`
	FailureCount int        `json:"failure_count"`
	LastFailure  *time.Time `json:"last_failure"`
}

// Snapshot returns the breaker state for metrics reporting
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	snapshot := BreakerSnapshot{
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
	}
	if !cb.lastFailure.IsZero() {
		lastFailure := cb.lastFailure
		snapshot.LastFailure = &lastFailure
	}
	return snapshot
}

// successLocked resets the failure run and closes the circuit.
// Callers must hold the mutex.
func (cb *CircuitBreaker) successLocked() {
	cb.failureCount = 0
	cb.setStateLocked(StateClosed)
}

// failureLocked records a failure and opens the circuit once the run
// reaches the threshold. A half-open trial failure re-opens immediately
// because the count is already at the threshold. Callers must hold the
// mutex.
func (cb *CircuitBreaker) failureLocked() {
	cb.failureCount++
	cb.lastFailure = cb.clock.Now()

	if cb.failureCount >= cb.failureThreshold {
		cb.setStateLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(state CircuitState) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"failure_count", cb.failureCount,
	)
}

// CircuitOpenError is returned when a call is rejected by an open circuit
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

// IsCircuitOpen checks if an error is an open-circuit rejection
func IsCircuitOpen(err error) bool {
	var cbErr *CircuitOpenError
	return errors.As(err, &cbErr)
}
