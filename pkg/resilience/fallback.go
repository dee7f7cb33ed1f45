package resilience

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/logging"
)

// ServiceFunc is a service call that receives the caller's arguments.
// Registered primaries and fallbacks share this shape so a fallback can
// serve the same request its primary just failed.
type ServiceFunc func(ctx context.Context, args interface{}) (interface{}, error)

// UnregisteredServiceError is returned when no fallback strategy exists
// for the requested service
type UnregisteredServiceError struct {
	Service string
}

func (e *UnregisteredServiceError) Error() string {
	return fmt.Sprintf("no fallback strategy registered for %s", e.Service)
}

// CompositeFallbackError is returned when both the primary and the
// fallback fail; it carries both causes
type CompositeFallbackError struct {
	Service  string
	Primary  error
	Fallback error
}

func (e *CompositeFallbackError) Error() string {
	return fmt.Sprintf("service %s completely unavailable. Primary: %v, Fallback: %v",
		e.Service, e.Primary, e.Fallback)
}

func (e *CompositeFallbackError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

type fallbackStrategy struct {
	primary  ServiceFunc
	fallback ServiceFunc
	breaker  *CircuitBreaker
}

// Outcomes reported through OnOutcome after every Execute call
const (
	OutcomePrimary  = "primary"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// FallbackManager routes service calls through a per-service circuit
// breaker and falls back to the registered alternative when the primary
// fails for any reason, including an open circuit.
type FallbackManager struct {
	mu            sync.RWMutex
	strategies    map[string]*fallbackStrategy
	breakerConfig CircuitBreakerConfig
	logger        *logging.Logger

	// OnOutcome, if set, receives the outcome of every Execute call.
	// Assign it before the manager is shared across goroutines.
	OnOutcome func(service, outcome string)
}

// NewFallbackManager creates a fallback manager. New service breakers
// are built from breakerConfig with the service name filled in.
func NewFallbackManager(breakerConfig CircuitBreakerConfig) *FallbackManager {
	return &FallbackManager{
		strategies:    make(map[string]*fallbackStrategy),
		breakerConfig: breakerConfig,
		logger:        logging.GetLogger(),
	}
}

// Register installs (or replaces) the strategy for a service. The
// primary may be nil for fallback-only services; registration always
// resets the service's circuit breaker.
func (fm *FallbackManager) Register(service string, primary, fallback ServiceFunc) {
	cfg := fm.breakerConfig
	cfg.Name = service

	fm.mu.Lock()
	fm.strategies[service] = &fallbackStrategy{
		primary:  primary,
		fallback: fallback,
		breaker:  NewCircuitBreaker(cfg),
	}
	fm.mu.Unlock()

	fm.logger.Info("Registered fallback for service", "service", service)
}

// HasPrimary reports whether the service has a registered primary
func (fm *FallbackManager) HasPrimary(service string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	strategy, ok := fm.strategies[service]
	return ok && strategy.primary != nil
}

// SetPrimary installs the primary for an already registered service,
// keeping its fallback and breaker
func (fm *FallbackManager) SetPrimary(service string, primary ServiceFunc) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	strategy, ok := fm.strategies[service]
	if !ok {
		return false
	}
	strategy.primary = primary
	return true
}

// Execute runs the service's primary through its circuit breaker and
// falls back on any failure. When both fail the returned error carries
// both causes.
func (fm *FallbackManager) Execute(ctx context.Context, service string, args interface{}) (interface{}, error) {
	fm.mu.RLock()
	strategy, ok := fm.strategies[service]
	var primary, fallback ServiceFunc
	var breaker *CircuitBreaker
	if ok {
		primary = strategy.primary
		fallback = strategy.fallback
		breaker = strategy.breaker
	}
	fm.mu.RUnlock()

	if !ok {
		return nil, &UnregisteredServiceError{Service: service}
	}

	result, primaryErr := fm.callPrimary(ctx, service, primary, breaker, args)
	if primaryErr == nil {
		fm.logger.Debug("Primary service succeeded", "service", service)
		fm.reportOutcome(service, OutcomePrimary)
		return result, nil
	}

	if primary == nil {
		fm.logger.Debug("No primary registered, using fallback", "service", service)
	} else {
		fm.logger.Warn("Primary service failed",
			"service", service,
			"error", primaryErr.Error(),
		)
	}

	if fallback == nil {
		fm.reportOutcome(service, OutcomeFailed)
		return nil, primaryErr
	}

	result, fallbackErr := fallback(ctx, args)
	if fallbackErr == nil {
		fm.logger.Info("Fallback successful", "service", service)
		fm.reportOutcome(service, OutcomeFallback)
		return result, nil
	}

	fm.logger.Error("Both primary and fallback failed",
		"service", service,
		"primary_error", primaryErr.Error(),
		"fallback_error", fallbackErr.Error(),
	)

	fm.reportOutcome(service, OutcomeFailed)
	return nil, &CompositeFallbackError{
		Service:  service,
		Primary:  primaryErr,
		Fallback: fallbackErr,
	}
}

func (fm *FallbackManager) callPrimary(ctx context.Context, service string, primary ServiceFunc, breaker *CircuitBreaker, args interface{}) (interface{}, error) {
	if primary == nil {
		return nil, errors.NewInternalError(fmt.Sprintf("no primary service registered for %s", service))
	}

	return breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return primary(ctx, args)
	})
}

func (fm *FallbackManager) reportOutcome(service, outcome string) {
	if fm.OnOutcome != nil {
		fm.OnOutcome(service, outcome)
	}
}

// BreakerSnapshots returns the state of every service breaker for
// metrics reporting
func (fm *FallbackManager) BreakerSnapshots() map[string]BreakerSnapshot {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	snapshots := make(map[string]BreakerSnapshot, len(fm.strategies))
	for service, strategy := range fm.strategies {
		snapshots[service] = strategy.breaker.Snapshot()
	}
	return snapshots
}

// SummarizeFallback produces a crude extract of the first three
// sentences, marking the result as fallback output. It backs the
// default summarization strategy when the model-backed service is
// unavailable.
func SummarizeFallback(text string) string {
	sentences := strings.Split(text, ".")
	if len(sentences) > 3 {
		sentences = sentences[:3]
	}
	return strings.Join(sentences, ". ") + "... [Summarized using fallback method]"
}
