package resilience

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/scribeflow/resilience/pkg/logging"
)

// Operation classes with distinct retry policies
const (
	OpAPICall        = "api_call"
	OpFileProcessing = "file_processing"
	OpDatabase       = "database"
)

// RetryPolicy holds the backoff parameters for one operation class
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int
	// BaseDelay is the first backoff delay, doubled on each further attempt
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration
}

// RetryManager retries operations with exponential backoff. Each
// operation class carries its own policy; unknown classes fall back to
// the api_call policy.
type RetryManager struct {
	mu       sync.RWMutex
	policies map[string]RetryPolicy

	logger *logging.Logger

	// jitter returns the random component added to each backoff delay.
	// The default derives it from the sub-second fraction of the wall
	// clock, spreading concurrent retries across up to one second.
	jitter func() time.Duration

	// OnRetry is called before each backoff sleep
	OnRetry func(class string, attempt int, err error, delay time.Duration)
}

// NewRetryManager creates a retry manager seeded with the built-in
// operation class policies
func NewRetryManager() *RetryManager {
	return &RetryManager{
		policies: map[string]RetryPolicy{
			OpAPICall:        {MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 60 * time.Second},
			OpFileProcessing: {MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
			OpDatabase:       {MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second},
		},
		logger: logging.GetLogger(),
		jitter: wallClockJitter,
	}
}

// Policy returns the policy for an operation class, falling back to the
// api_call policy for unknown classes
func (rm *RetryManager) Policy(class string) RetryPolicy {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if policy, ok := rm.policies[class]; ok {
		return policy
	}
	return rm.policies[OpAPICall]
}

// SetPolicy registers or replaces the policy for an operation class
func (rm *RetryManager) SetPolicy(class string, policy RetryPolicy) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.policies[class] = policy
}

// Execute runs the operation under the class policy: up to MaxRetries+1
// invocations with exponential backoff between attempts. Backoff sleeps
// honor context cancellation. On exhaustion the last error is returned
// as-is so callers can still match on it.
func (rm *RetryManager) Execute(ctx context.Context, class string, op Operation) (interface{}, error) {
	policy := rm.Policy(class)

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				rm.logger.Info("Operation succeeded after retry",
					"operation_type", class,
					"attempt", attempt+1,
				)
			}
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxRetries {
			break
		}

		delay := backoffDelay(policy, attempt, rm.jitter())

		rm.logger.Warn("Attempt failed, retrying",
			"operation_type", class,
			"attempt", attempt+1,
			"max_attempts", policy.MaxRetries+1,
			"error", err.Error(),
			"delay", delay.String(),
		)

		if rm.OnRetry != nil {
			rm.OnRetry(class, attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	rm.logger.Error("Operation failed after all retry attempts",
		"operation_type", class,
		"attempts", policy.MaxRetries+1,
		"error", lastErr.Error(),
	)

	return nil, lastErr
}

// backoffDelay computes base * 2^attempt plus jitter, capped at the
// policy maximum
func backoffDelay(policy RetryPolicy, attempt int, jitter time.Duration) time.Duration {
	delay := time.Duration(float64(policy.BaseDelay)*math.Pow(2, float64(attempt))) + jitter
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

func wallClockJitter() time.Duration {
	return time.Duration(time.Now().UnixNano() % int64(time.Second))
}
