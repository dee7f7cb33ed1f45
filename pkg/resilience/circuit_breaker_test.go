package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source shared by tests in this
// package
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreaker_DefaultBehavior(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test-cb"})

	// Initially closed
	assert.Equal(t, StateClosed, cb.State())

	// Successful requests keep it closed
	for i := 0; i < 5; i++ {
		result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, StateClosed, cb.State())
	}
}

func TestCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	// Below the threshold the circuit stays closed
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
		require.Error(t, err)
		assert.Equal(t, StateClosed, cb.State())
	}

	// Third consecutive failure opens the circuit
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())

	// Rejected calls never invoke the operation
	invoked := false
	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		invoked = true
		return "should not execute", nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.True(t, IsCircuitOpen(err))
}

func TestCircuitBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	fail := func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	}
	succeed := func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	}

	// Two failures, then a success, then two more failures: the run
	// never reaches three
	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), succeed)
	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	assert.Equal(t, StateClosed, cb.State())

	// One more consecutive failure opens it
	cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_RecoveryProbe(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Second,
		Clock:            clock,
	})

	// Trip the circuit
	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	// Before the recovery timeout calls are rejected
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "too early", nil
	})
	assert.True(t, IsCircuitOpen(err))

	// After the timeout the next call runs as a half-open trial and a
	// success closes the circuit
	clock.Advance(1100 * time.Millisecond)
	result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, StateClosed, cb.State())

	snapshot := cb.Snapshot()
	assert.Equal(t, 0, snapshot.FailureCount)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Second,
		Clock:            clock,
	})

	// Trip the circuit
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	// A failing trial re-opens immediately
	clock.Advance(1100 * time.Millisecond)
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("still broken")
	})
	require.Error(t, err)
	assert.False(t, IsCircuitOpen(err))
	assert.Equal(t, StateOpen, cb.State())

	// And the open period starts over
	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "too early", nil
	})
	assert.True(t, IsCircuitOpen(err))
}

func TestCircuitBreaker_ErrorsReturnedUnwrapped(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test-cb"})

	sentinel := errors.New("sentinel")
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, sentinel
	})
	assert.Same(t, sentinel, err)
}

func TestCircuitBreaker_Panic(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
	})

	// Panics propagate and still count as failures
	assert.Panics(t, func() {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			panic("test panic")
		})
	})

	snapshot := cb.Snapshot()
	assert.Equal(t, 1, snapshot.FailureCount)
	assert.Equal(t, StateClosed, cb.State())

	// The breaker keeps working after a panic
	result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test-cb"})

	result, err := cb.Call(func() (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "success", result)

	_, err = cb.Call(func() (interface{}, error) {
		return nil, errors.New("test error")
	})
	require.Error(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	clock := newFakeClock()
	var transitions []string

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Second,
		Clock:            clock,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("test error")
		})
	}

	clock.Advance(1100 * time.Millisecond)
	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})

	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		Clock:            clock,
	})

	snapshot := cb.Snapshot()
	assert.Equal(t, "CLOSED", snapshot.State)
	assert.Equal(t, 0, snapshot.FailureCount)
	assert.Nil(t, snapshot.LastFailure)

	cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("test error")
	})

	snapshot = cb.Snapshot()
	assert.Equal(t, 1, snapshot.FailureCount)
	require.NotNil(t, snapshot.LastFailure)
	assert.Equal(t, clock.Now(), *snapshot.LastFailure)
}

func TestIsCircuitOpen(t *testing.T) {
	assert.False(t, IsCircuitOpen(errors.New("regular error")))
	assert.False(t, IsCircuitOpen(nil))

	rejection := &CircuitOpenError{Name: "svc"}
	assert.True(t, IsCircuitOpen(rejection))
	assert.Equal(t, "circuit breaker 'svc' is open", rejection.Error())

	// Detection survives wrapping
	wrapped := fmt.Errorf("calling svc: %w", rejection)
	assert.True(t, IsCircuitOpen(wrapped))
}

func TestCircuitBreaker_SerializesCalls(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test-cb"})

	// Concurrent executions never overlap because the breaker holds its
	// lock across the wrapped call
	var inFlight, maxInFlight int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil, nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}
