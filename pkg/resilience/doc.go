// Package resilience provides circuit breaking, retry with exponential
// backoff, health monitoring, service fallbacks and automatic error
// recovery for the ScribeFlow document-processing pipeline.
//
// This package implements the following patterns:
//
// # Circuit Breaker Pattern
//
// The circuit breaker opens after a run of consecutive failures and
// probes the service again once the recovery timeout has elapsed.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "summarization",
//		FailureThreshold: 5,
//		RecoveryTimeout:  60 * time.Second,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return summarizer.Call(ctx, text)
//	})
//
// # Retry with Exponential Backoff
//
// The retry manager retries failed operations under per-class policies
// with exponential backoff and jitter to avoid thundering herd
// problems.
//
//	rm := resilience.NewRetryManager()
//	result, err := rm.Execute(ctx, resilience.OpAPICall, func(ctx context.Context) (interface{}, error) {
//		return riskyOperation(ctx)
//	})
//
// # Health Monitoring
//
// The health monitor derives a system status from recorded request
// outcomes and raises alerts on sustained slowness or error bursts.
//
//	hm := resilience.NewHealthMonitor()
//	hm.RecordRequest(120*time.Millisecond, true)
//	status := hm.Status()
//
// # Service Fallbacks
//
// The fallback manager routes each service call through its circuit
// breaker and falls back to a registered alternative when the primary
// fails.
//
//	fm := resilience.NewFallbackManager(resilience.CircuitBreakerConfig{})
//	fm.Register("summarization", primary, fallback)
//	result, err := fm.Execute(ctx, "summarization", text)
//
// # Combined Usage
//
// The Manager wires all subsystems together and exposes them as
// composable middleware:
//
//	mgr := resilience.NewManager(resilience.DefaultManagerConfig(),
//		resilience.WithStateStore(store),
//	)
//	wrapped := resilience.Chain(mgr.WithResilience(resilience.OpAPICall), mgr.WithRecovery())(op)
//	result, err := wrapped(ctx)
//
// The package is designed to be thread-safe and can handle
// high-concurrency scenarios typical in request-serving systems.
package resilience
