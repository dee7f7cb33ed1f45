package resilience

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/logging"
)

// Recovery result statuses
const (
	RecoveryAttempted        = "recovery_attempted"
	RecoveryValidationFailed = "validation_failed"
)

// RecoveryResult is the substitute result a successful recovery hands
// back to the caller in place of the failed operation's result
type RecoveryResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FailureContext carries what the recovery strategies know about the
// failed operation
type FailureContext struct {
	Operation string            `json:"operation"`
	FilePath  string            `json:"file_path,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
}

// RecoveryFunc attempts to remediate one kind of failure
type RecoveryFunc func(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error)

// ErrorRecovery holds remediation strategies keyed by error kind.
// Classification relies on the error chain, never on message text, so
// wrapped errors recover the same way as bare ones.
type ErrorRecovery struct {
	mu         sync.RWMutex
	strategies map[errors.ErrorKind]RecoveryFunc

	store  StateStore
	logger *logging.Logger
}

// NewErrorRecovery creates a recovery registry seeded with the default
// strategies
func NewErrorRecovery(store StateStore) *ErrorRecovery {
	if store == nil {
		store = NoopStore()
	}

	er := &ErrorRecovery{
		strategies: make(map[errors.ErrorKind]RecoveryFunc),
		store:      store,
		logger:     logging.GetLogger(),
	}

	er.strategies[errors.KindMemory] = er.handleMemory
	er.strategies[errors.KindTimeout] = er.handleTimeout
	er.strategies[errors.KindNotFound] = er.handleNotFound
	er.strategies[errors.KindConnection] = er.handleConnection
	er.strategies[errors.KindValidation] = er.handleValidation

	return er
}

// SetStrategy registers or replaces the strategy for an error kind
func (er *ErrorRecovery) SetStrategy(kind errors.ErrorKind, fn RecoveryFunc) {
	er.mu.Lock()
	er.strategies[kind] = fn
	er.mu.Unlock()
}

// Recover attempts to remediate the failure. On success the returned
// RecoveryResult substitutes for the failed operation's result. When no
// strategy matches, or the strategy itself fails, the original error is
// returned unchanged.
func (er *ErrorRecovery) Recover(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
	kind := errors.KindOf(cause)

	er.mu.RLock()
	strategy, ok := er.strategies[kind]
	er.mu.RUnlock()

	if !ok {
		er.logger.Warn("No recovery strategy for error kind",
			"kind", string(kind),
			"operation", fctx.Operation,
		)
		return RecoveryResult{}, cause
	}

	er.logger.Info("Attempting recovery",
		"kind", string(kind),
		"operation", fctx.Operation,
	)

	result, err := strategy(ctx, cause, fctx)
	if err != nil {
		er.logger.Error("Recovery failed",
			"kind", string(kind),
			"error", err.Error(),
		)
		return RecoveryResult{}, cause
	}

	return result, nil
}

// handleMemory frees what it can: force a GC cycle and drop the
// application cache
func (er *ErrorRecovery) handleMemory(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
	runtime.GC()

	if er.store.Info().CacheSize > 0 {
		er.store.ClearCache()
		er.logger.Info("Cleared application cache to free memory")
	}

	return RecoveryResult{Status: RecoveryAttempted, Message: "Memory cleaned up"}, nil
}

// handleTimeout backs off before the caller tries again
func (er *ErrorRecovery) handleTimeout(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
	if err := sleepCtx(ctx, 2*time.Second); err != nil {
		return RecoveryResult{}, err
	}
	return RecoveryResult{Status: RecoveryAttempted, Message: "Applied timeout backoff"}, nil
}

// handleNotFound creates the missing parent directories of the failed
// file path
func (er *ErrorRecovery) handleNotFound(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
	if fctx.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(fctx.FilePath), 0755); err != nil {
			return RecoveryResult{}, err
		}
	}
	return RecoveryResult{Status: RecoveryAttempted, Message: "Created missing directories"}, nil
}

// handleConnection backs off briefly before the caller reconnects
func (er *ErrorRecovery) handleConnection(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
	if err := sleepCtx(ctx, time.Second); err != nil {
		return RecoveryResult{}, err
	}
	return RecoveryResult{Status: RecoveryAttempted, Message: "Applied connection retry backoff"}, nil
}

// handleValidation performs no remediation; bad input stays bad
func (er *ErrorRecovery) handleValidation(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
	return RecoveryResult{Status: RecoveryValidationFailed, Message: cause.Error()}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
