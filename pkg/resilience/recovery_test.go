package resilience

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/scribeflow/resilience/pkg/errors"
)

func TestErrorRecovery_MemoryError(t *testing.T) {
	store := newFakeStore()
	store.cacheSize = 5
	er := NewErrorRecovery(store)

	result, err := er.Recover(context.Background(), apperrors.NewMemoryError("out of memory"), FailureContext{})
	require.NoError(t, err)
	assert.Equal(t, RecoveryResult{Status: RecoveryAttempted, Message: "Memory cleaned up"}, result)
	assert.True(t, store.cacheCleared)
}

func TestErrorRecovery_MemoryErrorEmptyCache(t *testing.T) {
	store := newFakeStore()
	er := NewErrorRecovery(store)

	// Nothing to clear, recovery still succeeds
	result, err := er.Recover(context.Background(), apperrors.NewMemoryError("out of memory"), FailureContext{})
	require.NoError(t, err)
	assert.Equal(t, "Memory cleaned up", result.Message)
	assert.False(t, store.cacheCleared)
}

func TestErrorRecovery_TimeoutBackoffCancelled(t *testing.T) {
	er := NewErrorRecovery(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled backoff sleep fails the strategy; the original error
	// comes back
	cause := apperrors.NewTimeoutError("model call")
	_, err := er.Recover(ctx, cause, FailureContext{})
	assert.Same(t, cause, err)
}

func TestErrorRecovery_ConnectionBackoff(t *testing.T) {
	er := NewErrorRecovery(nil)

	start := time.Now()
	result, err := er.Recover(context.Background(), apperrors.NewConnectionError("refused"), FailureContext{})
	require.NoError(t, err)
	assert.Equal(t, RecoveryResult{Status: RecoveryAttempted, Message: "Applied connection retry backoff"}, result)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestErrorRecovery_NotFoundCreatesDirectories(t *testing.T) {
	er := NewErrorRecovery(nil)

	path := filepath.Join(t.TempDir(), "nested", "deep", "report.txt")
	result, err := er.Recover(context.Background(), apperrors.NewNotFoundError("report"), FailureContext{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, "Created missing directories", result.Message)
	assert.DirExists(t, filepath.Dir(path))
}

func TestErrorRecovery_NotFoundWithoutPath(t *testing.T) {
	er := NewErrorRecovery(nil)

	// No path to create, recovery still reports the attempt
	result, err := er.Recover(context.Background(), apperrors.NewNotFoundError("session"), FailureContext{})
	require.NoError(t, err)
	assert.Equal(t, RecoveryAttempted, result.Status)
}

func TestErrorRecovery_ValidationFailed(t *testing.T) {
	er := NewErrorRecovery(nil)

	cause := apperrors.NewValidationError("document too large")
	result, err := er.Recover(context.Background(), cause, FailureContext{})
	require.NoError(t, err)
	assert.Equal(t, RecoveryValidationFailed, result.Status)
	assert.Equal(t, cause.Error(), result.Message)
}

func TestErrorRecovery_NoStrategy(t *testing.T) {
	er := NewErrorRecovery(nil)

	// Internal errors carry no default strategy
	cause := apperrors.NewInternalError("broken invariant")
	_, err := er.Recover(context.Background(), cause, FailureContext{})
	assert.Same(t, cause, err)

	// Neither do unclassified errors
	plain := errors.New("mystery")
	_, err = er.Recover(context.Background(), plain, FailureContext{})
	assert.Same(t, plain, err)
}

func TestErrorRecovery_WrappedErrorsClassified(t *testing.T) {
	store := newFakeStore()
	store.cacheSize = 1
	er := NewErrorRecovery(store)

	// Classification walks the chain, so wrapping changes nothing
	wrapped := fmt.Errorf("processing page 4: %w", apperrors.NewMemoryError("oom"))
	result, err := er.Recover(context.Background(), wrapped, FailureContext{})
	require.NoError(t, err)
	assert.Equal(t, "Memory cleaned up", result.Message)
	assert.True(t, store.cacheCleared)
}

func TestErrorRecovery_StrategyFailureReturnsOriginal(t *testing.T) {
	er := NewErrorRecovery(nil)
	er.SetStrategy(apperrors.KindInternal, func(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
		return RecoveryResult{}, errors.New("recovery exploded")
	})

	cause := apperrors.NewInternalError("broken")
	_, err := er.Recover(context.Background(), cause, FailureContext{})
	assert.Same(t, cause, err)
}

func TestErrorRecovery_SetStrategyOverrides(t *testing.T) {
	er := NewErrorRecovery(nil)
	er.SetStrategy(apperrors.KindMemory, func(ctx context.Context, cause error, fctx FailureContext) (RecoveryResult, error) {
		return RecoveryResult{Status: RecoveryAttempted, Message: "custom handler"}, nil
	})

	result, err := er.Recover(context.Background(), apperrors.NewMemoryError("oom"), FailureContext{})
	require.NoError(t, err)
	assert.Equal(t, "custom handler", result.Message)
}
