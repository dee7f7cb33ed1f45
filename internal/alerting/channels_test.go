package alerting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/resilience"
)

func TestLogChannel_Send(t *testing.T) {
	channel := NewLogChannel(zaptest.NewLogger(t))

	severities := []resilience.AlertSeverity{
		resilience.SeverityInfo,
		resilience.SeverityWarning,
		resilience.SeverityError,
		resilience.SeverityCritical,
	}
	for _, severity := range severities {
		assert.NoError(t, channel.Send(context.Background(), testAlert(severity)))
	}
}

func TestLogChannel_NilLogger(t *testing.T) {
	channel := NewLogChannel(nil)
	assert.NoError(t, channel.Send(context.Background(), testAlert(resilience.SeverityInfo)))
}

func TestRedisChannel_NoClient(t *testing.T) {
	channel := NewRedisChannel(nil, 10)

	err := channel.Send(context.Background(), testAlert(resilience.SeverityError))
	require.Error(t, err)
	assert.Equal(t, errors.KindConnection, errors.KindOf(err))
}

func TestRedisChannel_FeedBound(t *testing.T) {
	channel := NewRedisChannel(nil, 0)
	assert.Equal(t, int64(100), channel.maxSize)
}
