package alerting

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/scribeflow/resilience/internal/redisclient"
	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/resilience"
)

// LogChannel writes alerts to the structured log at a level matching the
// alert severity
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a log channel
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger}
}

// Name returns the channel name
func (c *LogChannel) Name() string {
	return "log"
}

// Send logs the alert
func (c *LogChannel) Send(ctx context.Context, alert resilience.Alert) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("type", alert.Type),
		zap.String("severity", string(alert.Severity)),
		zap.Time("raised_at", alert.Timestamp),
	}

	switch alert.Severity {
	case resilience.SeverityCritical, resilience.SeverityError:
		c.logger.Error(alert.Message, fields...)
	case resilience.SeverityWarning:
		c.logger.Warn(alert.Message, fields...)
	default:
		c.logger.Info(alert.Message, fields...)
	}
	return nil
}

// AlertFeedKey is the Redis list holding the shared alert feed
const AlertFeedKey = "scribeflow:alerts:feed"

// RedisChannel publishes alerts to a capped Redis list so other instances
// and dashboards can read a shared feed
type RedisChannel struct {
	redis   *redisclient.Client
	maxSize int64
}

// NewRedisChannel creates a Redis feed channel. maxSize bounds the feed
// length; values below 1 default to 100.
func NewRedisChannel(redis *redisclient.Client, maxSize int64) *RedisChannel {
	if maxSize < 1 {
		maxSize = 100
	}
	return &RedisChannel{
		redis:   redis,
		maxSize: maxSize,
	}
}

// Name returns the channel name
func (c *RedisChannel) Name() string {
	return "redis"
}

// Send appends the alert to the feed and trims it to the bound
func (c *RedisChannel) Send(ctx context.Context, alert resilience.Alert) error {
	if c.redis == nil {
		return errors.NewConnectionError("redis client is not configured")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return errors.NewInternalError("failed to encode alert").WithCause(err)
	}

	if err := c.redis.LPush(ctx, AlertFeedKey, payload); err != nil {
		return err
	}
	return c.redis.LTrim(ctx, AlertFeedKey, 0, c.maxSize-1)
}
