package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scribeflow/resilience/internal/redisclient"
	"github.com/scribeflow/resilience/pkg/logging"
)

// RequestIDMiddleware assigns a request ID to every request. An incoming
// X-Request-ID header is honored so callers can correlate across services.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// LoggingMiddleware logs each request with its status and duration
func LoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// ErrorHandlingMiddleware recovers from panics in handlers and converts
// them into a 500 response instead of dropping the connection.
func ErrorHandlingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.LogPanic(c.Request.Context(), recovered, "Panic in request handler")
				InternalErrorResponse(c, "An unexpected error occurred")
				c.Abort()
			}
		}()

		c.Next()
	}
}

const (
	rateLimitRequests = 100
	rateLimitWindow   = 60 * time.Second
)

// RateLimitMiddleware limits each client IP to a fixed number of
// requests per window, tracked in redis. When redis is nil or
// unreachable requests are allowed through so the API keeps working
// without it.
func RateLimitMiddleware(redis *redisclient.Client, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redis == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("rate_limit:%s", c.ClientIP())

		pipe := redis.Client().Pipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rateLimitWindow)

		if _, err := pipe.Exec(ctx); err != nil {
			logger.LogError(ctx, err, "Rate limit check failed, allowing request", nil)
			c.Next()
			return
		}

		if incr.Val() > rateLimitRequests {
			c.Header("Retry-After", fmt.Sprintf("%d", int(rateLimitWindow.Seconds())))
			TooManyRequestsResponse(c, "Rate limit exceeded, try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
