package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scribeflow/resilience/pkg/errors"
)

// APIResponse is the standard response envelope
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries the error code and message for failed requests
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func requestIDFrom(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// SuccessResponse sends a 200 response with data
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestIDFrom(c),
		Timestamp: time.Now(),
	})
}

// CreatedResponse sends a 201 response with data
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestIDFrom(c),
		Timestamp: time.Now(),
	})
}

func errorResponse(c *gin.Context, statusCode int, apiError *APIError) {
	c.JSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: requestIDFrom(c),
		Timestamp: time.Now(),
	})
}

// BadRequestResponse sends a 400 response
func BadRequestResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusBadRequest, &APIError{Code: "BAD_REQUEST", Message: message})
}

// ForbiddenResponse sends a 403 response
func ForbiddenResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusForbidden, &APIError{Code: "FORBIDDEN", Message: message})
}

// NotFoundResponse sends a 404 response
func NotFoundResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusNotFound, &APIError{Code: "NOT_FOUND", Message: message})
}

// TooManyRequestsResponse sends a 429 response
func TooManyRequestsResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusTooManyRequests, &APIError{Code: "RATE_LIMIT_EXCEEDED", Message: message})
}

// InternalErrorResponse sends a 500 response
func InternalErrorResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusInternalServerError, &APIError{Code: "INTERNAL_ERROR", Message: message})
}

// ServiceUnavailableResponse sends a 503 response
func ServiceUnavailableResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusServiceUnavailable, &APIError{Code: "SERVICE_UNAVAILABLE", Message: message})
}

// ErrorResponseFromError maps an error to a status code by its kind
func ErrorResponseFromError(c *gin.Context, err error) {
	var statusCode int
	switch errors.KindOf(err) {
	case errors.KindValidation:
		statusCode = http.StatusBadRequest
	case errors.KindNotFound:
		statusCode = http.StatusNotFound
	case errors.KindTimeout:
		statusCode = http.StatusRequestTimeout
	case errors.KindRateLimit:
		statusCode = http.StatusTooManyRequests
	case errors.KindConnection:
		statusCode = http.StatusServiceUnavailable
	case errors.KindExternal:
		statusCode = http.StatusBadGateway
	default:
		statusCode = http.StatusInternalServerError
	}

	apiError := &APIError{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred",
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		apiError.Code = appErr.Code
		apiError.Message = appErr.Message
		if len(appErr.Details) > 0 {
			apiError.Details = make(map[string]string, len(appErr.Details))
			for k, v := range appErr.Details {
				apiError.Details[k] = v
			}
		}
	}

	errorResponse(c, statusCode, apiError)
}
