package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeflow/resilience/pkg/logging"
	"github.com/scribeflow/resilience/pkg/state"
)

type stubChecker struct {
	name    string
	status  Status
	message string
}

func (s *stubChecker) Check(ctx context.Context) *Check {
	return &Check{
		Name:      s.name,
		Status:    s.status,
		Message:   s.message,
		Timestamp: time.Now(),
	}
}

type fakeStateProvider struct {
	info state.Info
}

func (f *fakeStateProvider) Info() state.Info {
	return f.info
}

func testService(t *testing.T) *Service {
	t.Helper()
	logger, err := logging.NewLogger(&logging.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return NewService(logger, nil)
}

func TestCheckHealth_NoCheckers(t *testing.T) {
	service := testService(t)

	response := service.CheckHealth(context.Background())

	assert.Equal(t, StatusHealthy, response.Status)
	assert.Empty(t, response.Checks)
}

func TestCheckHealth_Aggregation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded degrades", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy dominates degraded", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"unhealthy dominates healthy", []Status{StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := testService(t)
			for i, status := range tt.statuses {
				name := fmt.Sprintf("check-%d", i)
				service.RegisterChecker(name, &stubChecker{name: name, status: status})
			}

			response := service.CheckHealth(context.Background())

			assert.Equal(t, tt.want, response.Status)
			assert.Len(t, response.Checks, len(tt.statuses))
		})
	}
}

func TestRegisterUnregisterChecker(t *testing.T) {
	service := testService(t)
	service.RegisterChecker("stub", &stubChecker{name: "stub", status: StatusHealthy})

	response := service.CheckHealth(context.Background())
	assert.Len(t, response.Checks, 1)

	service.UnregisterChecker("stub")
	response = service.CheckHealth(context.Background())
	assert.Empty(t, response.Checks)
}

func TestHandler_StatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		status   Status
		wantCode int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusPartialContent},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			service := testService(t)
			service.RegisterChecker("stub", &stubChecker{name: "stub", status: tt.status})

			router := gin.New()
			router.GET("/health", service.Handler())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := testService(t)

	router := gin.New()
	router.GET("/health/live", service.LivenessHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestReadinessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	service := testService(t)
	service.RegisterChecker("stub", &stubChecker{name: "stub", status: StatusUnhealthy})

	router := gin.New()
	router.GET("/health/ready", service.ReadinessHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	service.UnregisterChecker("stub")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCustomChecker(t *testing.T) {
	checker := NewCustomChecker("custom", func(ctx context.Context) (Status, string, error) {
		return StatusDegraded, "running slow", nil
	}).WithMetadata(map[string]string{"component": "parser"})

	check := checker.Check(context.Background())

	assert.Equal(t, "custom", check.Name)
	assert.Equal(t, StatusDegraded, check.Status)
	assert.Equal(t, "running slow", check.Message)
	assert.Equal(t, "parser", check.Metadata["component"])
}

func TestCustomChecker_ErrorForcesUnhealthy(t *testing.T) {
	checker := NewCustomChecker("custom", func(ctx context.Context) (Status, string, error) {
		return StatusHealthy, "", fmt.Errorf("probe failed")
	})

	check := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Equal(t, "probe failed", check.Error)
}

func TestHTTPChecker(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       Status
	}{
		{"ok", http.StatusOK, StatusHealthy},
		{"server error", http.StatusInternalServerError, StatusUnhealthy},
		{"client error", http.StatusNotFound, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			checker := NewHTTPChecker(server.URL, "upstream", 2*time.Second)
			check := checker.Check(context.Background())

			assert.Equal(t, tt.want, check.Status)
			assert.Equal(t, fmt.Sprintf("%d", tt.statusCode), check.Metadata["status_code"])
		})
	}
}

func TestHTTPChecker_Unreachable(t *testing.T) {
	checker := NewHTTPChecker("http://127.0.0.1:1", "upstream", 500*time.Millisecond)

	check := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.NotEmpty(t, check.Error)
}

func TestStateChecker(t *testing.T) {
	now := time.Now()
	stale := now.Add(-30 * time.Minute)

	tests := []struct {
		name        string
		provider    StateInfoProvider
		want        Status
		wantMessage string
	}{
		{
			name:        "never saved",
			provider:    &fakeStateProvider{info: state.Info{SessionsCount: 2}},
			want:        StatusDegraded,
			wantMessage: "state has not been saved yet",
		},
		{
			name:        "fresh save",
			provider:    &fakeStateProvider{info: state.Info{LastSaved: &now}},
			want:        StatusHealthy,
			wantMessage: "state persistence is healthy",
		},
		{
			name:        "stale save",
			provider:    &fakeStateProvider{info: state.Info{LastSaved: &stale}},
			want:        StatusDegraded,
			wantMessage: "last state save was",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewStateChecker(tt.provider, "state", 15*time.Minute)
			check := checker.Check(context.Background())

			assert.Equal(t, tt.want, check.Status)
			assert.Contains(t, check.Message, tt.wantMessage)
		})
	}
}

func TestStateChecker_NilStore(t *testing.T) {
	checker := NewStateChecker(nil, "state", 0)

	check := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Equal(t, "state store is nil", check.Error)
}

func TestDatabaseChecker_NilConnection(t *testing.T) {
	checker := NewDatabaseChecker(nil, "database")

	check := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Equal(t, "database connection is nil", check.Error)
}

func TestRedisChecker_NilConnection(t *testing.T) {
	checker := NewRedisChecker(nil, "redis")

	check := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Equal(t, "redis connection is nil", check.Error)
}

func TestDiskSpaceChecker_BadPath(t *testing.T) {
	checker := NewDiskSpaceChecker("/nonexistent-path-for-health-test", "disk", 0.9)

	check := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.NotEmpty(t, check.Error)
}

func TestDiskSpaceChecker_ReportsUsage(t *testing.T) {
	checker := NewDiskSpaceChecker(t.TempDir(), "disk", 1.0)

	check := checker.Check(context.Background())

	assert.NotEqual(t, StatusUnhealthy, check.Status)
	assert.Contains(t, check.Metadata, "used")
	assert.Contains(t, check.Metadata, "threshold")
}

func TestDiskSpaceChecker_NormalizesThreshold(t *testing.T) {
	checker := NewDiskSpaceChecker(".", "disk", 1.5)
	assert.Equal(t, 0.9, checker.threshold)

	checker = NewDiskSpaceChecker(".", "disk", -1)
	assert.Equal(t, 0.9, checker.threshold)
}
