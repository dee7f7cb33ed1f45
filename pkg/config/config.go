package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment string           `json:"environment"`
	Server      ServerConfig     `json:"server"`
	Logging     LoggingConfig    `json:"logging"`
	State       StateConfig      `json:"state"`
	Resilience  ResilienceConfig `json:"resilience"`
	Database    DatabaseConfig   `json:"database"`
	Redis       RedisConfig      `json:"redis"`
	Alerting    AlertingConfig   `json:"alerting"`
	Metrics     MetricsConfig    `json:"metrics"`
	Tracing     TracingConfig    `json:"tracing"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// StateConfig contains durable state configuration
type StateConfig struct {
	Path             string        `json:"path"`
	AutosaveInterval time.Duration `json:"autosave_interval"`
	SessionMaxAge    time.Duration `json:"session_max_age"`
}

// ResilienceConfig contains circuit breaker, retry and monitoring configuration
type ResilienceConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	CleanupInterval     time.Duration `json:"cleanup_interval"`
	ShutdownTimeout     time.Duration `json:"shutdown_timeout"`
	FailureThreshold    int           `json:"failure_threshold"`
	RecoveryTimeout     time.Duration `json:"recovery_timeout"`
	MinRequests         int           `json:"min_requests"`
}

// DatabaseConfig contains the database probe target configuration
type DatabaseConfig struct {
	Enabled         bool          `json:"enabled"`
	Driver          string        `json:"driver"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// RedisConfig contains the Redis probe target configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AlertingConfig contains alert delivery configuration
type AlertingConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url"`
	SlackUsername   string `json:"slack_username"`
	SlackChannel    string `json:"slack_channel"`
	MinSeverity     string `json:"min_severity"`
	QueueSize       int    `json:"queue_size"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// TracingConfig contains distributed tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SamplingRate   float64 `json:"sampling_rate"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Environment: getEnvString("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		State: StateConfig{
			Path:             getEnvString("STATE_PATH", "app_state.json"),
			AutosaveInterval: getEnvDuration("STATE_AUTOSAVE_INTERVAL", 5*time.Minute),
			SessionMaxAge:    getEnvDuration("STATE_SESSION_MAX_AGE", 24*time.Hour),
		},
		Resilience: ResilienceConfig{
			HealthCheckInterval: getEnvDuration("RESILIENCE_HEALTH_CHECK_INTERVAL", 60*time.Second),
			CleanupInterval:     getEnvDuration("RESILIENCE_CLEANUP_INTERVAL", time.Hour),
			ShutdownTimeout:     getEnvDuration("RESILIENCE_SHUTDOWN_TIMEOUT", 30*time.Second),
			FailureThreshold:    getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:     getEnvDuration("CIRCUIT_RECOVERY_TIMEOUT", 60*time.Second),
			MinRequests:         getEnvInt("HEALTH_MIN_REQUESTS", 5),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_PROBE_ENABLED", false),
			Driver:          getEnvString("DB_DRIVER", "postgres"),
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "scribeflow"),
			User:            getEnvString("DB_USER", "scribeflow"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_PROBE_ENABLED", false),
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Alerting: AlertingConfig{
			SlackWebhookURL: getEnvString("ALERT_SLACK_WEBHOOK_URL", ""),
			SlackUsername:   getEnvString("ALERT_SLACK_USERNAME", "scribeflow-resilience"),
			SlackChannel:    getEnvString("ALERT_SLACK_CHANNEL", ""),
			MinSeverity:     getEnvString("ALERT_MIN_SEVERITY", "warning"),
			QueueSize:       getEnvInt("ALERT_QUEUE_SIZE", 256),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvBool("METRICS_ENABLED", true),
			Namespace: getEnvString("METRICS_NAMESPACE", "scribeflow"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			SamplingRate:   getEnvFloat("TRACING_SAMPLING_RATE", 0.1),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.State.Path == "" {
		return fmt.Errorf("state path is required")
	}

	if c.Resilience.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive")
	}

	if c.Resilience.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}

	if c.Resilience.FailureThreshold < 1 {
		return fmt.Errorf("circuit failure threshold must be at least 1")
	}

	if c.Database.Enabled {
		if c.Database.Driver != "postgres" && c.Database.Driver != "mysql" {
			return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required when the database probe is enabled")
		}
	}

	if c.Tracing.Enabled && (c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1) {
		return fmt.Errorf("tracing sampling rate must be between 0 and 1")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// DatabaseDSN returns the driver-specific database connection string
func (c *Config) DatabaseDSN() string {
	return c.Database.DSN()
}

// DSN returns the connection string for the configured driver
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User,
			c.Password,
			c.Host,
			c.Port,
			c.Name,
		)
	default:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User,
			c.Password,
			c.Host,
			c.Port,
			c.Name,
			c.SSLMode,
		)
	}
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
