// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Timing        TimingConfig        `yaml:"timing"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Cache         CacheConfig         `yaml:"cache"`
	Concurrency   ConcurrencyConfig   `yaml:"concurrency"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	System        SystemConfig        `yaml:"system"`
}

// AppConfig contains the client identity used for room scoping
type AppConfig struct {
	Role       string `yaml:"role"`        // admin or branch
	BranchID   string `yaml:"branch_id"`   // required for branch role
	UserID     string `yaml:"user_id"`
	RecordKind string `yaml:"record_kind"` // orders or returns
}

// ServerConfig contains backend endpoints and credentials
type ServerConfig struct {
	APIBaseURL     string `yaml:"api_base_url"`
	SocketURL      string `yaml:"socket_url"`
	APIToken       Secret `yaml:"api_token"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds
	// SocketDedupWindow bounds the recently-seen eventId set used to
	// absorb at-least-once redelivery.
	SocketDedupWindow int `yaml:"socket_dedup_window"`
}

// TimingConfig contains timing-related settings, all in milliseconds
type TimingConfig struct {
	SearchDebounce     int `yaml:"search_debounce"`
	SubmitQuietPeriod  int `yaml:"submit_quiet_period"`
	SocketReconnect    int `yaml:"socket_reconnect"`
	SocketPingInterval int `yaml:"socket_ping_interval"`
}

// NotificationsConfig tunes the notification feed
type NotificationsConfig struct {
	Capacity    int    `yaml:"capacity"`
	DedupBucket int    `yaml:"dedup_bucket"` // milliseconds
	WebhookURL  string `yaml:"webhook_url"`  // optional audit webhook
}

// CacheConfig tunes the optional local snapshot cache
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// BranchTTL bounds the branch-name lookup cache, in seconds.
	BranchTTL int `yaml:"branch_ttl"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	SinkPoolSize   int `yaml:"sink_pool_size"`
	SinkPoolBuffer int `yaml:"sink_pool_buffer"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateServerConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTimingConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateNotificationsConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	switch c.App.Role {
	case "admin", "branch":
	default:
		return ValidationError{
			Field:   "app.role",
			Value:   c.App.Role,
			Message: "must be one of: admin, branch",
		}
	}

	if c.App.Role == "branch" && c.App.BranchID == "" {
		return ValidationError{
			Field:   "app.branch_id",
			Message: "required for the branch role",
		}
	}

	switch c.App.RecordKind {
	case "orders", "returns":
	default:
		return ValidationError{
			Field:   "app.record_kind",
			Value:   c.App.RecordKind,
			Message: "must be one of: orders, returns",
		}
	}

	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.APIBaseURL == "" {
		return ValidationError{
			Field:   "server.api_base_url",
			Message: "required",
		}
	}
	if c.Server.SocketURL == "" {
		return ValidationError{
			Field:   "server.socket_url",
			Message: "required",
		}
	}
	if c.Server.RequestTimeout < 1 || c.Server.RequestTimeout > 300 {
		return ValidationError{
			Field:   "server.request_timeout",
			Value:   c.Server.RequestTimeout,
			Message: "must be between 1 and 300 seconds",
		}
	}
	if c.Server.SocketDedupWindow < 1 || c.Server.SocketDedupWindow > 65536 {
		return ValidationError{
			Field:   "server.socket_dedup_window",
			Value:   c.Server.SocketDedupWindow,
			Message: "must be between 1 and 65536 event ids",
		}
	}
	return nil
}

func (c *Config) validateTimingConfig() error {
	if c.Timing.SearchDebounce < 50 || c.Timing.SearchDebounce > 5000 {
		return ValidationError{
			Field:   "timing.search_debounce",
			Value:   c.Timing.SearchDebounce,
			Message: "must be between 50 and 5000 milliseconds",
		}
	}
	if c.Timing.SubmitQuietPeriod < 100 || c.Timing.SubmitQuietPeriod > 10000 {
		return ValidationError{
			Field:   "timing.submit_quiet_period",
			Value:   c.Timing.SubmitQuietPeriod,
			Message: "must be between 100 and 10000 milliseconds",
		}
	}
	return nil
}

func (c *Config) validateNotificationsConfig() error {
	if c.Notifications.Capacity < 10 || c.Notifications.Capacity > 1000 {
		return ValidationError{
			Field:   "notifications.capacity",
			Value:   c.Notifications.Capacity,
			Message: "must be between 10 and 1000",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	switch strings.ToUpper(c.System.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
		return nil
	}
	return ValidationError{
		Field:   "system.log_level",
		Value:   c.System.LogLevel,
		Message: "must be one of: DEBUG, INFO, WARN, ERROR, FATAL",
	}
}

// expandEnvVars expands ${VAR} references, leaving unset variables as-is so
// a missing secret shows up in validation instead of silently blanking.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return "${" + key + "}"
	})
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Role:       "admin",
			UserID:     "ops",
			RecordKind: "returns",
		},
		Server: ServerConfig{
			RequestTimeout:    10,
			SocketDedupWindow: 512,
		},
		Timing: TimingConfig{
			SearchDebounce:     300,
			SubmitQuietPeriod:  500,
			SocketReconnect:    5000,
			SocketPingInterval: 30000,
		},
		Notifications: NotificationsConfig{
			Capacity:    100,
			DedupBucket: 5000,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Path:      "bakeops.db",
			BranchTTL: 300,
		},
		Concurrency: ConcurrencyConfig{
			SinkPoolSize:   4,
			SinkPoolBuffer: 100,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
	}
}
