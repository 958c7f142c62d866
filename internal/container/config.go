// Package container provides dependency injection and lifecycle management
// for the expense approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Workflow routing configuration
	Workflow WorkflowConfig

	// Reminder scheduler configuration
	Reminder ReminderConfig

	// Notification configuration
	Notification NotificationConfig

	// Outbox relay configuration
	Outbox OutboxConfig

	// Redis lease configuration
	Redis RedisConfig

	// Lark API configuration
	Lark LarkConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir is the path to migration files; empty uses the embedded set
	MigrationsDir string
}

// WorkflowConfig holds review routing settings.
type WorkflowConfig struct {
	// Stages is the ordered list of review roles
	Stages []string

	// StepDue is how long an approver has before a step is overdue
	StepDue time.Duration

	// RoleApprovers pins a reviewer to a role
	RoleApprovers map[string]string

	// ConflictRetry is how often a transition is retried after a version conflict
	ConflictRetry int
}

// ReminderConfig holds overdue reminder settings.
type ReminderConfig struct {
	Enabled   bool
	Interval  time.Duration
	Window    time.Duration
	BatchSize int
	LeaseTTL  time.Duration
}

// NotificationConfig holds notification text and push delivery settings.
type NotificationConfig struct {
	DefaultLocale    string
	DeliveryInterval time.Duration
	DeliveryBatch    int
	MaxAttempts      int
}

// OutboxConfig holds event relay settings.
type OutboxConfig struct {
	RelayInterval time.Duration
	Grace         time.Duration
	BatchSize     int
}

// RedisConfig holds the optional Redis connection for scheduler leases.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on Lark push delivery of notifications
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// APITimeout is the timeout for API calls
	APITimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// BasePath prefixes every API route
	BasePath string

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/expense.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Workflow: WorkflowConfig{
			Stages:        []string{"supervisor", "finance"},
			StepDue:       72 * time.Hour,
			ConflictRetry: 1,
		},
		Reminder: ReminderConfig{
			Enabled:   true,
			Interval:  15 * time.Minute,
			Window:    24 * time.Hour,
			BatchSize: 200,
			LeaseTTL:  5 * time.Minute,
		},
		Notification: NotificationConfig{
			DefaultLocale:    "en",
			DeliveryInterval: 30 * time.Second,
			DeliveryBatch:    50,
			MaxAttempts:      5,
		},
		Outbox: OutboxConfig{
			RelayInterval: 30 * time.Second,
			Grace:         time.Minute,
			BatchSize:     100,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Lark: LarkConfig{
			APITimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			BasePath:     "/api",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Workflow.Stages) == 0 {
		return fmt.Errorf("workflow.stages is required")
	}
	if c.Workflow.StepDue <= 0 {
		return fmt.Errorf("workflow.step_due must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Lark credentials only matter when push delivery is on
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	return nil
}
