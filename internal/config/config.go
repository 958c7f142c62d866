package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Reminder     ReminderConfig     `mapstructure:"reminder"`
	Notification NotificationConfig `mapstructure:"notification"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BasePath     string        `mapstructure:"base_path"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded set
}

// WorkflowConfig holds review routing configuration
type WorkflowConfig struct {
	Stages        []string          `mapstructure:"stages"`
	StepDue       time.Duration     `mapstructure:"step_due"`
	RoleApprovers map[string]string `mapstructure:"role_approvers"`
	ConflictRetry int               `mapstructure:"conflict_retry"`
}

// ReminderConfig holds overdue-step reminder configuration
type ReminderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Window    time.Duration `mapstructure:"window"`
	BatchSize int           `mapstructure:"batch_size"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl"`
}

// NotificationConfig holds notification text and delivery configuration
type NotificationConfig struct {
	DefaultLocale    string        `mapstructure:"default_locale"`
	DeliveryInterval time.Duration `mapstructure:"delivery_interval"`
	DeliveryBatch    int           `mapstructure:"delivery_batch"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
}

// OutboxConfig holds workflow event relay configuration
type OutboxConfig struct {
	RelayInterval time.Duration `mapstructure:"relay_interval"`
	Grace         time.Duration `mapstructure:"grace"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// RedisConfig holds the optional Redis connection used for the scheduler lease
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// A missing config file is tolerated; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	// Optional .env alongside the working directory
	if _, err := os.Stat(".env"); err == nil {
		if err := gotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EXPENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.base_path", "/api")

	// Database defaults
	v.SetDefault("database.path", "data/expense.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.migrations_dir", "")

	// Workflow defaults
	v.SetDefault("workflow.stages", []string{"supervisor", "finance"})
	v.SetDefault("workflow.step_due", 72*time.Hour)
	v.SetDefault("workflow.conflict_retry", 1)

	// Reminder defaults
	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.interval", 15*time.Minute)
	v.SetDefault("reminder.window", 24*time.Hour)
	v.SetDefault("reminder.batch_size", 200)
	v.SetDefault("reminder.lease_ttl", 5*time.Minute)

	// Notification defaults
	v.SetDefault("notification.default_locale", "en")
	v.SetDefault("notification.delivery_interval", 30*time.Second)
	v.SetDefault("notification.delivery_batch", 50)
	v.SetDefault("notification.max_attempts", 5)

	// Outbox defaults
	v.SetDefault("outbox.relay_interval", 30*time.Second)
	v.SetDefault("outbox.grace", time.Minute)
	v.SetDefault("outbox.batch_size", 100)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.api_timeout", 30*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := map[string]string{
		"lark.app_id":     "LARK_APP_ID",
		"lark.app_secret": "LARK_APP_SECRET",
		"redis.password":  "REDIS_PASSWORD",
		"redis.addr":      "REDIS_ADDR",
		"database.path":   "EXPENSE_DB_PATH",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/': %q", c.Server.BasePath)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Workflow.Stages) == 0 {
		return fmt.Errorf("workflow.stages must name at least one review role")
	}
	seen := make(map[string]bool, len(c.Workflow.Stages))
	for _, stage := range c.Workflow.Stages {
		if strings.TrimSpace(stage) == "" {
			return fmt.Errorf("workflow.stages contains a blank role")
		}
		if seen[stage] {
			return fmt.Errorf("workflow.stages repeats role %q", stage)
		}
		seen[stage] = true
	}
	if c.Workflow.StepDue <= 0 {
		return fmt.Errorf("workflow.step_due must be positive")
	}
	if c.Workflow.ConflictRetry < 0 {
		return fmt.Errorf("workflow.conflict_retry must not be negative")
	}

	if c.Reminder.Enabled && c.Reminder.Interval <= 0 {
		return fmt.Errorf("reminder.interval must be positive")
	}
	if c.Reminder.Window <= 0 {
		return fmt.Errorf("reminder.window must be positive")
	}

	if c.Notification.MaxAttempts <= 0 {
		return fmt.Errorf("notification.max_attempts must be positive")
	}
	if c.Outbox.RelayInterval <= 0 {
		return fmt.Errorf("outbox.relay_interval must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

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
