package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Workflow: container.WorkflowConfig{
			Stages:        append([]string(nil), c.Workflow.Stages...),
			StepDue:       c.Workflow.StepDue,
			RoleApprovers: c.Workflow.RoleApprovers,
			ConflictRetry: c.Workflow.ConflictRetry,
		},
		Reminder: container.ReminderConfig{
			Enabled:   c.Reminder.Enabled,
			Interval:  c.Reminder.Interval,
			Window:    c.Reminder.Window,
			BatchSize: c.Reminder.BatchSize,
			LeaseTTL:  c.Reminder.LeaseTTL,
		},
		Notification: container.NotificationConfig{
			DefaultLocale:    c.Notification.DefaultLocale,
			DeliveryInterval: c.Notification.DeliveryInterval,
			DeliveryBatch:    c.Notification.DeliveryBatch,
			MaxAttempts:      c.Notification.MaxAttempts,
		},
		Outbox: container.OutboxConfig{
			RelayInterval: c.Outbox.RelayInterval,
			Grace:         c.Outbox.Grace,
			BatchSize:     c.Outbox.BatchSize,
		},
		Redis: container.RedisConfig{
			Enabled:  c.Redis.Enabled,
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
		Lark: container.LarkConfig{
			Enabled:    c.Lark.Enabled,
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			APITimeout: c.Lark.APITimeout,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			BasePath:     c.Server.BasePath,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
