package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/i18n"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/metrics"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// LeaseBundle holds the scheduler lease and the cleanup for its connection.
type LeaseBundle struct {
	Lease port.Lease
	Close func() error
}

// ProvideDatabase opens the database and runs pending migrations.
// An empty MigrationsDir applies the migrations embedded in the binary.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(conn, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.RunEmbedded()
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Employee:     repository.NewEmployeeRepository(sqlDB, logger),
		Report:       repository.NewReportRepository(sqlDB, logger),
		Workflow:     repository.NewWorkflowRepository(sqlDB, logger),
		History:      repository.NewHistoryRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
		Outbox:       repository.NewOutboxRepository(sqlDB, logger),
	}, nil
}

// ProvideLease returns a Redis-backed lease when configured, otherwise a
// process-local one that always grants.
func ProvideLease(ctx context.Context, cfg *RedisConfig, logger *zap.Logger) (*LeaseBundle, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Redis disabled, scheduler lease is process-local")
		return &LeaseBundle{Lease: lock.LocalLease{}, Close: func() error { return nil }}, nil
	}

	lease, err := lock.NewRedisLease(ctx, lock.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Redis lease initialized", zap.String("addr", cfg.Addr))
	return &LeaseBundle{Lease: lease, Close: lease.Close}, nil
}

// ProvideMessenger creates the Lark push adapter. It returns nil when Lark is disabled.
func ProvideMessenger(cfg *LarkConfig, logger *zap.Logger) port.MessagePusher {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		Timeout:   cfg.APITimeout,
	}, logger)
	logger.Info("Lark messenger initialized", zap.String("app_id", client.GetAppID()))
	return infraLark.NewMessenger(client, logger)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos        *RepositoryBundle
	Notification *NotificationConfig
	Workflow     *WorkflowConfig
	Metrics      port.Metrics
	Logger       *zap.Logger
}

// ProvideServices creates the read-side and notification services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	catalog, err := i18n.NewCatalog(deps.Notification.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("failed to load message catalog: %w", err)
	}
	deps.Logger.Info("Message catalog loaded", zap.Strings("languages", catalog.Languages()))

	kv := utils.NewKVLogger(deps.Logger)
	history := service.NewHistoryRecorder(deps.Repos.History, nil)

	return &ServiceBundle{
		History: history,
		Report: service.NewReportService(
			deps.Repos.Report, deps.Repos.Workflow, deps.Repos.Employee, history, nil, kv,
		),
		Notification: service.NewNotificationService(
			deps.Repos.Notification, deps.Repos.Employee, deps.Repos.Workflow, catalog, kv,
			service.WithNotificationMetrics(deps.Metrics),
			service.WithDefaultLocale(deps.Notification.DefaultLocale),
		),
		Approvers: service.NewApproverResolver(deps.Repos.Employee, deps.Workflow.RoleApprovers),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger))), nil
}

// WorkflowDeps holds dependencies for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Services   *ServiceBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    port.Metrics
	Workflow   *WorkflowConfig
	Reminder   *ReminderConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the relay and engine and subscribes the
// notification fan-out to every workflow event.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, *workflow.Relay, error) {
	if deps == nil || deps.Repos == nil || deps.Services == nil {
		return nil, nil, fmt.Errorf("workflow dependencies are required")
	}

	stages := make([]entity.ReviewRole, 0, len(deps.Workflow.Stages))
	for _, s := range deps.Workflow.Stages {
		role, err := entity.ParseReviewRole(s)
		if err != nil {
			return nil, nil, err
		}
		stages = append(stages, role)
	}

	cfg := workflow.DefaultConfig()
	cfg.Stages = stages
	cfg.StepDue = deps.Workflow.StepDue
	cfg.ConflictRetry = deps.Workflow.ConflictRetry
	if deps.Reminder.Window > 0 {
		cfg.ReminderWindow = deps.Reminder.Window
	}
	if deps.Reminder.BatchSize > 0 {
		cfg.ReminderBatch = deps.Reminder.BatchSize
	}

	deps.Dispatcher.SubscribeAll("notifications", deps.Services.Notification.HandleEvent)

	kv := utils.NewKVLogger(deps.Logger)
	relay := workflow.NewRelay(deps.Repos.Outbox, deps.Dispatcher, deps.Metrics, nil, kv)
	engine := workflow.NewEngine(
		deps.Repos.Report,
		deps.Repos.Workflow,
		deps.Repos.Employee,
		deps.Repos.Outbox,
		deps.Services.History,
		deps.Services.Approvers,
		deps.TxManager,
		relay,
		kv,
		workflow.WithConfig(cfg),
		workflow.WithMetrics(deps.Metrics),
	)
	return engine, relay, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos        *RepositoryBundle
	Engine       workflow.Engine
	Relay        *workflow.Relay
	Lease        port.Lease
	Pusher       port.MessagePusher
	Reminder     *ReminderConfig
	Outbox       *OutboxConfig
	Notification *NotificationConfig
	Logger       *zap.Logger
}

// ProvideWorkers creates the background workers. The delivery worker is
// only registered when a chat pusher is configured.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Engine == nil || deps.Relay == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.Reminder.Enabled {
		manager.Register(worker.NewReminderWorker(worker.ReminderWorkerConfig{
			Interval: deps.Reminder.Interval,
			LeaseTTL: deps.Reminder.LeaseTTL,
		}, deps.Engine, deps.Lease, deps.Logger))
	}

	manager.Register(worker.NewOutboxWorker(worker.OutboxWorkerConfig{
		Interval:  deps.Outbox.RelayInterval,
		Grace:     deps.Outbox.Grace,
		BatchSize: deps.Outbox.BatchSize,
		LeaseTTL:  deps.Reminder.LeaseTTL,
	}, deps.Relay, deps.Lease, deps.Logger))

	if deps.Pusher != nil {
		cfg := worker.DefaultDeliveryWorkerConfig()
		if deps.Notification.DeliveryInterval > 0 {
			cfg.Interval = deps.Notification.DeliveryInterval
		}
		if deps.Notification.DeliveryBatch > 0 {
			cfg.BatchSize = deps.Notification.DeliveryBatch
		}
		if deps.Notification.MaxAttempts > 0 {
			cfg.MaxAttempts = deps.Notification.MaxAttempts
		}
		manager.Register(worker.NewDeliveryWorker(cfg,
			deps.Repos.Notification, deps.Repos.Employee, deps.Pusher, deps.Lease, deps.Logger))
	}

	return manager, nil
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.NewRecorder()
}
