package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// DeliveryWorkerConfig holds configuration for chat delivery
type DeliveryWorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	PushTimeout time.Duration
}

// DefaultDeliveryWorkerConfig returns default configuration
func DefaultDeliveryWorkerConfig() DeliveryWorkerConfig {
	return DeliveryWorkerConfig{
		Interval:    30 * time.Second,
		BatchSize:   50,
		MaxAttempts: 5,
		PushTimeout: 10 * time.Second,
	}
}

// DeliveryWorker pushes stored notifications to the recipient's chat account.
// The in-app copy is already durable; a push failure only counts an attempt.
type DeliveryWorker struct {
	*periodic
	cfg              DeliveryWorkerConfig
	notificationRepo port.NotificationRepository
	employeeRepo     port.EmployeeRepository
	pusher           port.MessagePusher
	logger           *zap.Logger
}

// NewDeliveryWorker creates a delivery worker
func NewDeliveryWorker(
	cfg DeliveryWorkerConfig,
	notificationRepo port.NotificationRepository,
	employeeRepo port.EmployeeRepository,
	pusher port.MessagePusher,
	lease port.Lease,
	logger *zap.Logger,
) *DeliveryWorker {
	def := DefaultDeliveryWorkerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = def.PushTimeout
	}
	w := &DeliveryWorker{
		cfg:              cfg,
		notificationRepo: notificationRepo,
		employeeRepo:     employeeRepo,
		pusher:           pusher,
		logger:           logger,
	}
	w.periodic = newPeriodic("DeliveryWorker", cfg.Interval, w.deliverPending, lease, 0, logger)
	return w
}

// deliverPending pushes one batch of undelivered notifications
func (w *DeliveryWorker) deliverPending(ctx context.Context) error {
	pending, err := w.notificationRepo.ListUndelivered(ctx, w.cfg.MaxAttempts, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list undelivered notifications: %w", err)
	}

	for _, n := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		emp, err := w.employeeRepo.GetByID(ctx, n.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to load employee %s: %w", n.EmployeeID, err)
		}

		// Employees without a chat account only get the in-app copy
		if emp == nil || emp.LarkOpenID == "" {
			if err := w.notificationRepo.MarkDelivered(ctx, n.ID, time.Now().UTC()); err != nil {
				return err
			}
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, w.cfg.PushTimeout)
		err = w.pusher.PushText(pushCtx, emp.LarkOpenID, n.Title+"\n"+n.Message)
		cancel()
		if err != nil {
			w.logger.Warn("Failed to push notification",
				zap.Int64("notification_id", n.ID),
				zap.String("employee_id", n.EmployeeID),
				zap.Int("attempt", n.DeliveryAttempts+1),
				zap.Error(err))
			if recErr := w.notificationRepo.RecordDeliveryFailure(ctx, n.ID, err.Error()); recErr != nil {
				return recErr
			}
			continue
		}

		if err := w.notificationRepo.MarkDelivered(ctx, n.ID, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}
