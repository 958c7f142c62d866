package worker

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"go.uber.org/zap"
)

// ReminderWorkerConfig holds configuration for the reminder scan
type ReminderWorkerConfig struct {
	Interval time.Duration
	LeaseTTL time.Duration
}

// ReminderWorker periodically asks the engine to remind approvers of overdue steps
type ReminderWorker struct {
	*periodic
	scheduler workflow.ReminderScheduler
	logger    *zap.Logger
}

// NewReminderWorker creates a reminder worker. lease may be nil in a single-process deployment.
func NewReminderWorker(cfg ReminderWorkerConfig, scheduler workflow.ReminderScheduler, lease port.Lease, logger *zap.Logger) *ReminderWorker {
	w := &ReminderWorker{scheduler: scheduler, logger: logger}
	w.periodic = newPeriodic("ReminderWorker", cfg.Interval, w.scan, lease, cfg.LeaseTTL, logger)
	return w
}

func (w *ReminderWorker) scan(ctx context.Context) error {
	res, err := w.scheduler.ScanReminders(ctx)
	if err != nil {
		return err
	}
	if res.Sent > 0 || res.Failures > 0 {
		w.logger.Info("Reminder pass finished",
			zap.Int("overdue", res.Overdue),
			zap.Int("sent", res.Sent),
			zap.Int("failures", res.Failures))
	}
	return nil
}
