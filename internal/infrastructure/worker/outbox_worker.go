package worker

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"go.uber.org/zap"
)

// OutboxWorkerConfig holds configuration for the outbox relay
type OutboxWorkerConfig struct {
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
	LeaseTTL  time.Duration
}

// OutboxWorker re-dispatches workflow events whose fan-out failed after commit
type OutboxWorker struct {
	*periodic
	relay *workflow.Relay
	cfg   OutboxWorkerConfig
}

// NewOutboxWorker creates an outbox relay worker
func NewOutboxWorker(cfg OutboxWorkerConfig, relay *workflow.Relay, lease port.Lease, logger *zap.Logger) *OutboxWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	w := &OutboxWorker{relay: relay, cfg: cfg}
	w.periodic = newPeriodic("OutboxWorker", cfg.Interval, w.drain, lease, cfg.LeaseTTL, logger)
	return w
}

func (w *OutboxWorker) drain(ctx context.Context) error {
	_, err := w.relay.RelayPending(ctx, w.cfg.Grace, w.cfg.BatchSize)
	return err
}
