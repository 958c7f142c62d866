package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Relay hands committed workflow events to the dispatcher and records the
// outcome in the outbox. Events whose fan-out failed stay undispatched and
// are picked up again by RelayPending.
type Relay struct {
	outbox     port.OutboxRepository
	dispatcher dispatcher.Dispatcher
	metrics    port.Metrics
	now        service.Clock
	logger     service.Logger
}

// NewRelay creates a Relay
func NewRelay(outbox port.OutboxRepository, d dispatcher.Dispatcher, metrics port.Metrics, now service.Clock, logger service.Logger) *Relay {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Relay{
		outbox:     outbox,
		dispatcher: d,
		metrics:    metrics,
		now:        now,
		logger:     logger,
	}
}

// Deliver dispatches evt and marks it. Failures are logged and counted,
// never returned to the caller of a committed transition.
func (r *Relay) Deliver(ctx context.Context, evt *event.Event) bool {
	ctx = context.WithoutCancel(ctx)

	if err := r.dispatcher.Dispatch(ctx, evt); err != nil {
		err = fmt.Errorf("%w: %v", entity.ErrDependencyFailure, err)
		r.metrics.DispatchFailed()
		r.logger.Error("Event fan-out failed, will retry",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"report_id", evt.ReportID,
			"error", err,
		)
		if markErr := r.outbox.MarkFailed(ctx, evt.ID, err.Error()); markErr != nil {
			r.logger.Error("Failed to record dispatch failure", "event_id", evt.ID, "error", markErr)
		}
		return false
	}

	if err := r.outbox.MarkDispatched(ctx, evt.ID, r.now()); err != nil {
		r.logger.Error("Failed to mark event dispatched", "event_id", evt.ID, "error", err)
	}
	return true
}

// RelayPending re-dispatches events left undispatched for longer than grace
func (r *Relay) RelayPending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	events, err := r.outbox.ListUndispatched(ctx, r.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, evt := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if r.Deliver(ctx, evt) {
			delivered++
		}
	}
	if len(events) > 0 {
		r.logger.Info("Outbox relay pass finished", "pending", len(events), "delivered", delivered)
	}
	return delivered, nil
}
