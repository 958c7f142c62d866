package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/delegation"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// ScanReminders sends one reminder for each pending step past its due date,
// unless a reminder already went out within the configured window.
// A failure on one step is counted and does not stop the scan.
func (e *engineImpl) ScanReminders(ctx context.Context) (*ScanResult, error) {
	now := e.now()
	steps, err := e.workflowRepo.ListOverdueSteps(ctx, now, now.Add(-e.cfg.ReminderWindow), e.cfg.ReminderBatch)
	if err != nil {
		return nil, fmt.Errorf("list overdue steps: %w", err)
	}

	res := &ScanResult{Scanned: len(steps), Overdue: len(steps)}
	for _, step := range steps {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		sent, err := e.remind(ctx, step)
		switch {
		case err == nil && sent:
			res.Sent++
			e.metrics.ReminderSent()
		case err == nil, errors.Is(err, entity.ErrConflict):
			res.Skipped++
		default:
			res.Failures++
			e.logger.Error("Failed to send reminder", "step_id", step.ID, "error", err)
		}
	}

	if res.Overdue > 0 {
		e.logger.Info("Reminder scan finished",
			"scanned", res.Scanned,
			"overdue", res.Overdue,
			"sent", res.Sent,
			"skipped", res.Skipped,
			"failures", res.Failures,
		)
	}
	return res, nil
}

// remind re-reads the step under the report lock so a decision or a
// concurrent scan that landed first turns this into a no-op
func (e *engineImpl) remind(ctx context.Context, candidate *entity.Step) (bool, error) {
	inst, err := e.workflowRepo.GetInstance(ctx, candidate.InstanceID)
	if err != nil {
		return false, err
	}
	if inst == nil {
		return false, nil
	}

	sent := false
	err = e.transact(ctx, inst.ReportID, "reminder", func(ctx context.Context, now time.Time) ([]*event.Event, error) {
		sent = false
		inst, err := e.workflowRepo.GetInstance(ctx, candidate.InstanceID)
		if err != nil {
			return nil, err
		}
		if inst == nil || inst.Status != entity.InstanceStatusActive {
			return nil, nil
		}
		step := inst.StepAt(candidate.Index)
		if step == nil || step.Status != entity.StepStatusPending {
			return nil, nil
		}
		if last := step.LastReminderAt(); last != nil && now.Sub(*last) < e.cfg.ReminderWindow {
			return nil, nil
		}

		if err := e.workflowRepo.AddReminder(ctx, step.ID, entity.Reminder{SentAt: now, SentBy: entity.SystemActor}); err != nil {
			return nil, err
		}
		step.UpdatedAt = now
		if err := e.workflowRepo.UpdateStep(ctx, step); err != nil {
			return nil, err
		}

		report, err := e.loadReport(ctx, inst.ReportID)
		if err != nil {
			return nil, err
		}

		approver := delegation.EffectiveApprover(step, now)
		idx := step.Index
		if err := e.history.Append(ctx, &entity.HistoryEntry{
			InstanceID: inst.ID,
			ReportID:   inst.ReportID,
			StepIndex:  &idx,
			Action:     entity.ActionReminderSent,
			ActorID:    entity.SystemActor,
			ActorRole:  entity.SystemActor,
			Timestamp:  now,
			Message:    fmt.Sprintf("reminder %d sent to %s", len(step.Reminders)+1, approver),
		}); err != nil {
			return nil, err
		}

		payload := e.reportPayload(report, entity.SystemActor)
		payload[event.KeyStepIndex] = step.Index
		payload[event.KeyStepID] = step.ID
		payload[event.KeyRole] = step.Role.String()
		payload[event.KeyApproverID] = approver

		sent = true
		return []*event.Event{event.NewEvent(event.TypeStepReminder, inst.ReportID, inst.ID, payload, now)}, nil
	})
	return sent, err
}
