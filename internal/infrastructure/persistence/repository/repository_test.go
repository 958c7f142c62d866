package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *testutil.Store) (*entity.Report, *entity.WorkflowInstance) {
	t.Helper()
	ctx := context.Background()

	for _, emp := range []*entity.Employee{
		{ID: "emp-1", Name: "Ada", Role: "employee", SupervisorID: "sup-1", CreatedAt: epoch},
		{ID: "sup-1", Name: "Sam", Role: "supervisor", CreatedAt: epoch},
		{ID: "fin-1", Name: "Fay", Role: "finance", CreatedAt: epoch},
	} {
		require.NoError(t, store.Employees.Upsert(ctx, emp))
	}

	report := &entity.Report{EmployeeID: "emp-1", Month: 2, Year: 2025, Status: entity.ReportStatusDraft, CreatedAt: epoch, UpdatedAt: epoch}
	require.NoError(t, store.Reports.Create(ctx, report))

	inst, err := entity.NewWorkflowInstance(report.ID, 1,
		[]entity.ReviewRole{entity.RoleSupervisor, entity.RoleFinance}, []string{"sup-1", "fin-1"}, epoch)
	require.NoError(t, err)
	due := epoch.Add(72 * time.Hour)
	require.NoError(t, inst.Steps[0].Activate(epoch, &due))
	require.NoError(t, store.Workflows.CreateInstance(ctx, inst))
	return report, inst
}

func TestEmployeeRepository(t *testing.T) {
	store := testutil.NewStore(t)
	seed(t, store)
	ctx := context.Background()

	emp, err := store.Employees.GetByID(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, "sup-1", emp.SupervisorID)
	assert.Equal(t, "en", emp.Locale)

	missing, err := store.Employees.GetByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := store.Employees.GetByIDs(ctx, []string{"emp-1", "fin-1", "ghost", ""})
	require.NoError(t, err)
	assert.Len(t, byID, 2)

	first, err := store.Employees.FirstByRole(ctx, "finance", "")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "fin-1", first.ID)

	none, err := store.Employees.FirstByRole(ctx, "finance", "fin-1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestReportRepository_OptimisticUpdate(t *testing.T) {
	store := testutil.NewStore(t)
	report, inst := seed(t, store)
	ctx := context.Background()

	stale := *report
	report.Status = entity.ReportStatusPendingSupervisor
	report.WorkflowInstanceID = &inst.ID
	report.UpdatedAt = epoch.Add(time.Minute)
	require.NoError(t, store.Reports.Update(ctx, report))

	stale.Status = entity.ReportStatusApproved
	err := store.Reports.Update(ctx, &stale)
	assert.True(t, errors.Is(err, entity.ErrConflict), "stale version should conflict, got %v", err)

	got, err := store.Reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportStatusPendingSupervisor, got.Status)
	require.NotNil(t, got.WorkflowInstanceID)
	assert.Equal(t, inst.ID, *got.WorkflowInstanceID)

	list, err := store.Reports.ListByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWorkflowRepository_StepsAndReminders(t *testing.T) {
	store := testutil.NewStore(t)
	_, inst := seed(t, store)
	ctx := context.Background()

	loaded, err := store.Workflows.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, entity.StepStatusPending, loaded.Steps[0].Status)
	assert.Equal(t, entity.StepStatusWaiting, loaded.Steps[1].Status)
	assert.Equal(t, entity.RoleFinance, loaded.Steps[1].Role)

	step := loaded.Steps[0]

	// due at epoch+72h: not overdue before then, overdue after
	overdue, err := store.Workflows.ListOverdueSteps(ctx, epoch.Add(71*time.Hour), epoch, 10)
	require.NoError(t, err)
	assert.Empty(t, overdue)
	overdue, err = store.Workflows.ListOverdueSteps(ctx, epoch.Add(73*time.Hour), epoch, 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, step.ID, overdue[0].ID)

	require.NoError(t, store.Workflows.AddReminder(ctx, step.ID, entity.Reminder{SentAt: epoch.Add(73 * time.Hour), SentBy: entity.SystemActor}))
	require.NoError(t, store.Workflows.AddReminder(ctx, step.ID, entity.Reminder{SentAt: epoch.Add(97 * time.Hour), SentBy: entity.SystemActor}))

	withReminders, err := store.Workflows.GetStep(ctx, step.ID)
	require.NoError(t, err)
	require.Len(t, withReminders.Reminders, 2)
	assert.True(t, withReminders.LastReminderAt().Equal(epoch.Add(97*time.Hour)))

	// a reminder after quietSince keeps the step out of the scan
	overdue, err = store.Workflows.ListOverdueSteps(ctx, epoch.Add(100*time.Hour), epoch.Add(76*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, overdue)
	overdue, err = store.Workflows.ListOverdueSteps(ctx, epoch.Add(122*time.Hour), epoch.Add(98*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, overdue, 1)

	stale := *withReminders
	require.NoError(t, withReminders.Approve("sup-1", epoch.Add(100*time.Hour)))
	require.NoError(t, store.Workflows.UpdateStep(ctx, withReminders))

	stale.DelegatedToID = "fin-1"
	assert.ErrorIs(t, store.Workflows.UpdateStep(ctx, &stale), entity.ErrConflict)

	pending, err := store.Workflows.ListOverdueSteps(ctx, epoch.Add(200*time.Hour), epoch, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	missing, err := store.Workflows.GetStep(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorkflowRepository_TransactionRollback(t *testing.T) {
	store := testutil.NewStore(t)
	report, inst := seed(t, store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.DB.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := store.Workflows.UpdateInstanceStatus(txCtx, inst.ID, entity.InstanceStatusRejected, &epoch); err != nil {
			return err
		}
		if err := store.Outbox.Append(txCtx, event.NewEvent(event.TypeReportRejected, report.ID, inst.ID, nil, epoch)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	loaded, err := store.Workflows.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusActive, loaded.Status)
	assert.Nil(t, loaded.CompletedAt)

	events, err := store.Outbox.ListUndispatched(ctx, epoch.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestOutboxRepository(t *testing.T) {
	store := testutil.NewStore(t)
	report, inst := seed(t, store)
	ctx := context.Background()

	first := event.NewEvent(event.TypeReportSubmitted, report.ID, inst.ID, map[string]interface{}{event.KeyEmployeeID: "emp-1"}, epoch)
	second := event.NewEvent(event.TypeStepApproved, report.ID, inst.ID, nil, epoch.Add(time.Minute))
	require.NoError(t, store.Outbox.Append(ctx, first))
	require.NoError(t, store.Outbox.Append(ctx, second))

	// only events older than the cutoff are returned
	events, err := store.Outbox.ListUndispatched(ctx, epoch.Add(30*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, event.TypeReportSubmitted, events[0].Type)
	assert.Equal(t, "emp-1", events[0].Payload[event.KeyEmployeeID])
	assert.Equal(t, first.CorrelationID, events[0].CorrelationID)

	require.NoError(t, store.Outbox.MarkFailed(ctx, first.ID, "handler down"))
	events, err = store.Outbox.ListUndispatched(ctx, epoch.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	require.NoError(t, store.Outbox.MarkDispatched(ctx, first.ID, epoch.Add(time.Hour)))
	events, err = store.Outbox.ListUndispatched(ctx, epoch.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, second.ID, events[0].ID)
}

func TestNotificationRepository(t *testing.T) {
	store := testutil.NewStore(t)
	report, _ := seed(t, store)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		n := &entity.Notification{
			Type:       entity.ActionSubmitted,
			Title:      "Report submitted",
			Message:    "Ada submitted a report",
			EmployeeID: "sup-1",
			ReportID:   &report.ID,
			Metadata:   map[string]interface{}{"step": i},
			CreatedAt:  epoch.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Notifications.Create(ctx, n))
		ids = append(ids, n.ID)
	}

	changed, err := store.Notifications.MarkRead(ctx, ids[2], epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = store.Notifications.MarkRead(ctx, ids[2], epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	count, err := store.Notifications.CountUnread(ctx, "sup-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := store.Notifications.List(ctx, "sup-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{ids[1], ids[0], ids[2]}, []int64{list[0].ID, list[1].ID, list[2].ID})
	assert.True(t, list[2].IsRead)

	limited, err := store.Notifications.List(ctx, "sup-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, store.Notifications.RecordDeliveryFailure(ctx, ids[0], "timeout"))
	require.NoError(t, store.Notifications.RecordDeliveryFailure(ctx, ids[0], "timeout"))
	require.NoError(t, store.Notifications.MarkDelivered(ctx, ids[1], epoch.Add(time.Hour)))

	undelivered, err := store.Notifications.ListUndelivered(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, undelivered, 1)
	assert.Equal(t, ids[2], undelivered[0].ID)

	missing, err := store.Notifications.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistoryRepository_Immutable(t *testing.T) {
	store := testutil.NewStore(t)
	report, inst := seed(t, store)
	ctx := context.Background()

	entry := &entity.HistoryEntry{
		InstanceID: inst.ID, ReportID: report.ID, Action: entity.ActionSubmitted,
		ActorID: "emp-1", ActorRole: "employee", Timestamp: epoch,
	}
	require.NoError(t, store.History.Append(ctx, entry))
	require.NotZero(t, entry.ID)

	_, err := store.DB.ExecContext(ctx, `UPDATE history_entries SET message = 'edited' WHERE id = ?`, entry.ID)
	assert.ErrorContains(t, err, "immutable")
	_, err = store.DB.ExecContext(ctx, `DELETE FROM history_entries WHERE id = ?`, entry.ID)
	assert.ErrorContains(t, err, "immutable")

	entries, err := store.History.ListByReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Message)
}
