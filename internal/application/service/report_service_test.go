package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/testutil"
)

func newReportFixture(t *testing.T) (*testutil.Store, *testutil.Clock, ReportService, HistoryRecorder) {
	t.Helper()

	store := testutil.NewStore(t)
	clock := testutil.NewClock(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))
	history := NewHistoryRecorder(store.History, clock.Now)
	svc := NewReportService(store.Reports, store.Workflows, store.Employees, history, clock.Now, store.Logger)

	ctx := context.Background()
	for _, emp := range []*entity.Employee{
		{Name: "Ada", ID: "emp-1", SupervisorID: "sup-1"},
		{Name: "Sam", ID: "sup-1", Role: "supervisor"},
		{Name: "Sue", ID: "sup-2", Role: "supervisor"},
		{Name: "Fay", ID: "fin-1", Role: "finance"},
	} {
		if err := svc.UpsertEmployee(ctx, emp); err != nil {
			t.Fatalf("upsert %s: %v", emp.ID, err)
		}
	}
	return store, clock, svc, history
}

// startReview attaches an active instance to report with the first step pending
func startReview(t *testing.T, store *testutil.Store, now time.Time, report *entity.Report) *entity.WorkflowInstance {
	t.Helper()
	ctx := context.Background()

	inst, err := entity.NewWorkflowInstance(report.ID, 1,
		[]entity.ReviewRole{entity.RoleSupervisor, entity.RoleFinance},
		[]string{"sup-1", "fin-1"}, now)
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	due := now.Add(72 * time.Hour)
	if err := inst.Steps[0].Activate(now, &due); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := store.Workflows.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("create instance: %v", err)
	}

	report.Status = entity.ReportStatusPendingSupervisor
	report.WorkflowInstanceID = &inst.ID
	report.SubmittedAt = &now
	report.UpdatedAt = now
	if err := store.Reports.Update(ctx, report); err != nil {
		t.Fatalf("update report: %v", err)
	}
	return inst
}

func TestReportService_CreateReport(t *testing.T) {
	_, _, svc, _ := newReportFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		employeeID string
		month      int
		year       int
		wantErr    error
	}{
		{"valid", "emp-1", 6, 2025, nil},
		{"duplicate period", "emp-1", 6, 2025, entity.ErrConflict},
		{"month zero", "emp-1", 0, 2025, entity.ErrValidation},
		{"month thirteen", "emp-1", 13, 2025, entity.ErrValidation},
		{"ancient year", "emp-1", 6, 1899, entity.ErrValidation},
		{"unknown employee", "ghost", 6, 2025, entity.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := svc.CreateReport(ctx, tt.employeeID, tt.month, tt.year)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.ID == 0 || report.Status != entity.ReportStatusDraft || report.WorkflowInstanceID != nil {
				t.Errorf("unexpected draft: %+v", report)
			}
		})
	}
}

func TestReportService_GetReportProjection(t *testing.T) {
	store, clock, svc, history := newReportFixture(t)
	ctx := context.Background()

	report, err := svc.CreateReport(ctx, "emp-1", 6, 2025)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	draft, err := svc.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft.EmployeeName != "Ada" || len(draft.Workflow) != 0 || len(draft.History) != 0 || draft.CurrentStage != "" {
		t.Errorf("unexpected draft view: %+v", draft)
	}

	inst := startReview(t, store, clock.Now(), report)
	idx := 0
	if err := history.Append(ctx, &entity.HistoryEntry{
		InstanceID: inst.ID, ReportID: report.ID, Action: entity.ActionSubmitted,
		ActorID: "emp-1", ActorRole: "employee",
	}); err != nil {
		t.Fatalf("append submitted: %v", err)
	}
	clock.Advance(time.Minute)
	if err := history.Append(ctx, &entity.HistoryEntry{
		InstanceID: inst.ID, ReportID: report.ID, StepIndex: &idx, Action: entity.ActionReminderSent,
		ActorID: entity.SystemActor, ActorRole: entity.SystemActor, Message: "reminder 1 sent to sup-1",
	}); err != nil {
		t.Fatalf("append reminder: %v", err)
	}

	view, err := svc.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != entity.ReportStatusPendingSupervisor || view.Attempt != 1 {
		t.Errorf("unexpected status/attempt: %s/%d", view.Status, view.Attempt)
	}
	if view.CurrentStage != "supervisor" || view.CurrentApproverID != "sup-1" || view.CurrentApproverName != "Sam" {
		t.Errorf("unexpected current step: %s %s %s", view.CurrentStage, view.CurrentApproverID, view.CurrentApproverName)
	}
	if len(view.Workflow) != 2 || view.Workflow[1].ApproverName != "Fay" || view.Workflow[1].Status != entity.StepStatusWaiting {
		t.Errorf("unexpected workflow: %+v", view.Workflow)
	}
	if len(view.History) != 2 || view.History[0].Action != entity.ActionSubmitted || view.History[0].ActorName != "Ada" {
		t.Fatalf("unexpected history: %+v", view.History)
	}
	if view.History[1].ActorName != entity.SystemActor {
		t.Errorf("system actor should keep its id as name, got %q", view.History[1].ActorName)
	}

	if _, err := svc.GetReport(ctx, 404); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestReportService_ListPendingApprovals(t *testing.T) {
	store, clock, svc, _ := newReportFixture(t)
	ctx := context.Background()

	report, err := svc.CreateReport(ctx, "emp-1", 6, 2025)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inst := startReview(t, store, clock.Now(), report)

	pending, err := svc.ListPendingApprovals(ctx, "sup-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ReportID != report.ID || pending[0].EmployeeName != "Ada" || pending[0].Step.Role != "supervisor" {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	if got, _ := svc.ListPendingApprovals(ctx, "fin-1"); len(got) != 0 {
		t.Errorf("finance step is waiting, got %d pending", len(got))
	}

	// delegate until tomorrow: only the delegate sees it
	step, err := store.Workflows.GetStep(ctx, inst.Steps[0].ID)
	if err != nil || step == nil {
		t.Fatalf("get step: %v", err)
	}
	expires := clock.Now().Add(24 * time.Hour)
	step.DelegatedToID = "sup-2"
	step.DelegationExpiresAt = &expires
	if err := store.Workflows.UpdateStep(ctx, step); err != nil {
		t.Fatalf("update step: %v", err)
	}

	if got, _ := svc.ListPendingApprovals(ctx, "sup-1"); len(got) != 0 {
		t.Errorf("delegated-away approver should see nothing, got %d", len(got))
	}
	got, _ := svc.ListPendingApprovals(ctx, "sup-2")
	if len(got) != 1 || got[0].Step.DelegatedToName != "Sue" {
		t.Errorf("delegate should see the step: %+v", got)
	}

	// after expiry the step returns to the original approver
	clock.Advance(25 * time.Hour)
	if got, _ := svc.ListPendingApprovals(ctx, "sup-1"); len(got) != 1 {
		t.Errorf("expected step back with sup-1 after expiry, got %d", len(got))
	}
	if got, _ := svc.ListPendingApprovals(ctx, "sup-2"); len(got) != 0 {
		t.Errorf("expired delegate should see nothing, got %d", len(got))
	}

	if _, err := svc.ListPendingApprovals(ctx, ""); !errors.Is(err, entity.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReportService_ListReportsAndSummary(t *testing.T) {
	store, clock, svc, _ := newReportFixture(t)
	ctx := context.Background()

	first, _ := svc.CreateReport(ctx, "emp-1", 5, 2025)
	if _, err := svc.CreateReport(ctx, "emp-1", 6, 2025); err != nil {
		t.Fatalf("create second: %v", err)
	}
	inst := startReview(t, store, clock.Now(), first)

	views, err := svc.ListReports(ctx, "emp-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(views))
	}
	if none, _ := svc.ListReports(ctx, "sup-1"); len(none) != 0 {
		t.Errorf("expected no reports for sup-1, got %d", len(none))
	}

	summary, err := svc.GetInstanceSummary(ctx, inst.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.ReportID != first.ID || summary.Attempt != 1 || summary.Status != entity.InstanceStatusActive || len(summary.Steps) != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Steps[0].ApproverName != "Sam" || summary.Steps[0].DueAt == nil {
		t.Errorf("unexpected first step: %+v", summary.Steps[0])
	}

	if _, err := svc.GetInstanceSummary(ctx, 999); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestReportService_UpsertEmployeeValidation(t *testing.T) {
	store, _, svc, _ := newReportFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		emp  *entity.Employee
	}{
		{"missing name", &entity.Employee{ID: "x-1"}},
		{"missing id", &entity.Employee{Name: "X"}},
		{"bad email", &entity.Employee{ID: "x-1", Name: "X", Email: "not-an-email"}},
		{"self supervision", &entity.Employee{ID: "x-1", Name: "X", SupervisorID: "x-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.UpsertEmployee(ctx, tt.emp); !errors.Is(err, entity.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if err := svc.UpsertEmployee(ctx, &entity.Employee{ID: "emp-1", Name: "Ada L.", SupervisorID: "sup-2"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	emp, err := store.Employees.GetByID(ctx, "emp-1")
	if err != nil || emp == nil {
		t.Fatalf("get: %v", err)
	}
	if emp.Name != "Ada L." || emp.SupervisorID != "sup-2" || emp.Role != "employee" {
		t.Errorf("unexpected employee after update: %+v", emp)
	}
}
