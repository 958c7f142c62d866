package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/infrastructure/i18n"
	"github.com/garyjia/expense-approval/internal/testutil"
)

type fixture struct {
	store         *testutil.Store
	clock         *testutil.Clock
	dispatcher    dispatcher.Dispatcher
	engine        Engine
	reports       service.ReportService
	notifications service.NotificationService
	relay         *Relay
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()

	store := testutil.NewStore(t)
	clock := testutil.NewClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, emp := range []*entity.Employee{
		{ID: "emp-1", Name: "Ada", Role: "employee", SupervisorID: "sup-1", Locale: "en"},
		{ID: "sup-1", Name: "Sam", Role: "supervisor", Locale: "en"},
		{ID: "sup-2", Name: "Sue", Role: "supervisor", Locale: "en"},
		{ID: "fin-1", Name: "Fay", Role: "finance", Locale: "zh"},
		{ID: "adm-1", Name: "Al", Role: "employee", IsAdmin: true, Locale: "en"},
		{ID: "out-1", Name: "Olu", Role: "employee", Locale: "en"},
	} {
		emp.CreatedAt = clock.Now()
		if err := store.Employees.Upsert(ctx, emp); err != nil {
			t.Fatalf("seed employee %s: %v", emp.ID, err)
		}
	}

	catalog, err := i18n.NewCatalog("en")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	history := service.NewHistoryRecorder(store.History, clock.Now)
	notifications := service.NewNotificationService(
		store.Notifications, store.Employees, store.Workflows, catalog, store.Logger,
		service.WithNotificationClock(clock.Now),
	)
	d := dispatcher.NewDispatcher()
	d.SubscribeAll("notifications", notifications.HandleEvent)

	relay := NewRelay(store.Outbox, d, nil, clock.Now, store.Logger)
	engine := NewEngine(
		store.Reports, store.Workflows, store.Employees, store.Outbox,
		history, service.NewApproverResolver(store.Employees, nil),
		store.DB, relay, store.Logger,
		append([]EngineOption{WithClock(clock.Now)}, opts...)...,
	)

	return &fixture{
		store:         store,
		clock:         clock,
		dispatcher:    d,
		engine:        engine,
		reports:       service.NewReportService(store.Reports, store.Workflows, store.Employees, history, clock.Now, store.Logger),
		notifications: notifications,
		relay:         relay,
	}
}

func (f *fixture) draft(t *testing.T) *entity.Report {
	t.Helper()
	report, err := f.reports.CreateReport(context.Background(), "emp-1", 3, 2025)
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	return report
}

func (f *fixture) submitted(t *testing.T) *Result {
	t.Helper()
	report := f.draft(t)
	res, err := f.engine.Submit(context.Background(), SubmitCommand{ReportID: report.ID, ActorID: "emp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res
}

func (f *fixture) instance(t *testing.T, id int64) *entity.WorkflowInstance {
	t.Helper()
	inst, err := f.store.Workflows.GetInstance(context.Background(), id)
	if err != nil || inst == nil {
		t.Fatalf("load instance %d: %v", id, err)
	}
	if err := inst.CheckInvariant(); err != nil {
		t.Fatalf("instance %d invariant: %v", id, err)
	}
	return inst
}

func (f *fixture) historyActions(t *testing.T, reportID int64) []string {
	t.Helper()
	entries, err := f.store.History.ListByReport(context.Background(), reportID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func (f *fixture) notificationTypes(t *testing.T, employeeID string) []string {
	t.Helper()
	list, err := f.notifications.List(context.Background(), employeeID, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	types := make([]string, len(list))
	// List is newest first; reverse into chronological order
	for i, n := range list {
		types[len(list)-1-i] = n.Type
	}
	return types
}

func assertStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEngine_TwoStepApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.submitted(t)
	if res.Report.Status != entity.ReportStatusPendingSupervisor {
		t.Fatalf("expected pending_supervisor, got %s", res.Report.Status)
	}
	inst := f.instance(t, res.Instance.ID)
	if inst.Steps[0].Status != entity.StepStatusPending || inst.Steps[1].Status != entity.StepStatusWaiting {
		t.Fatalf("unexpected step states %s/%s", inst.Steps[0].Status, inst.Steps[1].Status)
	}
	if inst.Steps[0].ApproverID != "sup-1" || inst.Steps[1].ApproverID != "fin-1" {
		t.Fatalf("unexpected approvers %s/%s", inst.Steps[0].ApproverID, inst.Steps[1].ApproverID)
	}
	if inst.Steps[0].DueAt == nil || !inst.Steps[0].DueAt.Equal(f.clock.Now().Add(72*time.Hour)) {
		t.Fatalf("unexpected due date %v", inst.Steps[0].DueAt)
	}

	f.clock.Advance(time.Hour)
	res, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1"})
	if err != nil {
		t.Fatalf("approve supervisor: %v", err)
	}
	if res.Report.Status != entity.ReportStatusPendingFinance {
		t.Fatalf("expected pending_finance, got %s", res.Report.Status)
	}

	f.clock.Advance(time.Hour)
	res, err = f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 1, ActorID: "fin-1"})
	if err != nil {
		t.Fatalf("approve finance: %v", err)
	}
	if res.Report.Status != entity.ReportStatusApproved {
		t.Fatalf("expected approved, got %s", res.Report.Status)
	}

	inst = f.instance(t, res.Instance.ID)
	if inst.Status != entity.InstanceStatusApproved || inst.CompletedAt == nil {
		t.Fatalf("expected completed approved instance, got %s", inst.Status)
	}
	for _, s := range inst.Steps {
		if s.Status != entity.StepStatusApproved || s.ActedAt == nil {
			t.Fatalf("step %d not approved", s.Index)
		}
	}

	assertStrings(t, f.historyActions(t, res.Report.ID), []string{"submitted", "approved", "approved"})
	assertStrings(t, f.notificationTypes(t, "emp-1"), []string{"submitted", "approved", "approved"})
	assertStrings(t, f.notificationTypes(t, "sup-1"), []string{"submitted"})
	assertStrings(t, f.notificationTypes(t, "fin-1"), []string{"approved"})

	count, err := f.notifications.UnreadCount(ctx, "emp-1")
	if err != nil || count != 3 {
		t.Fatalf("expected 3 unread, got %d (%v)", count, err)
	}

	view, err := f.reports.GetReport(ctx, res.Report.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if view.CurrentStage != "" || len(view.Workflow) != 2 || len(view.History) != 3 {
		t.Fatalf("unexpected view: stage=%q steps=%d history=%d", view.CurrentStage, len(view.Workflow), len(view.History))
	}
}

func TestEngine_SubmitErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.draft(t)

	tests := []struct {
		name    string
		cmd     SubmitCommand
		wantErr error
	}{
		{"missing report", SubmitCommand{ReportID: 999, ActorID: "emp-1"}, entity.ErrNotFound},
		{"not the owner", SubmitCommand{ReportID: report.ID, ActorID: "sup-1"}, entity.ErrNotAuthorized},
		{"missing actor", SubmitCommand{ReportID: report.ID}, entity.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Submit(ctx, tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := f.engine.Submit(ctx, SubmitCommand{ReportID: report.ID, ActorID: "emp-1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.engine.Submit(ctx, SubmitCommand{ReportID: report.ID, ActorID: "emp-1"}); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second submit, got %v", err)
	}
}

func TestEngine_SubmitWithoutSupervisor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.reports.CreateReport(ctx, "out-1", 5, 2025)
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if _, err := f.engine.Submit(ctx, SubmitCommand{ReportID: report.ID, ActorID: "out-1"}); !errors.Is(err, entity.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	stored, _ := f.store.Reports.GetByID(ctx, report.ID)
	if stored.Status != entity.ReportStatusDraft || stored.WorkflowInstanceID != nil {
		t.Fatalf("failed submit must leave the draft untouched, got %s", stored.Status)
	}
}

func TestEngine_DecisionGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.submitted(t)
	id := res.Report.ID

	tests := []struct {
		name    string
		approve bool
		cmd     DecisionCommand
		wantErr error
	}{
		{"wrong approver", true, DecisionCommand{ReportID: id, StepIndex: 0, ActorID: "fin-1"}, entity.ErrNotAuthorized},
		{"owner cannot approve", true, DecisionCommand{ReportID: id, StepIndex: 0, ActorID: "emp-1"}, entity.ErrNotAuthorized},
		{"step not yet pending", true, DecisionCommand{ReportID: id, StepIndex: 1, ActorID: "fin-1"}, entity.ErrInvalidTransition},
		{"step out of range", true, DecisionCommand{ReportID: id, StepIndex: 5, ActorID: "sup-1"}, entity.ErrInvalidTransition},
		{"reject needs comments", false, DecisionCommand{ReportID: id, StepIndex: 0, ActorID: "sup-1", Comments: "   "}, entity.ErrValidation},
		{"unknown report", true, DecisionCommand{ReportID: 404, StepIndex: 0, ActorID: "sup-1"}, entity.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.approve {
				_, err = f.engine.Approve(ctx, tt.cmd)
			} else {
				_, err = f.engine.Reject(ctx, tt.cmd)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	assertStrings(t, f.historyActions(t, id), []string{"submitted"})
}

func TestEngine_RejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.submitted(t)

	res, err := f.engine.Reject(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1", Comments: "duplicate receipts"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Report.Status != entity.ReportStatusRejected {
		t.Fatalf("expected rejected, got %s", res.Report.Status)
	}
	inst := f.instance(t, res.Instance.ID)
	if inst.Status != entity.InstanceStatusRejected || inst.Steps[0].Comments != "duplicate receipts" {
		t.Fatalf("unexpected instance state %s comments=%q", inst.Status, inst.Steps[0].Comments)
	}
	if inst.Steps[1].Status != entity.StepStatusWaiting {
		t.Fatalf("later steps stay waiting, got %s", inst.Steps[1].Status)
	}

	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1"}); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition after rejection, got %v", err)
	}
	if _, err := f.engine.Resubmit(ctx, ResubmitCommand{ReportID: res.Report.ID, ActorID: "emp-1"}); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("rejected reports cannot be resubmitted, got %v", err)
	}

	entries, _ := f.store.History.ListByReport(ctx, res.Report.ID)
	last := entries[len(entries)-1]
	if last.Action != entity.ActionRejected || last.Message != "duplicate receipts" || last.ActorRole != "supervisor" {
		t.Fatalf("unexpected rejection entry %+v", last)
	}
	assertStrings(t, f.notificationTypes(t, "emp-1"), []string{"submitted", "rejected"})
}

func TestEngine_RevisionAndResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.submitted(t)
	reportID := first.Report.ID

	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: reportID, StepIndex: 0, ActorID: "sup-1"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err := f.engine.Reject(ctx, DecisionCommand{ReportID: reportID, StepIndex: 1, ActorID: "fin-1", Comments: "add the hotel invoice", Revision: true})
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if res.Report.Status != entity.ReportStatusNeedsRevision {
		t.Fatalf("expected needs_revision, got %s", res.Report.Status)
	}

	if _, err := f.engine.Resubmit(ctx, ResubmitCommand{ReportID: reportID, ActorID: "sup-1"}); !errors.Is(err, entity.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}

	f.clock.Advance(time.Hour)
	res, err = f.engine.Resubmit(ctx, ResubmitCommand{ReportID: reportID, ActorID: "emp-1"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res.Report.Status != entity.ReportStatusPendingSupervisor || res.Instance.Attempt != 2 {
		t.Fatalf("expected pending_supervisor on attempt 2, got %s/%d", res.Report.Status, res.Instance.Attempt)
	}
	if *res.Report.WorkflowInstanceID == first.Instance.ID {
		t.Fatal("resubmit must attach a new instance")
	}

	old := f.instance(t, first.Instance.ID)
	if old.Status != entity.InstanceStatusSuperseded {
		t.Fatalf("expected superseded, got %s", old.Status)
	}
	fresh := f.instance(t, res.Instance.ID)
	if fresh.Steps[0].Status != entity.StepStatusPending || fresh.Steps[1].Status != entity.StepStatusWaiting {
		t.Fatal("resubmitted instance must restart at the first step")
	}

	// the old instance no longer accepts decisions
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: reportID, StepIndex: 1, ActorID: "fin-1"}); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	assertStrings(t, f.historyActions(t, reportID), []string{"submitted", "approved", "revision_requested", "resubmitted"})
}

func TestEngine_DelegationIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.submitted(t)
	step := res.Instance.Steps[0]

	tests := []struct {
		name    string
		cmd     DelegateCommand
		wantErr error
	}{
		{"outsider cannot delegate", DelegateCommand{StepID: step.ID, ActorID: "out-1", ToApproverID: "sup-2"}, entity.ErrNotAuthorized},
		{"cannot delegate to owner", DelegateCommand{StepID: step.ID, ActorID: "sup-1", ToApproverID: "emp-1"}, entity.ErrValidation},
		{"nothing to revoke", DelegateCommand{StepID: step.ID, ActorID: "sup-1", ToApproverID: "sup-1"}, entity.ErrValidation},
		{"unknown delegate", DelegateCommand{StepID: step.ID, ActorID: "sup-1", ToApproverID: "ghost"}, entity.ErrValidation},
		{"unknown step", DelegateCommand{StepID: 999, ActorID: "sup-1", ToApproverID: "sup-2"}, entity.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.Delegate(ctx, tt.cmd); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	expires := f.clock.Now().Add(2 * time.Hour)
	if _, err := f.engine.Delegate(ctx, DelegateCommand{StepID: step.ID, ActorID: "sup-1", ToApproverID: "sup-2", ExpiresAt: &expires}); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	assertStrings(t, f.notificationTypes(t, "sup-2"), []string{"delegated"})

	pending, err := f.reports.ListPendingApprovals(ctx, "sup-2")
	if err != nil || len(pending) != 1 {
		t.Fatalf("delegate should see one pending approval, got %d (%v)", len(pending), err)
	}
	pending, _ = f.reports.ListPendingApprovals(ctx, "sup-1")
	if len(pending) != 0 {
		t.Fatalf("original approver must not see a delegated step, got %d", len(pending))
	}

	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1"}); !errors.Is(err, entity.ErrNotAuthorized) {
		t.Fatalf("original approver must be blocked while delegated, got %v", err)
	}

	// delegating back to the approver revokes an open-ended delegation
	if _, err := f.engine.Delegate(ctx, DelegateCommand{StepID: step.ID, ActorID: "sup-1", ToApproverID: "sup-2"}); err != nil {
		t.Fatalf("re-delegate without expiry: %v", err)
	}
	revoked, err := f.engine.Delegate(ctx, DelegateCommand{StepID: step.ID, ActorID: "sup-1", ToApproverID: "sup-1"})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Step.DelegatedToID != "" || revoked.Step.DelegationExpiresAt != nil {
		t.Fatalf("expected delegation cleared, got %q %v", revoked.Step.DelegatedToID, revoked.Step.DelegationExpiresAt)
	}
	pending, _ = f.reports.ListPendingApprovals(ctx, "sup-1")
	if len(pending) != 1 {
		t.Fatalf("approver should see the step again, got %d", len(pending))
	}
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-2"}); !errors.Is(err, entity.ErrNotAuthorized) {
		t.Fatalf("revoked delegate must be blocked, got %v", err)
	}
	assertStrings(t, f.historyActions(t, res.Report.ID), []string{"submitted", "delegated", "delegated", "delegated"})

	// past expiry authority returns to the original approver
	if _, err := f.engine.Delegate(ctx, DelegateCommand{StepID: step.ID, ActorID: "sup-1", ToApproverID: "sup-2", ExpiresAt: &expires}); err != nil {
		t.Fatalf("delegate with expiry: %v", err)
	}
	f.clock.Advance(3 * time.Hour)
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-2"}); !errors.Is(err, entity.ErrNotAuthorized) {
		t.Fatalf("expired delegate must be blocked, got %v", err)
	}
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1"}); err != nil {
		t.Fatalf("approve after expiry: %v", err)
	}
}

func TestEngine_DelegateByAdminAndDecide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.submitted(t)

	past := f.clock.Now().Add(-time.Minute)
	if _, err := f.engine.Delegate(ctx, DelegateCommand{StepID: res.Instance.Steps[1].ID, ActorID: "adm-1", ToApproverID: "sup-2", ExpiresAt: &past}); !errors.Is(err, entity.ErrValidation) {
		t.Fatalf("expected validation error for past expiry, got %v", err)
	}

	// waiting steps can be delegated ahead of time
	if _, err := f.engine.Delegate(ctx, DelegateCommand{StepID: res.Instance.Steps[1].ID, ActorID: "adm-1", ToApproverID: "sup-2"}); err != nil {
		t.Fatalf("admin delegate: %v", err)
	}
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 1, ActorID: "fin-1"}); !errors.Is(err, entity.ErrNotAuthorized) {
		t.Fatalf("expected delegated step to block finance, got %v", err)
	}
	res, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 1, ActorID: "sup-2"})
	if err != nil {
		t.Fatalf("delegate approve: %v", err)
	}
	if res.Step.ActedBy != "sup-2" || res.Report.Status != entity.ReportStatusApproved {
		t.Fatalf("unexpected result actedBy=%s status=%s", res.Step.ActedBy, res.Report.Status)
	}

	if _, err := f.engine.Delegate(ctx, DelegateCommand{StepID: res.Step.ID, ActorID: "adm-1", ToApproverID: "sup-1"}); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("decided steps cannot be delegated, got %v", err)
	}
}

func TestEngine_ConcurrentApprovals(t *testing.T) {
	f := newFixture(t)
	res := f.submitted(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Approve(context.Background(), DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	for _, err := range failures {
		if !errors.Is(err, entity.ErrInvalidTransition) {
			t.Fatalf("losers must see invalid transition, got %v", err)
		}
	}

	inst := f.instance(t, res.Instance.ID)
	if inst.CurrentStep() == nil || inst.CurrentStep().Index != 1 {
		t.Fatal("expected the finance step to be the only pending step")
	}
	assertStrings(t, f.historyActions(t, res.Report.ID), []string{"submitted", "approved"})
}

func TestEngine_Reminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.submitted(t)

	scan, err := f.engine.ScanReminders(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scan.Overdue != 0 || scan.Sent != 0 {
		t.Fatalf("nothing is overdue yet, got %+v", scan)
	}

	f.clock.Advance(73 * time.Hour)
	scan, err = f.engine.ScanReminders(ctx)
	if err != nil || scan.Sent != 1 {
		t.Fatalf("expected one reminder, got %+v (%v)", scan, err)
	}

	// a step reminded inside the window is not picked up again
	scan, err = f.engine.ScanReminders(ctx)
	if err != nil || scan.Scanned != 0 || scan.Sent != 0 {
		t.Fatalf("expected the repeat scan to find nothing, got %+v (%v)", scan, err)
	}

	f.clock.Advance(25 * time.Hour)
	scan, _ = f.engine.ScanReminders(ctx)
	if scan.Sent != 1 {
		t.Fatalf("expected a second reminder after the window, got %+v", scan)
	}

	step, _ := f.store.Workflows.GetStep(ctx, res.Instance.Steps[0].ID)
	if len(step.Reminders) != 2 || step.Reminders[0].SentBy != entity.SystemActor {
		t.Fatalf("expected two recorded reminders, got %+v", step.Reminders)
	}
	assertStrings(t, f.notificationTypes(t, "sup-1"), []string{"submitted", "reminder_sent", "reminder_sent"})

	// once decided the step never gets another reminder
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: res.Report.ID, StepIndex: 0, ActorID: "sup-1"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.clock.Advance(25 * time.Hour)
	scan, _ = f.engine.ScanReminders(ctx)
	if scan.Sent != 0 {
		t.Fatalf("expected no reminders after the decision, got %+v", scan)
	}

	actions := f.historyActions(t, res.Report.ID)
	assertStrings(t, actions, []string{"submitted", "reminder_sent", "reminder_sent", "approved"})
}

func TestEngine_RemindersReachEveryOverdueStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReminderBatch = 1
	f := newFixture(t, WithConfig(cfg))
	ctx := context.Background()

	first := f.submitted(t)
	draft, err := f.reports.CreateReport(ctx, "emp-1", 4, 2025)
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	second, err := f.engine.Submit(ctx, SubmitCommand{ReportID: draft.ID, ActorID: "emp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.clock.Advance(73 * time.Hour)
	for i := 0; i < 2; i++ {
		scan, err := f.engine.ScanReminders(ctx)
		if err != nil || scan.Scanned != 1 || scan.Sent != 1 {
			t.Fatalf("scan %d: expected one reminder from a full batch, got %+v (%v)", i+1, scan, err)
		}
	}
	scan, err := f.engine.ScanReminders(ctx)
	if err != nil || scan.Scanned != 0 {
		t.Fatalf("expected both steps to be inside their window, got %+v (%v)", scan, err)
	}

	for _, res := range []*Result{first, second} {
		step, err := f.store.Workflows.GetStep(ctx, res.Instance.Steps[0].ID)
		if err != nil || step == nil {
			t.Fatalf("load step: %v", err)
		}
		if len(step.Reminders) != 1 {
			t.Fatalf("report %d: expected one reminder, got %d", res.Report.ID, len(step.Reminders))
		}
	}
}

func TestEngine_Comments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.draft(t)
	if _, err := f.engine.AddComment(ctx, CommentCommand{ReportID: draft.ID, ActorID: "emp-1", Message: "hi"}); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("drafts have no history yet, got %v", err)
	}

	res, err := f.engine.Submit(ctx, SubmitCommand{ReportID: draft.ID, ActorID: "emp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	tests := []struct {
		name    string
		actor   string
		message string
		wantErr error
	}{
		{"owner", "emp-1", "taxi receipts attached", nil},
		{"later reviewer", "fin-1", "will check on Monday", nil},
		{"admin", "adm-1", "escalated", nil},
		{"outsider", "out-1", "hello", entity.ErrNotAuthorized},
		{"blank message", "emp-1", "  ", entity.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := f.engine.AddComment(ctx, CommentCommand{ReportID: res.Report.ID, ActorID: tt.actor, Message: tt.message})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("comment: %v", err)
			}
			if entry.ID == 0 || entry.Action != entity.ActionCommentAdded || entry.Message != tt.message {
				t.Fatalf("unexpected entry %+v", entry)
			}
		})
	}

	// the owner's comment reaches the supervisor, not the owner
	assertStrings(t, f.notificationTypes(t, "sup-1"), []string{"submitted", "comment_added", "comment_added", "comment_added"})
	assertStrings(t, f.notificationTypes(t, "emp-1"), []string{"submitted", "comment_added", "comment_added"})
}

func TestEngine_FailedFanOutIsRelayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var chatDown atomic.Bool
	chatDown.Store(true)
	f.dispatcher.SubscribeAll("flaky", func(ctx context.Context, evt *event.Event) error {
		if chatDown.Load() && evt.Type == event.TypeReportSubmitted {
			return errors.New("chat service unavailable")
		}
		return nil
	})

	res := f.submitted(t)
	if res.Report.Status != entity.ReportStatusPendingSupervisor {
		t.Fatalf("transition must commit despite fan-out failure, got %s", res.Report.Status)
	}

	pending, err := f.store.Outbox.ListUndispatched(ctx, f.clock.Now().Add(time.Second), 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one undispatched event, got %d (%v)", len(pending), err)
	}

	chatDown.Store(false)
	f.clock.Advance(time.Minute)
	delivered, err := f.relay.RelayPending(ctx, 30*time.Second, 10)
	if err != nil || delivered != 1 {
		t.Fatalf("expected relay to deliver one event, got %d (%v)", delivered, err)
	}

	pending, _ = f.store.Outbox.ListUndispatched(ctx, f.clock.Now(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected outbox drained, got %d", len(pending))
	}
}

func TestEngine_NotificationReadState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submitted(t)

	list, err := f.notifications.List(ctx, "emp-1", 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one notification, got %d (%v)", len(list), err)
	}
	n := list[0]
	if n.Title != "Report submitted" || n.ReportID == nil {
		t.Fatalf("unexpected notification %+v", n)
	}

	for i := 0; i < 2; i++ {
		read, err := f.notifications.MarkRead(ctx, n.ID)
		if err != nil || !read.IsRead || read.ReadAt == nil {
			t.Fatalf("mark read #%d: %+v (%v)", i+1, read, err)
		}
		count, _ := f.notifications.UnreadCount(ctx, "emp-1")
		if count != 0 {
			t.Fatalf("expected 0 unread after mark read #%d, got %d", i+1, count)
		}
	}

	if _, err := f.notifications.MarkRead(ctx, 9999); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// finance prefers Chinese
	if _, err := f.engine.Approve(ctx, DecisionCommand{ReportID: *n.ReportID, StepIndex: 0, ActorID: "sup-1"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	fin, _ := f.notifications.List(ctx, "fin-1", 1)
	if len(fin) != 1 || fin[0].Title != "待您审批" {
		t.Fatalf("expected localized title, got %+v", fin)
	}
}
