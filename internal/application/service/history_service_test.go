package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func TestHistoryRecorder_AppendValidation(t *testing.T) {
	store, clock, svc, history := newReportFixture(t)
	ctx := context.Background()

	report, err := svc.CreateReport(ctx, "emp-1", 6, 2025)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inst := startReview(t, store, clock.Now(), report)

	tests := []struct {
		name  string
		entry *entity.HistoryEntry
	}{
		{"nil entry", nil},
		{"missing instance", &entity.HistoryEntry{ReportID: report.ID, Action: entity.ActionSubmitted, ActorID: "emp-1"}},
		{"missing report", &entity.HistoryEntry{InstanceID: inst.ID, Action: entity.ActionSubmitted, ActorID: "emp-1"}},
		{"unknown action", &entity.HistoryEntry{InstanceID: inst.ID, ReportID: report.ID, Action: "archived", ActorID: "emp-1"}},
		{"missing actor", &entity.HistoryEntry{InstanceID: inst.ID, ReportID: report.ID, Action: entity.ActionSubmitted}},
		{"already recorded", &entity.HistoryEntry{ID: 7, InstanceID: inst.ID, ReportID: report.ID, Action: entity.ActionSubmitted, ActorID: "emp-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := history.Append(ctx, tt.entry); !errors.Is(err, entity.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	entries, err := history.List(ctx, inst.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected entries must not be stored, got %d", len(entries))
	}
}

func TestHistoryRecorder_OrderingAndTimestamps(t *testing.T) {
	store, clock, svc, history := newReportFixture(t)
	ctx := context.Background()

	report, err := svc.CreateReport(ctx, "emp-1", 6, 2025)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first := startReview(t, store, clock.Now(), report)

	submitted := &entity.HistoryEntry{InstanceID: first.ID, ReportID: report.ID, Action: entity.ActionSubmitted, ActorID: "emp-1", ActorRole: "employee"}
	if err := history.Append(ctx, submitted); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !submitted.Timestamp.Equal(clock.Now()) || submitted.ID == 0 {
		t.Errorf("expected defaulted timestamp and assigned id, got %+v", submitted)
	}

	// same timestamp: insertion order breaks the tie
	idx := 0
	for _, action := range []string{entity.ActionCommentAdded, entity.ActionRevisionRequested} {
		if err := history.Append(ctx, &entity.HistoryEntry{
			InstanceID: first.ID, ReportID: report.ID, StepIndex: &idx,
			Action: action, ActorID: "sup-1", ActorRole: "supervisor", Message: "receipts missing",
		}); err != nil {
			t.Fatalf("append %s: %v", action, err)
		}
	}

	// explicit timestamps are kept
	backdated := clock.Now().Add(-time.Hour)
	if err := history.Append(ctx, &entity.HistoryEntry{
		InstanceID: first.ID, ReportID: report.ID, Action: entity.ActionReminderSent,
		ActorID: entity.SystemActor, ActorRole: entity.SystemActor, Timestamp: backdated,
	}); err != nil {
		t.Fatalf("append backdated: %v", err)
	}

	entries, err := history.List(ctx, first.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{entity.ActionReminderSent, entity.ActionSubmitted, entity.ActionCommentAdded, entity.ActionRevisionRequested}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, action := range want {
		if entries[i].Action != action {
			t.Errorf("entry %d: expected %s, got %s", i, action, entries[i].Action)
		}
	}
	if entries[2].StepIndex == nil || *entries[2].StepIndex != 0 || entries[2].Message != "receipts missing" {
		t.Errorf("unexpected comment entry: %+v", entries[2])
	}

	// a second attempt keeps its own instance history but shares the report log
	clock.Advance(time.Hour)
	second, err := entity.NewWorkflowInstance(report.ID, 2,
		[]entity.ReviewRole{entity.RoleSupervisor}, []string{"sup-1"}, clock.Now())
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	if err := store.Workflows.CreateInstance(ctx, second); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if err := history.Append(ctx, &entity.HistoryEntry{
		InstanceID: second.ID, ReportID: report.ID, Action: entity.ActionResubmitted, ActorID: "emp-1", ActorRole: "employee",
	}); err != nil {
		t.Fatalf("append resubmitted: %v", err)
	}

	if got, _ := history.List(ctx, second.ID); len(got) != 1 {
		t.Errorf("expected 1 entry on the second instance, got %d", len(got))
	}
	all, err := history.ListForReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("list for report: %v", err)
	}
	if len(all) != 5 || all[4].Action != entity.ActionResubmitted {
		t.Errorf("expected 5 entries ending with resubmitted, got %d", len(all))
	}
}
