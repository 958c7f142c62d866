package service

import (
	"time"

	"github.com/garyjia/expense-approval/internal/domain/delegation"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ReminderView is one entry of a step's reminder sequence
type ReminderView struct {
	SentAt time.Time `json:"sentAt"`
	SentBy string    `json:"sentBy"`
}

// StepSummary is the read-only projection of a workflow step
type StepSummary struct {
	ID              int64          `json:"id"`
	Step            int            `json:"step"`
	Role            string         `json:"role"`
	Status          string         `json:"status"`
	ApproverID      string         `json:"approverId"`
	ApproverName    string         `json:"approverName"`
	DelegatedToID   string         `json:"delegatedToId,omitempty"`
	DelegatedToName string         `json:"delegatedToName,omitempty"`
	DueAt           *time.Time     `json:"dueAt,omitempty"`
	ActedAt         *time.Time     `json:"actedAt,omitempty"`
	Comments        string         `json:"comments,omitempty"`
	Reminders       []ReminderView `json:"reminders"`
}

// HistoryEntryView is the read-only projection of a history entry
type HistoryEntryView struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName"`
	ActorRole string    `json:"actorRole"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// ReportView is the report projection consumed by the presentation layer
type ReportView struct {
	ID                  int64              `json:"id"`
	EmployeeID          string             `json:"employeeId"`
	EmployeeName        string             `json:"employeeName"`
	Month               int                `json:"month"`
	Year                int                `json:"year"`
	Status              string             `json:"status"`
	WorkflowInstanceID  *int64             `json:"workflowInstanceId,omitempty"`
	Attempt             int                `json:"attempt,omitempty"`
	SubmittedAt         *time.Time         `json:"submittedAt,omitempty"`
	CurrentStage        string             `json:"currentStage,omitempty"`
	CurrentApproverID   string             `json:"currentApproverId,omitempty"`
	CurrentApproverName string             `json:"currentApproverName,omitempty"`
	Workflow            []StepSummary      `json:"workflow"`
	History             []HistoryEntryView `json:"history"`
}

// InstanceSummary describes a workflow instance, returned by resubmission
type InstanceSummary struct {
	ID        int64         `json:"id"`
	ReportID  int64         `json:"reportId"`
	Attempt   int           `json:"attempt"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	Steps     []StepSummary `json:"steps"`
}

// PendingApproval is a step awaiting the caller's decision
type PendingApproval struct {
	ReportID     int64       `json:"reportId"`
	EmployeeID   string      `json:"employeeId"`
	EmployeeName string      `json:"employeeName"`
	Month        int         `json:"month"`
	Year         int         `json:"year"`
	Status       string      `json:"status"`
	Step         StepSummary `json:"step"`
}

// names resolves employee ids to display names, falling back to the id
type names map[string]*entity.Employee

func (n names) of(id string) string {
	if id == "" {
		return ""
	}
	if emp, ok := n[id]; ok && emp.Name != "" {
		return emp.Name
	}
	return id
}

func summarizeStep(s *entity.Step, n names) StepSummary {
	reminders := make([]ReminderView, len(s.Reminders))
	for i, r := range s.Reminders {
		reminders[i] = ReminderView{SentAt: r.SentAt, SentBy: r.SentBy}
	}
	return StepSummary{
		ID:              s.ID,
		Step:            s.Index,
		Role:            s.Role.String(),
		Status:          s.Status,
		ApproverID:      s.ApproverID,
		ApproverName:    n.of(s.ApproverID),
		DelegatedToID:   s.DelegatedToID,
		DelegatedToName: n.of(s.DelegatedToID),
		DueAt:           s.DueAt,
		ActedAt:         s.ActedAt,
		Comments:        s.Comments,
		Reminders:       reminders,
	}
}

func summarizeInstance(inst *entity.WorkflowInstance, n names) *InstanceSummary {
	out := &InstanceSummary{
		ID:        inst.ID,
		ReportID:  inst.ReportID,
		Attempt:   inst.Attempt,
		Status:    inst.Status,
		CreatedAt: inst.CreatedAt,
		Steps:     make([]StepSummary, 0, len(inst.Steps)),
	}
	for _, s := range inst.Steps {
		out.Steps = append(out.Steps, summarizeStep(s, n))
	}
	return out
}

// buildReportView assembles the projection; inst may be nil for drafts
func buildReportView(report *entity.Report, inst *entity.WorkflowInstance, history []*entity.HistoryEntry, n names, now time.Time) *ReportView {
	view := &ReportView{
		ID:                 report.ID,
		EmployeeID:         report.EmployeeID,
		EmployeeName:       n.of(report.EmployeeID),
		Month:              report.Month,
		Year:               report.Year,
		Status:             report.Status,
		WorkflowInstanceID: report.WorkflowInstanceID,
		SubmittedAt:        report.SubmittedAt,
		Workflow:           []StepSummary{},
		History:            make([]HistoryEntryView, 0, len(history)),
	}

	if inst != nil {
		view.Attempt = inst.Attempt
		for _, s := range inst.Steps {
			view.Workflow = append(view.Workflow, summarizeStep(s, n))
		}
		if current := inst.CurrentStep(); current != nil {
			view.CurrentStage = current.Role.String()
			view.CurrentApproverID = delegation.EffectiveApprover(current, now)
			view.CurrentApproverName = n.of(view.CurrentApproverID)
		}
	}

	for _, h := range history {
		view.History = append(view.History, HistoryEntryView{
			ID:        h.ID,
			Action:    h.Action,
			ActorID:   h.ActorID,
			ActorName: n.of(h.ActorID),
			ActorRole: h.ActorRole,
			Timestamp: h.Timestamp,
			Message:   h.Message,
		})
	}
	return view
}

// employeeIDs collects every id the projection needs a name for
func employeeIDs(report *entity.Report, inst *entity.WorkflowInstance, history []*entity.HistoryEntry) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && id != entity.SystemActor && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(report.EmployeeID)
	if inst != nil {
		for _, s := range inst.Steps {
			add(s.ApproverID)
			add(s.DelegatedToID)
		}
	}
	for _, h := range history {
		add(h.ActorID)
	}
	return ids
}
