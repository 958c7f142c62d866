package workflow

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// WorkflowEngine is the authoritative state machine for a report's review process.
// Every successful call commits Step, History, Report and the outbound event
// together; notification fan-out runs after commit and never rolls it back.
type WorkflowEngine interface {
	// Submit starts review of a draft report
	Submit(ctx context.Context, cmd SubmitCommand) (*Result, error)

	// Approve records an approval on the current pending step
	Approve(ctx context.Context, cmd DecisionCommand) (*Result, error)

	// Reject records a rejection; cmd.Revision selects needs_revision over rejected
	Reject(ctx context.Context, cmd DecisionCommand) (*Result, error)

	// Resubmit starts a fresh instance for a report that needs revision
	Resubmit(ctx context.Context, cmd ResubmitCommand) (*Result, error)

	// Delegate temporarily reassigns an open step
	Delegate(ctx context.Context, cmd DelegateCommand) (*Result, error)

	// AddComment appends a free-text comment to the report's history
	AddComment(ctx context.Context, cmd CommentCommand) (*entity.HistoryEntry, error)
}

// ReminderScheduler emits reminders for overdue pending steps
type ReminderScheduler interface {
	// ScanReminders sends at most one reminder per overdue step per policy window
	ScanReminders(ctx context.Context) (*ScanResult, error)
}

// SubmitCommand starts review of a draft
type SubmitCommand struct {
	ReportID int64
	ActorID  string
}

// DecisionCommand approves or rejects a step
type DecisionCommand struct {
	ReportID  int64
	StepIndex int
	ActorID   string
	Comments  string
	Revision  bool // reject only: needs_revision instead of terminal rejected
}

// ResubmitCommand restarts review after a revision request
type ResubmitCommand struct {
	ReportID int64
	ActorID  string
}

// DelegateCommand reassigns a step to another reviewer until ExpiresAt (nil = until replaced)
type DelegateCommand struct {
	StepID       int64
	ActorID      string
	ToApproverID string
	ExpiresAt    *time.Time
}

// CommentCommand adds a comment to a submitted report
type CommentCommand struct {
	ReportID int64
	ActorID  string
	Message  string
}

// Result is the committed state after a transition
type Result struct {
	Report   *entity.Report
	Instance *entity.WorkflowInstance
	Step     *entity.Step
}

// ScanResult summarizes one reminder scan
type ScanResult struct {
	Scanned  int `json:"scanned"`
	Overdue  int `json:"overdue"`
	Sent     int `json:"sent"`
	Skipped  int `json:"skipped"`
	Failures int `json:"failures"`
}
