package entity

// Report status constants
const (
	ReportStatusDraft             = "draft"
	ReportStatusSubmitted         = "submitted"
	ReportStatusPendingSupervisor = "pending_supervisor"
	ReportStatusPendingFinance    = "pending_finance"
	ReportStatusUnderReview       = "under_review"
	ReportStatusNeedsRevision     = "needs_revision"
	ReportStatusApproved          = "approved"
	ReportStatusRejected          = "rejected"
)

// Workflow instance status constants
const (
	InstanceStatusActive        = "active"
	InstanceStatusApproved      = "approved"
	InstanceStatusRejected      = "rejected"
	InstanceStatusNeedsRevision = "needs_revision"
	InstanceStatusSuperseded    = "superseded"
)

// Step status constants
const (
	StepStatusWaiting  = "waiting"
	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
)

// History action constants
const (
	ActionSubmitted         = "submitted"
	ActionApproved          = "approved"
	ActionRejected          = "rejected"
	ActionRevisionRequested = "revision_requested"
	ActionDelegated         = "delegated"
	ActionReminderSent      = "reminder_sent"
	ActionResubmitted       = "resubmitted"
	ActionCommentAdded      = "comment_added"
)

// NotificationTypeError marks a notification about a failed operation.
// All other notification types mirror the history actions.
const NotificationTypeError = "error"

// SystemActor is the actor id recorded for scheduler-originated actions
const SystemActor = "system"

var historyActions = map[string]bool{
	ActionSubmitted:         true,
	ActionApproved:          true,
	ActionRejected:          true,
	ActionRevisionRequested: true,
	ActionDelegated:         true,
	ActionReminderSent:      true,
	ActionResubmitted:       true,
	ActionCommentAdded:      true,
}

// IsHistoryAction reports whether action is a known history action
func IsHistoryAction(action string) bool {
	return historyActions[action]
}

// IsNotificationType reports whether t is a known notification type
func IsNotificationType(t string) bool {
	return t == NotificationTypeError || historyActions[t]
}
