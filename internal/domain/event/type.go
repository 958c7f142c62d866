package event

// Type identifies the type of domain event
type Type string

const (
	TypeReportSubmitted         Type = "report.submitted"
	TypeStepApproved            Type = "step.approved"
	TypeReportApproved          Type = "report.approved"
	TypeReportRejected          Type = "report.rejected"
	TypeReportRevisionRequested Type = "report.revision_requested"
	TypeReportResubmitted       Type = "report.resubmitted"
	TypeStepDelegated           Type = "step.delegated"
	TypeStepReminder            Type = "step.reminder"
	TypeCommentAdded            Type = "report.comment_added"
)

// AllTypes lists every event type the engine emits
var AllTypes = []Type{
	TypeReportSubmitted,
	TypeStepApproved,
	TypeReportApproved,
	TypeReportRejected,
	TypeReportRevisionRequested,
	TypeReportResubmitted,
	TypeStepDelegated,
	TypeStepReminder,
	TypeCommentAdded,
}

var historyActions = map[Type]string{
	TypeReportSubmitted:         "submitted",
	TypeStepApproved:            "approved",
	TypeReportApproved:          "approved",
	TypeReportRejected:          "rejected",
	TypeReportRevisionRequested: "revision_requested",
	TypeReportResubmitted:       "resubmitted",
	TypeStepDelegated:           "delegated",
	TypeStepReminder:            "reminder_sent",
	TypeCommentAdded:            "comment_added",
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	_, ok := historyActions[t]
	return ok
}

// Action returns the history action recorded alongside this event type.
// Notification types mirror these actions.
func (t Type) Action() string {
	return historyActions[t]
}
