package entity

import "time"

// Report is a monthly expense report; Status summarizes its active workflow instance
type Report struct {
	ID                 int64      `json:"id"`
	EmployeeID         string     `json:"employeeId"`
	Month              int        `json:"month"`
	Year               int        `json:"year"`
	Status             string     `json:"status"`
	WorkflowInstanceID *int64     `json:"workflowInstanceId,omitempty"`
	SubmittedAt        *time.Time `json:"submittedAt,omitempty"`
	Version            int64      `json:"-"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// IsTerminal reports whether no further transition is accepted
func (r *Report) IsTerminal() bool {
	return r.Status == ReportStatusApproved || r.Status == ReportStatusRejected
}
