package entity

import "time"

// Notification is a per-employee message produced from a workflow event
type Notification struct {
	ID               int64                  `json:"id"`
	Type             string                 `json:"type"`
	Title            string                 `json:"title"`
	Message          string                 `json:"message"`
	EmployeeID       string                 `json:"employeeId"`
	ReportID         *int64                 `json:"reportId,omitempty"`
	IsRead           bool                   `json:"isRead"`
	ReadAt           *time.Time             `json:"readAt,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	DeliveredAt      *time.Time             `json:"-"`
	DeliveryAttempts int                    `json:"-"`
	LastError        string                 `json:"-"`
}
