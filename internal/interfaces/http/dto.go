package http

import "time"

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// CreateReportRequest opens a draft report
type CreateReportRequest struct {
	EmployeeID string `json:"employeeId" binding:"required"`
	Month      int    `json:"month" binding:"required"`
	Year       int    `json:"year" binding:"required"`
}

// ActorRequest identifies the caller of submit and resubmit
type ActorRequest struct {
	ActorID string `json:"actorId" binding:"required"`
}

// Decision actions
const (
	ActionApprove         = "approve"
	ActionReject          = "reject"
	ActionRequestRevision = "request_revision"
)

// DecisionRequest approves or rejects a step. Revision on a reject
// returns the report to its owner instead of closing it.
type DecisionRequest struct {
	StepIndex *int   `json:"stepIndex" binding:"required"`
	Action    string `json:"action" binding:"required"`
	ActorID   string `json:"actorId" binding:"required"`
	Comments  string `json:"comments"`
	Revision  bool   `json:"revision"`
}

// DelegateRequest reassigns a step
type DelegateRequest struct {
	ActorID      string     `json:"actorId" binding:"required"`
	ToApproverID string     `json:"toApproverId" binding:"required"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

// CommentRequest adds a comment to a report's history
type CommentRequest struct {
	ActorID string `json:"actorId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// EmployeeRequest creates or updates a directory entry
type EmployeeRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	SupervisorID string `json:"supervisorId"`
	IsAdmin      bool   `json:"isAdmin"`
	LarkOpenID   string `json:"larkOpenId"`
	Locale       string `json:"locale"`
}

// CountResponse is the unread notification count
type CountResponse struct {
	Count int `json:"count"`
}
