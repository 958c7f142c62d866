package entity

import "time"

// HistoryEntry is one immutable audit record of a workflow action
type HistoryEntry struct {
	ID         int64     `json:"id"`
	InstanceID int64     `json:"instanceId"`
	ReportID   int64     `json:"reportId"`
	StepIndex  *int      `json:"stepIndex,omitempty"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message,omitempty"`
}
