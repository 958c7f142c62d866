package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by publishers and subscribers
const (
	KeyEmployeeID     = "employee_id"
	KeyActorID        = "actor_id"
	KeyStepIndex      = "step_index"
	KeyStepID         = "step_id"
	KeyRole           = "role"
	KeyApproverID     = "approver_id"
	KeyNextApproverID = "next_approver_id"
	KeyNextRole       = "next_role"
	KeyDelegatedToID  = "delegated_to_id"
	KeyComments       = "comments"
	KeyMonth          = "month"
	KeyYear           = "year"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ReportID      int64                  `json:"report_id"`
	InstanceID    int64                  `json:"instance_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID
func NewEvent(eventType Type, reportID, instanceID int64, payload map[string]interface{}, at time.Time) *Event {
	return NewEventWithCorrelation(eventType, reportID, instanceID, payload, at, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, reportID, instanceID int64, payload map[string]interface{}, at time.Time, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ReportID:      reportID,
		InstanceID:    instanceID,
		Payload:       payload,
		Timestamp:     at.UTC(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	copied := *e
	copied.Payload = newPayload
	return &copied
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload.
// Numbers decoded from JSON arrive as float64.
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// HasPayload reports whether key is present in the payload
func (e *Event) HasPayload(key string) bool {
	_, ok := e.Payload[key]
	return ok
}
