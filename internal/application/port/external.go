package port

import (
	"context"
	"time"
)

// MessagePusher delivers a rendered notification to an employee's chat account
type MessagePusher interface {
	PushText(ctx context.Context, openID string, text string) error
}

// MessageCatalog renders localized notification text
type MessageCatalog interface {
	// Render returns the title and message for a notification type.
	// data fills template placeholders such as {{.Month}}.
	Render(locale, notificationType string, data map[string]interface{}) (title string, message string)
}

// Lease is a cross-process mutual exclusion used by periodic jobs
type Lease interface {
	// Acquire returns a release func when the lease was obtained, or ok=false when held elsewhere
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// Metrics records workflow counters
type Metrics interface {
	Transition(action string)
	Conflict()
	ReminderSent()
	NotificationCreated(notificationType string)
	DispatchFailed()
}

// NopMetrics discards all measurements
type NopMetrics struct{}

func (NopMetrics) Transition(string)          {}
func (NopMetrics) Conflict()                  {}
func (NopMetrics) ReminderSent()              {}
func (NopMetrics) NotificationCreated(string) {}
func (NopMetrics) DispatchFailed()            {}
