package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Lookups return (nil, nil) when the row does not exist.

// EmployeeRepository defines persistence operations for the employee directory
type EmployeeRepository interface {
	Upsert(ctx context.Context, emp *entity.Employee) error
	GetByID(ctx context.Context, id string) (*entity.Employee, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Employee, error)
	// FirstByRole returns the earliest-created holder of role other than excludeID
	FirstByRole(ctx context.Context, role, excludeID string) (*entity.Employee, error)
}

// ReportRepository defines persistence operations for Report
type ReportRepository interface {
	Create(ctx context.Context, report *entity.Report) error
	GetByID(ctx context.Context, id int64) (*entity.Report, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]*entity.Report, error)
	// Update writes status, instance link and submittedAt when the stored
	// version matches report.Version, then bumps the version. Returns
	// entity.ErrConflict when no row matched.
	Update(ctx context.Context, report *entity.Report) error
}

// WorkflowRepository defines persistence operations for workflow instances and their steps
type WorkflowRepository interface {
	// CreateInstance inserts the instance and all of its steps
	CreateInstance(ctx context.Context, inst *entity.WorkflowInstance) error
	GetInstance(ctx context.Context, id int64) (*entity.WorkflowInstance, error)
	UpdateInstanceStatus(ctx context.Context, id int64, status string, completedAt *time.Time) error
	GetStep(ctx context.Context, stepID int64) (*entity.Step, error)
	// UpdateStep writes mutable step columns guarded by step.Version and bumps it.
	// Returns entity.ErrConflict when no row matched.
	UpdateStep(ctx context.Context, step *entity.Step) error
	AddReminder(ctx context.Context, stepID int64, reminder entity.Reminder) error
	// ListOverdueSteps returns pending steps of active instances due before now
	// with no reminder sent after quietSince
	ListOverdueSteps(ctx context.Context, now, quietSince time.Time, limit int) ([]*entity.Step, error)
	// ListPendingForApprover returns pending steps assigned or delegated to approverID
	ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Step, error)
}

// HistoryRepository defines persistence operations for the append-only audit log
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.HistoryEntry, error)
	ListByReport(ctx context.Context, reportID int64) ([]*entity.HistoryEntry, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	// MarkRead sets is_read once; it reports whether the row changed
	MarkRead(ctx context.Context, id int64, at time.Time) (bool, error)
	CountUnread(ctx context.Context, employeeID string) (int, error)
	// List orders unread first, then newest first
	List(ctx context.Context, employeeID string, limit int) ([]*entity.Notification, error)
	ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, id int64, errMsg string) error
}

// OutboxRepository stores workflow events written in the same transaction as a transition
type OutboxRepository interface {
	Append(ctx context.Context, evt *event.Event) error
	MarkDispatched(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID string, errMsg string) error
	// ListUndispatched returns events created before olderThan that were never dispatched
	ListUndispatched(ctx context.Context, olderThan time.Time, limit int) ([]*event.Event, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
