package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/delegation"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// DefaultNotificationLimit bounds List when the caller passes no limit
const DefaultNotificationLimit = 50

// MaxNotificationLimit caps the page size accepted by List
const MaxNotificationLimit = 500

// CreateNotificationInput describes a notification to store
type CreateNotificationInput struct {
	EmployeeID string
	Type       string
	Title      string
	Message    string
	ReportID   *int64
	Metadata   map[string]interface{}
}

// NotificationService is the per-employee notification queue with read-state tracking
type NotificationService interface {
	Create(ctx context.Context, in CreateNotificationInput) (*entity.Notification, error)
	MarkRead(ctx context.Context, notificationID int64) (*entity.Notification, error)
	UnreadCount(ctx context.Context, employeeID string) (int, error)
	// List returns unread first, then read, newest first within each group
	List(ctx context.Context, employeeID string, limit int) ([]*entity.Notification, error)
	// HandleEvent fans a workflow event out to the affected employees
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	employeeRepo     port.EmployeeRepository
	workflowRepo     port.WorkflowRepository
	catalog          port.MessageCatalog
	metrics          port.Metrics
	defaultLocale    string
	now              Clock
	logger           Logger
}

// NotificationOption configures the notification service
type NotificationOption func(*notificationServiceImpl)

// WithNotificationClock overrides the time source
func WithNotificationClock(now Clock) NotificationOption {
	return func(s *notificationServiceImpl) { s.now = now }
}

// WithNotificationMetrics records created notifications
func WithNotificationMetrics(m port.Metrics) NotificationOption {
	return func(s *notificationServiceImpl) { s.metrics = m }
}

// WithDefaultLocale sets the locale used for employees without one
func WithDefaultLocale(locale string) NotificationOption {
	return func(s *notificationServiceImpl) { s.defaultLocale = locale }
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	employeeRepo port.EmployeeRepository,
	workflowRepo port.WorkflowRepository,
	catalog port.MessageCatalog,
	logger Logger,
	opts ...NotificationOption,
) NotificationService {
	s := &notificationServiceImpl{
		notificationRepo: notificationRepo,
		employeeRepo:     employeeRepo,
		workflowRepo:     workflowRepo,
		catalog:          catalog,
		metrics:          port.NopMetrics{},
		defaultLocale:    "en",
		now:              utcNow,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *notificationServiceImpl) Create(ctx context.Context, in CreateNotificationInput) (*entity.Notification, error) {
	if in.EmployeeID == "" {
		return nil, fmt.Errorf("%w: notification needs a recipient", entity.ErrValidation)
	}
	if !entity.IsNotificationType(in.Type) {
		return nil, fmt.Errorf("%w: unknown notification type %q", entity.ErrValidation, in.Type)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: notification needs a title", entity.ErrValidation)
	}

	n := &entity.Notification{
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		EmployeeID: in.EmployeeID,
		ReportID:   in.ReportID,
		IsRead:     false,
		Metadata:   in.Metadata,
		CreatedAt:  s.now(),
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return nil, err
	}
	s.metrics.NotificationCreated(n.Type)
	return n, nil
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, notificationID int64) (*entity.Notification, error) {
	if _, err := s.notificationRepo.MarkRead(ctx, notificationID, s.now()); err != nil {
		return nil, err
	}
	n, err := s.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: notification %d", entity.ErrNotFound, notificationID)
	}
	return n, nil
}

func (s *notificationServiceImpl) UnreadCount(ctx context.Context, employeeID string) (int, error) {
	if employeeID == "" {
		return 0, fmt.Errorf("%w: employee id is required", entity.ErrValidation)
	}
	return s.notificationRepo.CountUnread(ctx, employeeID)
}

func (s *notificationServiceImpl) List(ctx context.Context, employeeID string, limit int) ([]*entity.Notification, error) {
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employee id is required", entity.ErrValidation)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", entity.ErrValidation)
	}
	if limit == 0 {
		limit = DefaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	return s.notificationRepo.List(ctx, employeeID, limit)
}

// recipient is one notification to produce for an event
type recipient struct {
	employeeID string
	messageKey string
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	recipients, err := s.recipientsFor(ctx, evt)
	if err != nil {
		return err
	}

	var errs []error
	seen := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		if r.employeeID == "" || seen[r.employeeID+"|"+r.messageKey] {
			continue
		}
		seen[r.employeeID+"|"+r.messageKey] = true

		if err := s.notify(ctx, evt, r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", entity.ErrDependencyFailure, errors.Join(errs...))
	}
	return nil
}

// recipientsFor decides who hears about evt. Reviewers awaiting action are
// resolved against the instance's current pending step at handling time.
func (s *notificationServiceImpl) recipientsFor(ctx context.Context, evt *event.Event) ([]recipient, error) {
	employeeID := evt.GetPayloadString(event.KeyEmployeeID)
	action := evt.Type.Action()

	switch evt.Type {
	case event.TypeReportSubmitted, event.TypeReportResubmitted, event.TypeStepApproved:
		out := []recipient{{employeeID, action + ".employee"}}
		if approver, err := s.awaitingApprover(ctx, evt.InstanceID); err != nil {
			return nil, err
		} else if approver != "" {
			out = append(out, recipient{approver, "review.requested"})
		}
		return out, nil

	case event.TypeReportApproved:
		return []recipient{{employeeID, "approved.final"}}, nil

	case event.TypeReportRejected, event.TypeReportRevisionRequested:
		return []recipient{{employeeID, action + ".employee"}}, nil

	case event.TypeStepDelegated:
		return []recipient{
			{employeeID, "delegated.employee"},
			{evt.GetPayloadString(event.KeyDelegatedToID), "delegated.delegate"},
		}, nil

	case event.TypeStepReminder:
		approver, err := s.awaitingApprover(ctx, evt.InstanceID)
		if err != nil {
			return nil, err
		}
		if approver == "" {
			// decided before the event was handled
			return nil, nil
		}
		return []recipient{{approver, "reminder_sent.approver"}}, nil

	case event.TypeCommentAdded:
		actor := evt.GetPayloadString(event.KeyActorID)
		var out []recipient
		if employeeID != actor {
			out = append(out, recipient{employeeID, "comment_added.recipient"})
		}
		approver, err := s.awaitingApprover(ctx, evt.InstanceID)
		if err != nil {
			return nil, err
		}
		if approver != "" && approver != actor {
			out = append(out, recipient{approver, "comment_added.recipient"})
		}
		return out, nil
	}

	s.logger.Info("Ignoring unknown event type", "event_type", evt.Type, "event_id", evt.ID)
	return nil, nil
}

func (s *notificationServiceImpl) awaitingApprover(ctx context.Context, instanceID int64) (string, error) {
	if instanceID == 0 {
		return "", nil
	}
	inst, err := s.workflowRepo.GetInstance(ctx, instanceID)
	if err != nil {
		return "", fmt.Errorf("load instance %d: %w", instanceID, err)
	}
	if inst == nil || inst.Status != entity.InstanceStatusActive {
		return "", nil
	}
	return delegation.EffectiveApprover(inst.CurrentStep(), s.now()), nil
}

func (s *notificationServiceImpl) notify(ctx context.Context, evt *event.Event, r recipient) error {
	locale := s.defaultLocale
	emp, err := s.employeeRepo.GetByID(ctx, r.employeeID)
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", r.employeeID, err)
	}
	if emp != nil && emp.Locale != "" {
		locale = emp.Locale
	}

	data := map[string]interface{}{
		"ReportID": evt.ReportID,
		"Month":    evt.GetPayloadInt(event.KeyMonth),
		"Year":     evt.GetPayloadInt(event.KeyYear),
		"Role":     evt.GetPayloadString(event.KeyRole),
		"Actor":    evt.GetPayloadString(event.KeyActorID),
		"Comments": evt.GetPayloadString(event.KeyComments),
	}
	title, message := s.catalog.Render(locale, r.messageKey, data)

	reportID := evt.ReportID
	metadata := map[string]interface{}{
		"month":   evt.GetPayloadInt(event.KeyMonth),
		"year":    evt.GetPayloadInt(event.KeyYear),
		"eventId": evt.ID,
	}
	if evt.HasPayload(event.KeyStepIndex) {
		metadata["stepIndex"] = evt.GetPayloadInt(event.KeyStepIndex)
	}

	_, err = s.Create(ctx, CreateNotificationInput{
		EmployeeID: r.employeeID,
		Type:       evt.Type.Action(),
		Title:      title,
		Message:    message,
		ReportID:   &reportID,
		Metadata:   metadata,
	})
	if err != nil {
		s.logger.Error("Failed to create notification",
			"event_id", evt.ID,
			"employee_id", r.employeeID,
			"error", err,
		)
		return err
	}
	return nil
}
