package entity

import (
	"fmt"
	"time"
)

// Reminder is one overdue notice sent for a step
type Reminder struct {
	SentAt time.Time `json:"sentAt"`
	SentBy string    `json:"sentBy"`
}

// Step is a single role's review slot within a workflow instance
type Step struct {
	ID                  int64      `json:"id"`
	InstanceID          int64      `json:"instanceId"`
	Index               int        `json:"step"`
	Role                ReviewRole `json:"role"`
	Status              string     `json:"status"`
	ApproverID          string     `json:"approverId"`
	DelegatedToID       string     `json:"delegatedToId,omitempty"`
	DelegationExpiresAt *time.Time `json:"delegationExpiresAt,omitempty"`
	DueAt               *time.Time `json:"dueAt,omitempty"`
	ActedAt             *time.Time `json:"actedAt,omitempty"`
	ActedBy             string     `json:"actedBy,omitempty"`
	Comments            string     `json:"comments,omitempty"`
	Reminders           []Reminder `json:"reminders"`
	Version             int64      `json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Activate moves a waiting step to pending with the given deadline
func (s *Step) Activate(now time.Time, dueAt *time.Time) error {
	if s.Status != StepStatusWaiting {
		return fmt.Errorf("%w: step %d is %s, not waiting", ErrInvalidTransition, s.Index, s.Status)
	}
	s.Status = StepStatusPending
	s.DueAt = dueAt
	s.UpdatedAt = now
	return nil
}

// Approve records an approval on a pending step
func (s *Step) Approve(actorID string, now time.Time) error {
	if s.Status != StepStatusPending {
		return fmt.Errorf("%w: step %d is %s, not pending", ErrInvalidTransition, s.Index, s.Status)
	}
	s.Status = StepStatusApproved
	s.ActedAt = &now
	s.ActedBy = actorID
	s.UpdatedAt = now
	return nil
}

// Reject records a rejection with its rationale on a pending step
func (s *Step) Reject(actorID, comments string, now time.Time) error {
	if s.Status != StepStatusPending {
		return fmt.Errorf("%w: step %d is %s, not pending", ErrInvalidTransition, s.Index, s.Status)
	}
	if comments == "" {
		return fmt.Errorf("%w: comments are required to reject", ErrValidation)
	}
	s.Status = StepStatusRejected
	s.ActedAt = &now
	s.ActedBy = actorID
	s.Comments = comments
	s.UpdatedAt = now
	return nil
}

// IsOpen reports whether the step can still be acted on or reassigned
func (s *Step) IsOpen() bool {
	return s.Status == StepStatusWaiting || s.Status == StepStatusPending
}

// LastReminderAt returns the most recent reminder time, or nil
func (s *Step) LastReminderAt() *time.Time {
	if len(s.Reminders) == 0 {
		return nil
	}
	last := s.Reminders[len(s.Reminders)-1].SentAt
	return &last
}

// WorkflowInstance is one run of the ordered review sequence attached to a report
type WorkflowInstance struct {
	ID          int64      `json:"id"`
	ReportID    int64      `json:"reportId"`
	Attempt     int        `json:"attempt"`
	Status      string     `json:"status"`
	Steps       []*Step    `json:"steps"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewWorkflowInstance builds an unsaved instance with one waiting step per role
func NewWorkflowInstance(reportID int64, attempt int, roles []ReviewRole, approvers []string, now time.Time) (*WorkflowInstance, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: workflow needs at least one review role", ErrValidation)
	}
	if len(roles) != len(approvers) {
		return nil, fmt.Errorf("%w: %d roles but %d approvers", ErrValidation, len(roles), len(approvers))
	}
	inst := &WorkflowInstance{
		ReportID:  reportID,
		Attempt:   attempt,
		Status:    InstanceStatusActive,
		CreatedAt: now,
	}
	for i, role := range roles {
		inst.Steps = append(inst.Steps, &Step{
			Index:      i,
			Role:       role,
			Status:     StepStatusWaiting,
			ApproverID: approvers[i],
			Reminders:  []Reminder{},
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return inst, nil
}

// CurrentStep returns the pending step, or nil when none is pending
func (w *WorkflowInstance) CurrentStep() *Step {
	for _, s := range w.Steps {
		if s.Status == StepStatusPending {
			return s
		}
	}
	return nil
}

// StepAt returns the step at index, or nil when out of range
func (w *WorkflowInstance) StepAt(index int) *Step {
	if index < 0 || index >= len(w.Steps) {
		return nil
	}
	return w.Steps[index]
}

// Roles returns the role sequence of the instance
func (w *WorkflowInstance) Roles() []ReviewRole {
	roles := make([]ReviewRole, len(w.Steps))
	for i, s := range w.Steps {
		roles[i] = s.Role
	}
	return roles
}

// CheckInvariant verifies step ordering: approved steps, then at most one
// pending or rejected step, then waiting steps. ActedAt is set exactly on
// decided steps.
func (w *WorkflowInstance) CheckInvariant() error {
	const (
		phaseApproved = iota
		phaseWaiting
	)
	phase := phaseApproved
	for i, s := range w.Steps {
		if s.Index != i {
			return fmt.Errorf("step at position %d has index %d", i, s.Index)
		}
		decided := s.Status == StepStatusApproved || s.Status == StepStatusRejected
		if decided != (s.ActedAt != nil) {
			return fmt.Errorf("step %d is %s with actedAt=%v", i, s.Status, s.ActedAt)
		}
		switch s.Status {
		case StepStatusApproved:
			if phase != phaseApproved {
				return fmt.Errorf("step %d approved after an open step", i)
			}
		case StepStatusPending, StepStatusRejected:
			if phase != phaseApproved {
				return fmt.Errorf("step %d is %s after an open step", i, s.Status)
			}
			phase = phaseWaiting
		case StepStatusWaiting:
			phase = phaseWaiting
		default:
			return fmt.Errorf("step %d has unknown status %q", i, s.Status)
		}
	}
	return nil
}
