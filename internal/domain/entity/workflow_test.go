package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTwoStepInstance(t *testing.T) *WorkflowInstance {
	t.Helper()
	inst, err := NewWorkflowInstance(1, 1, []ReviewRole{RoleSupervisor, RoleFinance}, []string{"sup", "fin"}, time.Now())
	require.NoError(t, err)
	return inst
}

func TestNewWorkflowInstance(t *testing.T) {
	inst := newTwoStepInstance(t)

	assert.Equal(t, InstanceStatusActive, inst.Status)
	require.Len(t, inst.Steps, 2)
	for i, s := range inst.Steps {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, StepStatusWaiting, s.Status)
		assert.NotNil(t, s.Reminders)
	}
	assert.Nil(t, inst.CurrentStep())
	assert.Equal(t, []ReviewRole{RoleSupervisor, RoleFinance}, inst.Roles())

	_, err := NewWorkflowInstance(1, 1, nil, nil, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewWorkflowInstance(1, 1, []ReviewRole{RoleSupervisor}, []string{"a", "b"}, time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStep_Transitions(t *testing.T) {
	now := time.Now()
	due := now.Add(time.Hour)
	s := &Step{Index: 0, Status: StepStatusWaiting}

	assert.ErrorIs(t, s.Approve("sup", now), ErrInvalidTransition)

	require.NoError(t, s.Activate(now, &due))
	assert.Equal(t, StepStatusPending, s.Status)
	assert.ErrorIs(t, s.Activate(now, &due), ErrInvalidTransition)

	assert.ErrorIs(t, s.Reject("sup", "", now), ErrValidation)
	assert.Equal(t, StepStatusPending, s.Status, "failed reject must not change the step")
	assert.Nil(t, s.ActedAt)

	require.NoError(t, s.Reject("sup", "missing receipt", now))
	assert.Equal(t, StepStatusRejected, s.Status)
	assert.Equal(t, "missing receipt", s.Comments)
	require.NotNil(t, s.ActedAt)

	assert.ErrorIs(t, s.Approve("sup", now), ErrInvalidTransition)
}

func TestStep_LastReminderAt(t *testing.T) {
	s := &Step{}
	assert.Nil(t, s.LastReminderAt())

	first := time.Now().Add(-2 * time.Hour)
	second := first.Add(time.Hour)
	s.Reminders = []Reminder{{SentAt: first, SentBy: SystemActor}, {SentAt: second, SentBy: SystemActor}}
	require.NotNil(t, s.LastReminderAt())
	assert.True(t, s.LastReminderAt().Equal(second))
}

func TestWorkflowInstance_CheckInvariant(t *testing.T) {
	now := time.Now()

	t.Run("fresh instance", func(t *testing.T) {
		inst := newTwoStepInstance(t)
		assert.NoError(t, inst.CheckInvariant())
	})

	t.Run("first pending then approved", func(t *testing.T) {
		inst := newTwoStepInstance(t)
		require.NoError(t, inst.Steps[0].Activate(now, nil))
		assert.NoError(t, inst.CheckInvariant())
		assert.Same(t, inst.Steps[0], inst.CurrentStep())

		require.NoError(t, inst.Steps[0].Approve("sup", now))
		require.NoError(t, inst.Steps[1].Activate(now, nil))
		assert.NoError(t, inst.CheckInvariant())
		assert.Same(t, inst.Steps[1], inst.CurrentStep())
	})

	t.Run("two pending steps", func(t *testing.T) {
		inst := newTwoStepInstance(t)
		inst.Steps[0].Status = StepStatusPending
		inst.Steps[1].Status = StepStatusPending
		assert.Error(t, inst.CheckInvariant())
	})

	t.Run("approved after waiting", func(t *testing.T) {
		inst := newTwoStepInstance(t)
		inst.Steps[1].Status = StepStatusApproved
		inst.Steps[1].ActedAt = &now
		assert.Error(t, inst.CheckInvariant())
	})

	t.Run("actedAt without decision", func(t *testing.T) {
		inst := newTwoStepInstance(t)
		inst.Steps[0].Status = StepStatusPending
		inst.Steps[0].ActedAt = &now
		assert.Error(t, inst.CheckInvariant())
	})
}

func TestReviewRole(t *testing.T) {
	r, err := ParseReviewRole("finance")
	require.NoError(t, err)
	assert.Equal(t, ReportStatusPendingFinance, r.PendingStatus())
	assert.Equal(t, ReportStatusPendingSupervisor, RoleSupervisor.PendingStatus())
	assert.Equal(t, ReportStatusUnderReview, RoleDirector.PendingStatus())

	_, err = ParseReviewRole("janitor")
	assert.ErrorIs(t, err, ErrValidation)
}
