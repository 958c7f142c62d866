// Package delegation decides who may act on a review step.
package delegation

import (
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// IsDelegationActive reports whether the step's delegation overrides its approver at now.
// A delegation without expiry stays active until replaced.
func IsDelegationActive(step *entity.Step, now time.Time) bool {
	if step == nil || step.DelegatedToID == "" {
		return false
	}
	return step.DelegationExpiresAt == nil || step.DelegationExpiresAt.After(now)
}

// EffectiveApprover returns the actor authorized to act on step at now.
// An active delegation is exclusive: the original approver is not eligible while it lasts.
func EffectiveApprover(step *entity.Step, now time.Time) string {
	if step == nil {
		return ""
	}
	if IsDelegationActive(step, now) {
		return step.DelegatedToID
	}
	return step.ApproverID
}

// CanAct reports whether actorID is the effective approver of step at now
func CanAct(step *entity.Step, actorID string, now time.Time) bool {
	return actorID != "" && EffectiveApprover(step, now) == actorID
}
