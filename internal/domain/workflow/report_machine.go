package workflow

import (
	"context"
	"fmt"
	"sync"
)

type nextRoleKey struct{}

// WithNextRole attaches the role of the step about to become pending.
// ROUTE and ADVANCE guards read it to pick the report status.
func WithNextRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, nextRoleKey{}, role)
}

// NextRoleFrom returns the role set by WithNextRole
func NextRoleFrom(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(nextRoleKey{}).(string)
	return role, ok
}

func nextRoleIs(role string) GuardFunc {
	return func(ctx context.Context) bool {
		r, ok := NextRoleFrom(ctx)
		return ok && r == role
	}
}

func hasNextRole(ctx context.Context) bool {
	r, ok := NextRoleFrom(ctx)
	return ok && r != ""
}

var (
	reportBuilderOnce sync.Once
	reportBuilder     StateMachineBuilder
)

func reportMachineBuilder() StateMachineBuilder {
	reportBuilderOnce.Do(func() {
		reportBuilder = newReportBuilder()
	})
	return reportBuilder
}

func newReportBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	routeTargets(b.Configure(StateSubmitted), TriggerRoute)

	for _, s := range []State{StatePendingSupervisor, StatePendingFinance, StateUnderReview} {
		cfg := b.Configure(s).
			Permit(TriggerApprove, StateApproved).
			Permit(TriggerReject, StateRejected).
			Permit(TriggerRequestRevision, StateNeedsRevision)
		routeTargets(cfg, TriggerAdvance)
	}

	b.Configure(StateNeedsRevision).
		Permit(TriggerResubmit, StateSubmitted)

	return b
}

// routeTargets maps the next step's role to its pending status. Roles
// without a dedicated status fall through to under_review.
func routeTargets(cfg StateConfiguration, trigger Trigger) {
	cfg.PermitIf(trigger, StatePendingSupervisor, nextRoleIs("supervisor")).
		PermitIf(trigger, StatePendingFinance, nextRoleIs("finance")).
		PermitIf(trigger, StateUnderReview, hasNextRole)
}

// NewReportMachine returns a report machine positioned at status
func NewReportMachine(status string) (StateMachine, error) {
	state, err := ParseState(status)
	if err != nil {
		return nil, err
	}
	return reportMachineBuilder().Build(state), nil
}

// Next computes the status reached by firing trigger from status without
// keeping the machine around.
func Next(ctx context.Context, status string, trigger Trigger) (State, error) {
	m, err := NewReportMachine(status)
	if err != nil {
		return "", err
	}
	if err := m.Fire(ctx, trigger); err != nil {
		return "", fmt.Errorf("report %s: %w", status, err)
	}
	return m.State(), nil
}
