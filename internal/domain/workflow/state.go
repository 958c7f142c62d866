package workflow

import "fmt"

// State is a report lifecycle status as driven by the report machine
type State string

const (
	StateDraft             State = "draft"
	StateSubmitted         State = "submitted"
	StatePendingSupervisor State = "pending_supervisor"
	StatePendingFinance    State = "pending_finance"
	StateUnderReview       State = "under_review"
	StateNeedsRevision     State = "needs_revision"
	StateApproved          State = "approved"
	StateRejected          State = "rejected"
)

// ParseState converts a stored status into a State
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return st, nil
}

// IsTerminal returns true if no further transitions are allowed
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// InReview returns true while some review step is pending
func (s State) InReview() bool {
	switch s {
	case StatePendingSupervisor, StatePendingFinance, StateUnderReview:
		return true
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known report status
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSubmitted, StateNeedsRevision, StateApproved, StateRejected:
		return true
	}
	return s.InReview()
}
