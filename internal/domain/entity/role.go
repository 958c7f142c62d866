package entity

import "fmt"

// ReviewRole is the fixed role key bound to a workflow step
type ReviewRole string

// Supported review roles
const (
	RoleSupervisor ReviewRole = "supervisor"
	RoleFinance    ReviewRole = "finance"
	RoleDirector   ReviewRole = "director"
)

var reviewRoles = map[ReviewRole]bool{
	RoleSupervisor: true,
	RoleFinance:    true,
	RoleDirector:   true,
}

// ParseReviewRole validates a role key
func ParseReviewRole(s string) (ReviewRole, error) {
	r := ReviewRole(s)
	if !reviewRoles[r] {
		return "", fmt.Errorf("%w: unknown review role %q", ErrValidation, s)
	}
	return r, nil
}

// String returns the role key
func (r ReviewRole) String() string {
	return string(r)
}

// PendingStatus is the report status shown while a step of this role is pending
func (r ReviewRole) PendingStatus() string {
	switch r {
	case RoleSupervisor:
		return ReportStatusPendingSupervisor
	case RoleFinance:
		return ReportStatusPendingFinance
	default:
		return ReportStatusUnderReview
	}
}
