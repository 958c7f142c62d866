package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ApproverResolver assigns a reviewer to each role of a new workflow instance
type ApproverResolver interface {
	Resolve(ctx context.Context, employee *entity.Employee, roles []entity.ReviewRole) ([]string, error)
}

type approverResolverImpl struct {
	employeeRepo  port.EmployeeRepository
	roleApprovers map[string]string
}

// NewApproverResolver creates a resolver. roleApprovers pins a role to a
// specific employee; other roles fall back to the directory.
func NewApproverResolver(employeeRepo port.EmployeeRepository, roleApprovers map[string]string) ApproverResolver {
	pinned := make(map[string]string, len(roleApprovers))
	for role, id := range roleApprovers {
		if id != "" {
			pinned[role] = id
		}
	}
	return &approverResolverImpl{employeeRepo: employeeRepo, roleApprovers: pinned}
}

// Resolve maps the supervisor role to the employee's supervisor and any other
// role to the pinned approver or the first employee holding that role.
// The submitter never reviews their own report.
func (r *approverResolverImpl) Resolve(ctx context.Context, employee *entity.Employee, roles []entity.ReviewRole) ([]string, error) {
	approvers := make([]string, len(roles))
	for i, role := range roles {
		id, err := r.resolveOne(ctx, employee, role)
		if err != nil {
			return nil, err
		}
		if id == employee.ID {
			return nil, fmt.Errorf("%w: %s would review their own report as %s", entity.ErrValidation, employee.ID, role)
		}
		approvers[i] = id
	}
	return approvers, nil
}

func (r *approverResolverImpl) resolveOne(ctx context.Context, employee *entity.Employee, role entity.ReviewRole) (string, error) {
	if role == entity.RoleSupervisor {
		if employee.SupervisorID == "" {
			return "", fmt.Errorf("%w: employee %s has no supervisor", entity.ErrValidation, employee.ID)
		}
		return r.existing(ctx, employee.SupervisorID, role)
	}

	if id, ok := r.roleApprovers[role.String()]; ok {
		return r.existing(ctx, id, role)
	}

	emp, err := r.employeeRepo.FirstByRole(ctx, role.String(), employee.ID)
	if err != nil {
		return "", fmt.Errorf("find %s approver: %w", role, err)
	}
	if emp == nil {
		return "", fmt.Errorf("%w: no employee holds role %s", entity.ErrValidation, role)
	}
	return emp.ID, nil
}

func (r *approverResolverImpl) existing(ctx context.Context, id string, role entity.ReviewRole) (string, error) {
	emp, err := r.employeeRepo.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load %s approver: %w", role, err)
	}
	if emp == nil {
		return "", fmt.Errorf("%w: %s approver %s is not in the directory", entity.ErrValidation, role, id)
	}
	return emp.ID, nil
}
