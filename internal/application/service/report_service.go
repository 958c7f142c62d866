package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/delegation"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ReportService covers report creation and the read-side projections
type ReportService interface {
	CreateReport(ctx context.Context, employeeID string, month, year int) (*entity.Report, error)
	GetReport(ctx context.Context, reportID int64) (*ReportView, error)
	ListReports(ctx context.Context, employeeID string) ([]*ReportView, error)
	ListPendingApprovals(ctx context.Context, approverID string) ([]*PendingApproval, error)
	GetInstanceSummary(ctx context.Context, instanceID int64) (*InstanceSummary, error)
	UpsertEmployee(ctx context.Context, emp *entity.Employee) error
}

type reportServiceImpl struct {
	reportRepo   port.ReportRepository
	workflowRepo port.WorkflowRepository
	employeeRepo port.EmployeeRepository
	history      HistoryRecorder
	now          Clock
	logger       Logger
}

// NewReportService creates a new ReportService
func NewReportService(
	reportRepo port.ReportRepository,
	workflowRepo port.WorkflowRepository,
	employeeRepo port.EmployeeRepository,
	history HistoryRecorder,
	now Clock,
	logger Logger,
) ReportService {
	if now == nil {
		now = utcNow
	}
	return &reportServiceImpl{
		reportRepo:   reportRepo,
		workflowRepo: workflowRepo,
		employeeRepo: employeeRepo,
		history:      history,
		now:          now,
		logger:       logger,
	}
}

func (s *reportServiceImpl) CreateReport(ctx context.Context, employeeID string, month, year int) (*entity.Report, error) {
	if err := utils.ValidatePeriod(month, year); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	emp, err := s.employeeRepo.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: employee %s", entity.ErrNotFound, employeeID)
	}

	now := s.now()
	report := &entity.Report{
		EmployeeID: employeeID,
		Month:      month,
		Year:       year,
		Status:     entity.ReportStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.logger.Info("Report created", "report_id", report.ID, "employee_id", employeeID, "month", month, "year", year)
	return report, nil
}

func (s *reportServiceImpl) GetReport(ctx context.Context, reportID int64) (*ReportView, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: report %d", entity.ErrNotFound, reportID)
	}
	return s.project(ctx, report)
}

func (s *reportServiceImpl) ListReports(ctx context.Context, employeeID string) ([]*ReportView, error) {
	reports, err := s.reportRepo.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	views := make([]*ReportView, 0, len(reports))
	for _, r := range reports {
		view, err := s.project(ctx, r)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// ListPendingApprovals returns steps whose effective approver is approverID.
// An approver whose step is delegated away does not see it.
func (s *reportServiceImpl) ListPendingApprovals(ctx context.Context, approverID string) ([]*PendingApproval, error) {
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver id is required", entity.ErrValidation)
	}
	steps, err := s.workflowRepo.ListPendingForApprover(ctx, approverID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := []*PendingApproval{}
	for _, step := range steps {
		if !delegation.CanAct(step, approverID, now) {
			continue
		}
		inst, err := s.workflowRepo.GetInstance(ctx, step.InstanceID)
		if err != nil {
			return nil, err
		}
		if inst == nil {
			continue
		}
		report, err := s.reportRepo.GetByID(ctx, inst.ReportID)
		if err != nil {
			return nil, err
		}
		if report == nil {
			continue
		}
		n, err := s.employeeRepo.GetByIDs(ctx, []string{report.EmployeeID, step.ApproverID, step.DelegatedToID})
		if err != nil {
			return nil, err
		}
		out = append(out, &PendingApproval{
			ReportID:     report.ID,
			EmployeeID:   report.EmployeeID,
			EmployeeName: names(n).of(report.EmployeeID),
			Month:        report.Month,
			Year:         report.Year,
			Status:       report.Status,
			Step:         summarizeStep(step, n),
		})
	}
	return out, nil
}

func (s *reportServiceImpl) GetInstanceSummary(ctx context.Context, instanceID int64) (*InstanceSummary, error) {
	inst, err := s.workflowRepo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: workflow instance %d", entity.ErrNotFound, instanceID)
	}
	ids := make([]string, 0, 2*len(inst.Steps))
	for _, st := range inst.Steps {
		ids = append(ids, st.ApproverID, st.DelegatedToID)
	}
	n, err := s.employeeRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return summarizeInstance(inst, n), nil
}

func (s *reportServiceImpl) UpsertEmployee(ctx context.Context, emp *entity.Employee) error {
	if emp == nil || emp.ID == "" || emp.Name == "" {
		return fmt.Errorf("%w: employee needs id and name", entity.ErrValidation)
	}
	if emp.Email != "" {
		if err := utils.ValidateEmail(emp.Email); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrValidation, err)
		}
	}
	if emp.SupervisorID == emp.ID {
		return fmt.Errorf("%w: employee cannot supervise themselves", entity.ErrValidation)
	}
	if emp.Role == "" {
		emp.Role = "employee"
	}
	if emp.CreatedAt.IsZero() {
		emp.CreatedAt = s.now()
	}
	return s.employeeRepo.Upsert(ctx, emp)
}

// project loads the active instance and full report history into a view
func (s *reportServiceImpl) project(ctx context.Context, report *entity.Report) (*ReportView, error) {
	var inst *entity.WorkflowInstance
	if report.WorkflowInstanceID != nil {
		var err error
		inst, err = s.workflowRepo.GetInstance(ctx, *report.WorkflowInstanceID)
		if err != nil {
			return nil, err
		}
	}

	history, err := s.history.ListForReport(ctx, report.ID)
	if err != nil {
		return nil, err
	}

	n, err := s.employeeRepo.GetByIDs(ctx, employeeIDs(report, inst, history))
	if err != nil {
		return nil, err
	}
	return buildReportView(report, inst, history, n, s.now()), nil
}
