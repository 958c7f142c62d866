package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ReportRepository implements port.ReportRepository
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB, logger *zap.Logger) port.ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

const reportColumns = `id, employee_id, month, year, status, workflow_instance_id,
	submitted_at, version, created_at, updated_at`

// Create inserts a new report. A second report for the same employee and
// period yields entity.ErrConflict.
func (r *ReportRepository) Create(ctx context.Context, report *entity.Report) error {
	query := `
		INSERT INTO reports (employee_id, month, year, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		report.EmployeeID,
		report.Month,
		report.Year,
		report.Status,
		report.CreatedAt.UTC(),
		report.UpdatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: report for %s %04d-%02d already exists", entity.ErrConflict, report.EmployeeID, report.Year, report.Month)
		}
		r.logger.Error("Failed to create report", zap.String("employee_id", report.EmployeeID), zap.Error(err))
		return fmt.Errorf("failed to create report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	report.ID = id
	report.Version = 1
	return nil
}

// GetByID retrieves a report by ID
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*entity.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ?`

	report, err := scanReport(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get report", zap.Int64("report_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListByEmployee returns an employee's reports, newest period first
func (r *ReportRepository) ListByEmployee(ctx context.Context, employeeID string) ([]*entity.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE employee_id = ? ORDER BY year DESC, month DESC`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, employeeID)
	if err != nil {
		r.logger.Error("Failed to list reports", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*entity.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Update writes the lifecycle columns guarded by the version read earlier
func (r *ReportRepository) Update(ctx context.Context, report *entity.Report) error {
	query := `
		UPDATE reports
		SET status = ?, workflow_instance_id = ?, submitted_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		report.Status,
		nullInt64(report.WorkflowInstanceID),
		nullTime(report.SubmittedAt),
		report.UpdatedAt.UTC(),
		report.ID,
		report.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update report", zap.Int64("report_id", report.ID), zap.Error(err))
		return fmt.Errorf("failed to update report: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: report %d changed concurrently", entity.ErrConflict, report.ID)
	}
	report.Version++
	return nil
}

func scanReport(row rowScanner) (*entity.Report, error) {
	var report entity.Report
	var instanceID sql.NullInt64
	var submittedAt sql.NullTime
	if err := row.Scan(
		&report.ID,
		&report.EmployeeID,
		&report.Month,
		&report.Year,
		&report.Status,
		&instanceID,
		&submittedAt,
		&report.Version,
		&report.CreatedAt,
		&report.UpdatedAt,
	); err != nil {
		return nil, err
	}
	report.WorkflowInstanceID = int64Ptr(instanceID)
	report.SubmittedAt = timePtr(submittedAt)
	return &report, nil
}

// Verify interface compliance
var _ port.ReportRepository = (*ReportRepository)(nil)
