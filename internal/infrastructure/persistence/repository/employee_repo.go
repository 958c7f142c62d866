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

// EmployeeRepository implements port.EmployeeRepository
type EmployeeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sql.DB, logger *zap.Logger) port.EmployeeRepository {
	return &EmployeeRepository{db: db, logger: logger}
}

const employeeColumns = `id, name, email, role, supervisor_id, is_admin, lark_open_id, locale, created_at`

// Upsert inserts an employee or replaces its directory attributes
func (r *EmployeeRepository) Upsert(ctx context.Context, emp *entity.Employee) error {
	if emp.Locale == "" {
		emp.Locale = "en"
	}
	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			supervisor_id = excluded.supervisor_id,
			is_admin = excluded.is_admin,
			lark_open_id = excluded.lark_open_id,
			locale = excluded.locale
	`
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		emp.ID,
		emp.Name,
		emp.Email,
		emp.Role,
		nullString(emp.SupervisorID),
		emp.IsAdmin,
		emp.LarkOpenID,
		emp.Locale,
		emp.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to upsert employee", zap.String("employee_id", emp.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert employee: %w", err)
	}
	return nil
}

// GetByID retrieves an employee by ID
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*entity.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = ?`

	emp, err := scanEmployee(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee", zap.String("employee_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return emp, nil
}

// GetByIDs retrieves employees keyed by ID; unknown IDs are absent from the map
func (r *EmployeeRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Employee, error) {
	out := make(map[string]*entity.Employee, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id IN (` + placeholders + `)`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list employees", zap.Error(err))
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		out[emp.ID] = emp
	}
	return out, rows.Err()
}

// FirstByRole returns the earliest-created employee holding role, skipping excludeID
func (r *EmployeeRepository) FirstByRole(ctx context.Context, role, excludeID string) (*entity.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE role = ? AND id <> ? ORDER BY created_at, id LIMIT 1`

	emp, err := scanEmployee(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, role, excludeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find employee by role", zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to find employee by role: %w", err)
	}
	return emp, nil
}

func scanEmployee(row rowScanner) (*entity.Employee, error) {
	var emp entity.Employee
	var supervisorID sql.NullString
	if err := row.Scan(
		&emp.ID,
		&emp.Name,
		&emp.Email,
		&emp.Role,
		&supervisorID,
		&emp.IsAdmin,
		&emp.LarkOpenID,
		&emp.Locale,
		&emp.CreatedAt,
	); err != nil {
		return nil, err
	}
	emp.SupervisorID = supervisorID.String
	return &emp, nil
}

// Verify interface compliance
var _ port.EmployeeRepository = (*EmployeeRepository)(nil)
