package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const stepColumns = `id, instance_id, step_index, role, status, approver_id, delegated_to_id,
	delegation_expires_at, due_at, acted_at, acted_by, comments, version, created_at, updated_at`

// CreateInstance inserts the instance row and one row per step
func (r *WorkflowRepository) CreateInstance(ctx context.Context, inst *entity.WorkflowInstance) error {
	conn := sqlite.Conn(ctx, r.db)

	result, err := conn.ExecContext(ctx, `
		INSERT INTO workflow_instances (report_id, attempt, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`, inst.ReportID, inst.Attempt, inst.Status, inst.CreatedAt.UTC(), nullTime(inst.CompletedAt))
	if err != nil {
		r.logger.Error("Failed to create workflow instance", zap.Int64("report_id", inst.ReportID), zap.Error(err))
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	inst.ID = id

	for _, step := range inst.Steps {
		step.InstanceID = id
		res, err := conn.ExecContext(ctx, `
			INSERT INTO workflow_steps (
				instance_id, step_index, role, status, approver_id, delegated_to_id,
				delegation_expires_at, due_at, acted_at, acted_by, comments, version,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			step.InstanceID,
			step.Index,
			string(step.Role),
			step.Status,
			step.ApproverID,
			nullString(step.DelegatedToID),
			nullTime(step.DelegationExpiresAt),
			nullTime(step.DueAt),
			nullTime(step.ActedAt),
			nullString(step.ActedBy),
			step.Comments,
			step.Version,
			step.CreatedAt.UTC(),
			step.UpdatedAt.UTC(),
		)
		if err != nil {
			r.logger.Error("Failed to create workflow step",
				zap.Int64("instance_id", id), zap.Int("step_index", step.Index), zap.Error(err))
			return fmt.Errorf("failed to create workflow step %d: %w", step.Index, err)
		}
		if step.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	return nil
}

// GetInstance loads an instance with its steps ordered by index and their reminders
func (r *WorkflowRepository) GetInstance(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	conn := sqlite.Conn(ctx, r.db)

	var inst entity.WorkflowInstance
	var completedAt sql.NullTime
	err := conn.QueryRowContext(ctx, `
		SELECT id, report_id, attempt, status, created_at, completed_at
		FROM workflow_instances WHERE id = ?
	`, id).Scan(&inst.ID, &inst.ReportID, &inst.Attempt, &inst.Status, &inst.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow instance", zap.Int64("instance_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	inst.CompletedAt = timePtr(completedAt)

	steps, err := r.querySteps(ctx, `SELECT `+stepColumns+` FROM workflow_steps WHERE instance_id = ? ORDER BY step_index`, id)
	if err != nil {
		return nil, err
	}
	inst.Steps = steps
	return &inst, nil
}

// UpdateInstanceStatus sets the instance status and completion time
func (r *WorkflowRepository) UpdateInstanceStatus(ctx context.Context, id int64, status string, completedAt *time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_instances SET status = ?, completed_at = ? WHERE id = ?`,
		status, nullTime(completedAt), id)
	if err != nil {
		r.logger.Error("Failed to update workflow instance", zap.Int64("instance_id", id), zap.Error(err))
		return fmt.Errorf("failed to update workflow instance: %w", err)
	}
	return nil
}

// GetStep loads a single step with its reminders
func (r *WorkflowRepository) GetStep(ctx context.Context, stepID int64) (*entity.Step, error) {
	steps, err := r.querySteps(ctx, `SELECT `+stepColumns+` FROM workflow_steps WHERE id = ?`, stepID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, nil
	}
	return steps[0], nil
}

// UpdateStep writes the mutable columns when the version still matches
func (r *WorkflowRepository) UpdateStep(ctx context.Context, step *entity.Step) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE workflow_steps
		SET status = ?, delegated_to_id = ?, delegation_expires_at = ?, due_at = ?,
			acted_at = ?, acted_by = ?, comments = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		step.Status,
		nullString(step.DelegatedToID),
		nullTime(step.DelegationExpiresAt),
		nullTime(step.DueAt),
		nullTime(step.ActedAt),
		nullString(step.ActedBy),
		step.Comments,
		step.UpdatedAt.UTC(),
		step.ID,
		step.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow step", zap.Int64("step_id", step.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: step %d changed concurrently", entity.ErrConflict, step.ID)
	}
	step.Version++
	return nil
}

// AddReminder appends to the step's reminder sequence
func (r *WorkflowRepository) AddReminder(ctx context.Context, stepID int64, reminder entity.Reminder) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO step_reminders (step_id, sent_at, sent_by) VALUES (?, ?, ?)`,
		stepID, reminder.SentAt.UTC(), reminder.SentBy)
	if err != nil {
		r.logger.Error("Failed to add reminder", zap.Int64("step_id", stepID), zap.Error(err))
		return fmt.Errorf("failed to add reminder: %w", err)
	}
	return nil
}

// ListOverdueSteps returns pending steps on active instances that were due
// before now and have no reminder sent after quietSince, earliest due first.
// Steps still inside their reminder window never occupy the batch.
func (r *WorkflowRepository) ListOverdueSteps(ctx context.Context, now, quietSince time.Time, limit int) ([]*entity.Step, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.querySteps(ctx, `
		SELECT `+prefixed("s", stepColumns)+`
		FROM workflow_steps s
		JOIN workflow_instances i ON i.id = s.instance_id
		WHERE s.status = ? AND i.status = ?
		  AND s.due_at IS NOT NULL AND s.due_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM step_reminders r
			WHERE r.step_id = s.id AND r.sent_at > ?
		  )
		ORDER BY s.due_at, s.id
		LIMIT ?
	`, entity.StepStatusPending, entity.InstanceStatusActive, now.UTC(), quietSince.UTC(), limit)
}

// ListPendingForApprover returns pending steps where approverID is the approver or delegate.
// Callers resolve which of the two is currently effective.
func (r *WorkflowRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Step, error) {
	return r.querySteps(ctx, `
		SELECT `+prefixed("s", stepColumns)+`
		FROM workflow_steps s
		JOIN workflow_instances i ON i.id = s.instance_id
		WHERE s.status = ? AND i.status = ? AND (s.approver_id = ? OR s.delegated_to_id = ?)
		ORDER BY s.due_at, s.id
	`, entity.StepStatusPending, entity.InstanceStatusActive, approverID, approverID)
}

// querySteps scans steps, closes the cursor, then loads reminders for them
func (r *WorkflowRepository) querySteps(ctx context.Context, query string, args ...interface{}) ([]*entity.Step, error) {
	conn := sqlite.Conn(ctx, r.db)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query workflow steps", zap.Error(err))
		return nil, fmt.Errorf("failed to query workflow steps: %w", err)
	}

	var steps []*entity.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.loadReminders(ctx, conn, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *WorkflowRepository) loadReminders(ctx context.Context, conn sqlite.Executor, steps []*entity.Step) error {
	if len(steps) == 0 {
		return nil
	}
	byID := make(map[int64]*entity.Step, len(steps))
	args := make([]interface{}, 0, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		args = append(args, s.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := conn.QueryContext(ctx, `
		SELECT step_id, sent_at, sent_by FROM step_reminders
		WHERE step_id IN (`+placeholders+`)
		ORDER BY sent_at, id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stepID int64
		var rem entity.Reminder
		if err := rows.Scan(&stepID, &rem.SentAt, &rem.SentBy); err != nil {
			return fmt.Errorf("failed to scan reminder: %w", err)
		}
		rem.SentAt = rem.SentAt.UTC()
		if s, ok := byID[stepID]; ok {
			s.Reminders = append(s.Reminders, rem)
		}
	}
	return rows.Err()
}

func scanStep(row rowScanner) (*entity.Step, error) {
	var s entity.Step
	var role string
	var delegatedTo, actedBy sql.NullString
	var delegationExpires, dueAt, actedAt sql.NullTime
	if err := row.Scan(
		&s.ID,
		&s.InstanceID,
		&s.Index,
		&role,
		&s.Status,
		&s.ApproverID,
		&delegatedTo,
		&delegationExpires,
		&dueAt,
		&actedAt,
		&actedBy,
		&s.Comments,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Role = entity.ReviewRole(role)
	s.DelegatedToID = delegatedTo.String
	s.ActedBy = actedBy.String
	s.DelegationExpiresAt = timePtr(delegationExpires)
	s.DueAt = timePtr(dueAt)
	s.ActedAt = timePtr(actedAt)
	s.Reminders = []entity.Reminder{}
	return &s, nil
}

// prefixed qualifies a comma-separated column list with a table alias
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
