package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository.
// Rows are insert-only; the schema aborts updates and deletes.
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts a history entry
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	query := `
		INSERT INTO history_entries (
			instance_id, report_id, step_index, action, actor_id, actor_role, message, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var stepIndex sql.NullInt64
	if entry.StepIndex != nil {
		stepIndex = sql.NullInt64{Int64: int64(*entry.StepIndex), Valid: true}
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entry.InstanceID,
		entry.ReportID,
		stepIndex,
		entry.Action,
		entry.ActorID,
		entry.ActorRole,
		entry.Message,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append history entry",
			zap.Int64("instance_id", entry.InstanceID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByInstance returns an instance's entries by timestamp, ties by insertion order
func (r *HistoryRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.HistoryEntry, error) {
	return r.list(ctx, `WHERE instance_id = ?`, instanceID)
}

// ListByReport returns entries across every instance of a report
func (r *HistoryRepository) ListByReport(ctx context.Context, reportID int64) ([]*entity.HistoryEntry, error) {
	return r.list(ctx, `WHERE report_id = ?`, reportID)
}

func (r *HistoryRepository) list(ctx context.Context, where string, arg interface{}) ([]*entity.HistoryEntry, error) {
	query := `
		SELECT id, instance_id, report_id, step_index, action, actor_id, actor_role, message, timestamp
		FROM history_entries ` + where + `
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list history entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.HistoryEntry
	for rows.Next() {
		var e entity.HistoryEntry
		var stepIndex sql.NullInt64
		if err := rows.Scan(
			&e.ID,
			&e.InstanceID,
			&e.ReportID,
			&stepIndex,
			&e.Action,
			&e.ActorID,
			&e.ActorRole,
			&e.Message,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if stepIndex.Valid {
			idx := int(stepIndex.Int64)
			e.StepIndex = &idx
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
