package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// OutboxRepository implements port.OutboxRepository over the workflow_events table
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sql.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores an event for later dispatch
func (r *OutboxRepository) Append(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	var instanceID sql.NullInt64
	if evt.InstanceID != 0 {
		instanceID = sql.NullInt64{Int64: evt.InstanceID, Valid: true}
	}

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO workflow_events (id, type, report_id, instance_id, payload, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		evt.ID,
		string(evt.Type),
		evt.ReportID,
		instanceID,
		string(payload),
		evt.CorrelationID,
		evt.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append workflow event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.Error(err))
		return fmt.Errorf("failed to append workflow event: %w", err)
	}
	return nil
}

// MarkDispatched records that subscribers handled the event
func (r *OutboxRepository) MarkDispatched(ctx context.Context, eventID string, at time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_events SET dispatched_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?`,
		at.UTC(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event dispatched: %w", err)
	}
	return nil
}

// MarkFailed counts a failed dispatch attempt
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID string, errMsg string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		errMsg, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

// ListUndispatched returns events never dispatched that were created before olderThan
func (r *OutboxRepository) ListUndispatched(ctx context.Context, olderThan time.Time, limit int) ([]*event.Event, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, type, report_id, instance_id, payload, correlation_id, created_at
		FROM workflow_events
		WHERE dispatched_at IS NULL AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`, olderThan.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to list undispatched events", zap.Error(err))
		return nil, fmt.Errorf("failed to list undispatched events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var evt event.Event
		var typ, payload string
		var instanceID sql.NullInt64
		if err := rows.Scan(&evt.ID, &typ, &evt.ReportID, &instanceID, &payload, &evt.CorrelationID, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan workflow event: %w", err)
		}
		evt.Type = event.Type(typ)
		evt.InstanceID = instanceID.Int64
		evt.Timestamp = evt.Timestamp.UTC()
		if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		events = append(events, &evt)
	}
	return events, rows.Err()
}

// Verify interface compliance
var _ port.OutboxRepository = (*OutboxRepository)(nil)
