package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

const notificationColumns = `id, type, title, message, employee_id, report_id, is_read, read_at,
	metadata, created_at, delivered_at, delivery_attempts, last_error`

// Create inserts a notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode notification metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (
			type, title, message, employee_id, report_id, is_read, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		n.Type,
		n.Title,
		n.Message,
		n.EmployeeID,
		nullInt64(n.ReportID),
		n.IsRead,
		string(raw),
		n.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("employee_id", n.EmployeeID),
			zap.String("type", n.Type),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.Int64("notification_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// MarkRead flips is_read once; a second call changes nothing
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE id = ? AND is_read = 0`,
		at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.Int64("notification_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountUnread counts unread notifications for an employee
func (r *NotificationRepository) CountUnread(ctx context.Context, employeeID string) (int, error) {
	var count int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE employee_id = ? AND is_read = 0`,
		employeeID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count unread notifications", zap.String("employee_id", employeeID), zap.Error(err))
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// List returns unread notifications first, then read ones, newest first within each group
func (r *NotificationRepository) List(ctx context.Context, employeeID string, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE employee_id = ?
		ORDER BY is_read ASC, created_at DESC, id DESC
		LIMIT ?
	`
	return r.query(ctx, query, employeeID, limit)
}

// ListUndelivered returns notifications not yet pushed to chat, oldest first
func (r *NotificationRepository) ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE delivered_at IS NULL AND delivery_attempts < ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	return r.query(ctx, query, maxAttempts, limit)
}

// MarkDelivered records a successful chat push
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET delivered_at = ?, delivery_attempts = delivery_attempts + 1, last_error = '' WHERE id = ?`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}

// RecordDeliveryFailure counts a failed chat push
func (r *NotificationRepository) RecordDeliveryFailure(ctx context.Context, id int64, errMsg string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET delivery_attempts = delivery_attempts + 1, last_error = ? WHERE id = ?`,
		errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*entity.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var n entity.Notification
	var reportID sql.NullInt64
	var readAt, deliveredAt sql.NullTime
	var metadata string
	if err := row.Scan(
		&n.ID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.EmployeeID,
		&reportID,
		&n.IsRead,
		&readAt,
		&metadata,
		&n.CreatedAt,
		&deliveredAt,
		&n.DeliveryAttempts,
		&n.LastError,
	); err != nil {
		return nil, err
	}
	n.ReportID = int64Ptr(reportID)
	n.ReadAt = timePtr(readAt)
	n.DeliveredAt = timePtr(deliveredAt)
	n.CreatedAt = n.CreatedAt.UTC()
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode notification metadata: %w", err)
		}
	}
	return &n, nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
