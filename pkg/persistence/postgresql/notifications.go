package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// NotificationRepository is the in-product notification sink.
type NotificationRepository struct {
	db *sql.DB
}

func (r *NotificationRepository) Insert(ctx context.Context, notification *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, execution_id, mode, title, body, urgency, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		notification.ID,
		notification.UserID,
		nullString(notification.ExecutionID),
		nullString(string(notification.Mode)),
		notification.Title,
		nullString(notification.Body),
		nullString(string(notification.Urgency)),
		notification.CreatedAt,
		notification.ReadAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, execution_id, mode, title, body, urgency, created_at, read_at
		FROM notifications
		WHERE user_id = $1
	`

	if unreadOnly {
		query += ` AND read_at IS NULL`
	}

	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}

	defer func() { _ = rows.Close() }()

	notifications := make([]*models.Notification, 0)

	for rows.Next() {
		var (
			notification models.Notification
			executionID  sql.NullString
			mode         sql.NullString
			body         sql.NullString
			urgency      sql.NullString
		)

		err := rows.Scan(
			&notification.ID,
			&notification.UserID,
			&executionID,
			&mode,
			&notification.Title,
			&body,
			&urgency,
			&notification.CreatedAt,
			&notification.ReadAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		notification.ExecutionID = executionID.String
		notification.Mode = models.TriggerMode(mode.String)
		notification.Body = body.String
		notification.Urgency = models.Urgency(urgency.String)

		notifications = append(notifications, &notification)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.ErrNotificationNotFound
	}

	return nil
}
