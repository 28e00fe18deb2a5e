package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openregistrar/registrar-api/internal/models"
)

// NotificationRepository manages per-user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, title, body, read, created_at)
        VALUES (:id, :user_id, :title, :body, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns notifications for a user, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := `FROM notifications WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	if filter.UnreadOnly {
		base += " AND read = false"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, user_id, title, body, read, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false`
	var total int
	if err := r.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return total, nil
}

// MarkRead marks one notification as read, scoped to its owner.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	const query = `UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected > 0, nil
}

// MarkAllRead marks every notification for a user as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	const query = `UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
