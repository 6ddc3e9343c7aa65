package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumina-edu/lms-api/internal/models"
)

const notificationColumns = `id, recipient_id, sender_id, type, title, message, presentation_id, course_id,
        action_required, priority, status, expires_at, read_at, created_at`

// notExpired keeps expired notifications out of every recipient-facing read.
const notExpired = `(expires_at IS NULL OR expires_at > NOW())`

// NotificationRepository handles persistence of per-recipient notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// BulkInsert writes one row per notification in a single statement.
func (r *NotificationRepository) BulkInsert(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range notifications {
		if notifications[i].ID == "" {
			notifications[i].ID = uuid.NewString()
		}
		if notifications[i].CreatedAt.IsZero() {
			notifications[i].CreatedAt = now
		}
		if notifications[i].Status == "" {
			notifications[i].Status = models.NotificationStatusUnread
		}
	}
	const query = `INSERT INTO notifications (id, recipient_id, sender_id, type, title, message, presentation_id, course_id,
        action_required, priority, status, expires_at, created_at)
        VALUES (:id, :recipient_id, :sender_id, :type, :title, :message, :presentation_id, :course_id,
        :action_required, :priority, :status, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notifications); err != nil {
		return fmt.Errorf("bulk insert notifications: %w", err)
	}
	return nil
}

// FindByID returns a notification by identifier.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1 LIMIT 1`, notificationColumns)
	var notification models.Notification
	if err := r.db.GetContext(ctx, &notification, query, id); err != nil {
		return nil, err
	}
	return &notification, nil
}

// List returns a recipient's notifications with pagination.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := `FROM notifications`
	conditions := []string{"recipient_id = $1", notExpired}
	args := []interface{}{filter.RecipientID}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		notificationColumns, base+clause, size, offset)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// CountUnread returns the recipient's live unread count.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND status = $2 AND %s`, notExpired)
	var count int
	if err := r.db.GetContext(ctx, &count, query, recipientID, models.NotificationStatusUnread); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead transitions one notification to READ for its recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) (bool, error) {
	const query = `UPDATE notifications SET status = $3, read_at = $4 WHERE id = $1 AND recipient_id = $2 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, recipientID, models.NotificationStatusRead, time.Now().UTC(), models.NotificationStatusUnread)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark read rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkAllRead transitions every unread notification of the recipient.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	const query = `UPDATE notifications SET status = $2, read_at = $3 WHERE recipient_id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, recipientID, models.NotificationStatusRead, time.Now().UTC(), models.NotificationStatusUnread)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read rows affected: %w", err)
	}
	return int(affected), nil
}

// Archive moves a notification to ARCHIVED for its recipient.
func (r *NotificationRepository) Archive(ctx context.Context, id, recipientID string) (bool, error) {
	const query = `UPDATE notifications SET status = $3 WHERE id = $1 AND recipient_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, recipientID, models.NotificationStatusArchived)
	if err != nil {
		return false, fmt.Errorf("archive notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive rows affected: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a notification owned by the recipient.
func (r *NotificationRepository) Delete(ctx context.Context, id, recipientID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}
