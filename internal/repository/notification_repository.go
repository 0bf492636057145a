package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/thesishub/thesishub-api/internal/models"
)

const notificationColumns = `id, user_id, group_id, content, viewed, created_at`

// NotificationRepository stores per-user notices.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateMany inserts one notice per recipient in a single transaction.
func (r *NotificationRepository) CreateMany(ctx context.Context, groupID, content string, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	const query = `INSERT INTO notifications (id, user_id, group_id, content, viewed, created_at)
        VALUES ($1, $2, $3, $4, FALSE, $5)`
	for _, userID := range recipientIDs {
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), userID, groupID, content, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notifications: %w", err)
	}
	return nil
}

// ListByUser returns the user's notices newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d`, notificationColumns, limit)
	var notices []models.Notification
	if err := r.db.SelectContext(ctx, &notices, query, userID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notices, nil
}

// MarkViewed flips the user's unviewed notices for the group to viewed. The
// transition is one-way so re-marking is a no-op.
func (r *NotificationRepository) MarkViewed(ctx context.Context, userID, groupID string) error {
	const query = `UPDATE notifications SET viewed = TRUE WHERE user_id = $1 AND group_id = $2 AND viewed = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, groupID); err != nil {
		return fmt.Errorf("mark notifications viewed: %w", err)
	}
	return nil
}

// UnreadCount returns how many unviewed notices the user has.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND viewed = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
