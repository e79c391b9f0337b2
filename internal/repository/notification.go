package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/accountable/internal/model"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ByID(ctx context.Context, id string) (*model.Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, userID, id string, now time.Time) error
	MarkAllRead(ctx context.Context, userID string, now time.Time) (int64, error)
	MarkPartnershipRead(ctx context.Context, userID, partnershipID, notificationType string, now time.Time) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create stores the notification. partnership_id is copied out of the
// metadata so thread reads can clear notifications without JSON queries.
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Metadata == nil {
		n.Metadata = model.Metadata{}
	}
	if id, ok := n.Metadata["partnership_id"]; ok && id != "" && n.PartnershipID == nil {
		n.PartnershipID = &id
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, read, partnership_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8, $9)
	`, n.ID, n.UserID, n.Title, n.Message, n.Type, n.PartnershipID, n.Metadata, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r *notificationRepository) ByID(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}

	return &n, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	notifications := []*model.Notification{}
	err := r.db.SelectContext(ctx, &notifications, `
		SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, updated_at = $1 WHERE id = $2 AND user_id = $3
	`, now, id, userID)
	if err != nil {
		return err
	}

	return expectRows(result, ErrNotificationNotFound)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, updated_at = $1 WHERE user_id = $2 AND read = FALSE
	`, now, userID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *notificationRepository) MarkPartnershipRead(ctx context.Context, userID, partnershipID, notificationType string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, updated_at = $1
		WHERE user_id = $2 AND partnership_id = $3 AND type = $4 AND read = FALSE
	`, now, userID, partnershipID, notificationType)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *notificationRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}

	return expectRows(result, ErrNotificationNotFound)
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE
	`, userID)
	return count, err
}
