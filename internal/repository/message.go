package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/accountable/internal/model"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	Thread(ctx context.Context, partnershipID string, limit int) ([]*model.Message, error)
	Last(ctx context.Context, partnershipID string) (*model.Message, error)
	MarkRead(ctx context.Context, partnershipID, readerID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	CountUnreadInThread(ctx context.Context, partnershipID, readerID string) (int, error)
}

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, partnership_id, sender_id, content, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`, m.ID, m.PartnershipID, m.SenderID, m.Content, m.CreatedAt)
	return err
}

// Thread returns the latest limit messages in chronological order.
func (r *messageRepository) Thread(ctx context.Context, partnershipID string, limit int) ([]*model.Message, error) {
	messages := []*model.Message{}
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM (
			SELECT * FROM messages WHERE partnership_id = $1 ORDER BY created_at DESC LIMIT $2
		) latest ORDER BY created_at ASC
	`, partnershipID, limit)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *messageRepository) Last(ctx context.Context, partnershipID string) (*model.Message, error) {
	var m model.Message
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM messages WHERE partnership_id = $1 ORDER BY created_at DESC LIMIT 1
	`, partnershipID)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// MarkRead marks the other party's messages in the thread as read.
func (r *messageRepository) MarkRead(ctx context.Context, partnershipID, readerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages SET read = TRUE
		WHERE partnership_id = $1 AND sender_id <> $2 AND read = FALSE
	`, partnershipID, readerID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// CountUnread counts unread incoming messages across the user's active partnerships.
func (r *messageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages m
		JOIN partnerships p ON p.id = m.partnership_id
		WHERE (p.requester_id = $1 OR p.receiver_id = $1)
		AND p.status = 'active'
		AND m.sender_id <> $1
		AND m.read = FALSE
	`, userID)
	return count, err
}

func (r *messageRepository) CountUnreadInThread(ctx context.Context, partnershipID, readerID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages
		WHERE partnership_id = $1 AND sender_id <> $2 AND read = FALSE
	`, partnershipID, readerID)
	return count, err
}
