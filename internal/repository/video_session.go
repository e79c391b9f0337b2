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

var ErrSessionNotFound = errors.New("video session not found")

type VideoSessionRepository interface {
	Create(ctx context.Context, v *model.VideoSession) error
	ByID(ctx context.Context, id string) (*model.VideoSession, error)
	Upcoming(ctx context.Context, userID string, from time.Time) ([]*model.VideoSession, error)
	ListByPartnership(ctx context.Context, partnershipID string) ([]*model.VideoSession, error)
	Complete(ctx context.Context, id string, notes *string) (*model.VideoSession, error)
	DueForReminder(ctx context.Context, from, until time.Time) ([]*model.VideoSession, error)
	MarkReminded(ctx context.Context, id string, now time.Time) (bool, error)
}

type videoSessionRepository struct {
	db *sqlx.DB
}

func NewVideoSessionRepository(db *sqlx.DB) VideoSessionRepository {
	return &videoSessionRepository{db: db}
}

func (r *videoSessionRepository) Create(ctx context.Context, v *model.VideoSession) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO video_sessions (id, partnership_id, scheduled_at, duration_minutes, meeting_url, notes,
			completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`, v.ID, v.PartnershipID, v.ScheduledAt, v.DurationMinutes, v.MeetingURL, v.Notes, v.CreatedAt)
	return err
}

func (r *videoSessionRepository) ByID(ctx context.Context, id string) (*model.VideoSession, error) {
	var v model.VideoSession
	err := r.db.GetContext(ctx, &v, `SELECT * FROM video_sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// Upcoming lists the user's open sessions starting at or after from across
// active partnerships.
func (r *videoSessionRepository) Upcoming(ctx context.Context, userID string, from time.Time) ([]*model.VideoSession, error) {
	sessions := []*model.VideoSession{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT v.* FROM video_sessions v
		JOIN partnerships p ON p.id = v.partnership_id
		WHERE (p.requester_id = $1 OR p.receiver_id = $1)
		AND p.status = 'active'
		AND v.completed = FALSE
		AND v.scheduled_at >= $2
		ORDER BY v.scheduled_at ASC
	`, userID, from)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *videoSessionRepository) ListByPartnership(ctx context.Context, partnershipID string) ([]*model.VideoSession, error) {
	sessions := []*model.VideoSession{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM video_sessions WHERE partnership_id = $1 ORDER BY scheduled_at DESC
	`, partnershipID)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *videoSessionRepository) Complete(ctx context.Context, id string, notes *string) (*model.VideoSession, error) {
	var v model.VideoSession
	err := r.db.GetContext(ctx, &v, `
		UPDATE video_sessions SET completed = TRUE, notes = COALESCE($1, notes)
		WHERE id = $2
		RETURNING *
	`, notes, id)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// DueForReminder lists open, unreminded sessions that start in (from, until].
func (r *videoSessionRepository) DueForReminder(ctx context.Context, from, until time.Time) ([]*model.VideoSession, error) {
	sessions := []*model.VideoSession{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM video_sessions
		WHERE completed = FALSE AND reminded_at IS NULL
		AND scheduled_at > $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
	`, from, until)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// MarkReminded claims the reminder for a session. Only one caller wins.
func (r *videoSessionRepository) MarkReminded(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE video_sessions SET reminded_at = $1 WHERE id = $2 AND reminded_at IS NULL
	`, now, id)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
