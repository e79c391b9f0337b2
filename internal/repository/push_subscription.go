package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/accountable/internal/model"
)

var ErrPushSubscriptionNotFound = errors.New("push subscription not found")

type PushSubscriptionRepository interface {
	Upsert(ctx context.Context, s *model.PushSubscription) error
	ByUserID(ctx context.Context, userID string) (*model.PushSubscription, error)
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) (int64, error)
}

type pushSubscriptionRepository struct {
	db *sqlx.DB
}

func NewPushSubscriptionRepository(db *sqlx.DB) PushSubscriptionRepository {
	return &pushSubscriptionRepository{db: db}
}

// Upsert stores the user's subscription, replacing an older one.
func (r *pushSubscriptionRepository) Upsert(ctx context.Context, s *model.PushSubscription) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET endpoint = excluded.endpoint, p256dh = excluded.p256dh, auth = excluded.auth, updated_at = excluded.updated_at
	`, s.ID, s.UserID, s.Endpoint, s.P256dh, s.Auth, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *pushSubscriptionRepository) ByUserID(ctx context.Context, userID string) (*model.PushSubscription, error) {
	var s model.PushSubscription
	err := r.db.GetContext(ctx, &s, `SELECT * FROM push_subscriptions WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, ErrPushSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *pushSubscriptionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1`, userID)
	return err
}

// DeleteByEndpoint drops subscriptions the push provider reported as gone.
func (r *pushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
