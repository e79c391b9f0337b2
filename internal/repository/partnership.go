package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/accountable/internal/db"
	"github.com/templui/accountable/internal/model"
)

var (
	ErrPartnershipNotFound  = errors.New("partnership not found")
	ErrDuplicatePartnership = errors.New("an open partnership already exists for this pair")
)

type PartnershipRepository interface {
	Create(ctx context.Context, p *model.Partnership) error
	ByID(ctx context.Context, id string) (*model.Partnership, error)
	OpenBetween(ctx context.Context, a, b string) (*model.Partnership, error)
	ForUser(ctx context.Context, userID string) ([]*model.Partnership, error)
	Respond(ctx context.Context, id, receiverID string, status model.PartnershipStatus, now time.Time) (bool, error)
	End(ctx context.Context, id, actorID string, now time.Time) (bool, error)
	CountIncomingPending(ctx context.Context, userID string) (int, error)
}

type partnershipRepository struct {
	db *sqlx.DB
}

func NewPartnershipRepository(db *sqlx.DB) PartnershipRepository {
	return &partnershipRepository{db: db}
}

// Create inserts a pending partnership. The open-pair unique index turns a
// concurrent duplicate into ErrDuplicatePartnership.
func (r *partnershipRepository) Create(ctx context.Context, p *model.Partnership) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.PairLow, p.PairHigh = model.OrderedPair(p.RequesterID, p.ReceiverID)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO partnerships (id, requester_id, receiver_id, pair_low, pair_high, message, goal_id,
			reservation_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.RequesterID, p.ReceiverID, p.PairLow, p.PairHigh, p.Message, p.GoalID,
		p.ReservationID, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicatePartnership
		}
		return err
	}

	return nil
}

func (r *partnershipRepository) ByID(ctx context.Context, id string) (*model.Partnership, error) {
	var p model.Partnership
	err := r.db.GetContext(ctx, &p, `SELECT * FROM partnerships WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrPartnershipNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// OpenBetween returns the pending or active partnership between a and b in
// either direction.
func (r *partnershipRepository) OpenBetween(ctx context.Context, a, b string) (*model.Partnership, error) {
	low, high := model.OrderedPair(a, b)

	var p model.Partnership
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM partnerships
		WHERE pair_low = $1 AND pair_high = $2 AND status IN ('pending', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`, low, high)
	if err == sql.ErrNoRows {
		return nil, ErrPartnershipNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *partnershipRepository) ForUser(ctx context.Context, userID string) ([]*model.Partnership, error) {
	partnerships := []*model.Partnership{}
	err := r.db.SelectContext(ctx, &partnerships, `
		SELECT * FROM partnerships
		WHERE requester_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}

	return partnerships, nil
}

// Respond moves a pending partnership to status on behalf of its receiver.
// It reports false when no row matched: wrong actor, wrong state or unknown id.
func (r *partnershipRepository) Respond(ctx context.Context, id, receiverID string, status model.PartnershipStatus, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE partnerships SET status = $1, updated_at = $2
		WHERE id = $3 AND receiver_id = $4 AND status = 'pending'
	`, status, now, id, receiverID)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *partnershipRepository) End(ctx context.Context, id, actorID string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE partnerships SET status = 'ended', updated_at = $1
		WHERE id = $2 AND (requester_id = $3 OR receiver_id = $3) AND status = 'active'
	`, now, id, actorID)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *partnershipRepository) CountIncomingPending(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM partnerships WHERE receiver_id = $1 AND status = 'pending'
	`, userID)
	return count, err
}
