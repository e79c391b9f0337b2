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

var ErrMilestoneNotFound = errors.New("milestone not found")

type MilestoneRepository interface {
	Create(ctx context.Context, m *model.SharedMilestone) error
	ByID(ctx context.Context, id string) (*model.SharedMilestone, error)
	ListByPartnership(ctx context.Context, partnershipID string) ([]*model.SharedMilestone, error)
	SetCompleted(ctx context.Context, id string, completed bool, now time.Time) (*model.SharedMilestone, error)
}

type milestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) MilestoneRepository {
	return &milestoneRepository{db: db}
}

func (r *milestoneRepository) Create(ctx context.Context, m *model.SharedMilestone) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shared_milestones (id, partnership_id, created_by, title, description, target_date,
			completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
	`, m.ID, m.PartnershipID, m.CreatedBy, m.Title, m.Description, m.TargetDate, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *milestoneRepository) ByID(ctx context.Context, id string) (*model.SharedMilestone, error) {
	var m model.SharedMilestone
	err := r.db.GetContext(ctx, &m, `SELECT * FROM shared_milestones WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrMilestoneNotFound
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (r *milestoneRepository) ListByPartnership(ctx context.Context, partnershipID string) ([]*model.SharedMilestone, error) {
	milestones := []*model.SharedMilestone{}
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM shared_milestones WHERE partnership_id = $1 ORDER BY created_at ASC
	`, partnershipID)
	if err != nil {
		return nil, err
	}

	return milestones, nil
}

func (r *milestoneRepository) SetCompleted(ctx context.Context, id string, completed bool, now time.Time) (*model.SharedMilestone, error) {
	var completedAt *time.Time
	if completed {
		completedAt = &now
	}

	var m model.SharedMilestone
	err := r.db.GetContext(ctx, &m, `
		UPDATE shared_milestones SET completed = $1, completed_at = $2, updated_at = $3
		WHERE id = $4
		RETURNING *
	`, completed, completedAt, now, id)
	if err == sql.ErrNoRows {
		return nil, ErrMilestoneNotFound
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}
