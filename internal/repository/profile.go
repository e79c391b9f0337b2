package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/accountable/internal/db"
	"github.com/templui/accountable/internal/model"
)

var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrProfileExists     = errors.New("profile already exists")
)

type ProfileRepository interface {
	ByUserID(ctx context.Context, userID string) (*model.Profile, error)
	ByUsername(ctx context.Context, username string) (*model.Profile, error)
	Create(ctx context.Context, profile *model.Profile) error
	Update(ctx context.Context, profile *model.Profile) error
	SetAvatarPath(ctx context.Context, userID string, path *string, now time.Time) error
	IncrementStreak(ctx context.Context, userID string, now time.Time) (*model.Profile, error)
	ResetStreak(ctx context.Context, userID string, now time.Time) (*model.Profile, error)
	Discover(ctx context.Context, viewerID, stage string, limit int) ([]*model.Profile, error)
}

type profileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) ByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT * FROM profiles WHERE user_id = $1`, userID)

	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

func (r *profileRepository) ByUsername(ctx context.Context, username string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT * FROM profiles WHERE username = $1`, username)

	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

func (r *profileRepository) Create(ctx context.Context, profile *model.Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, user_id, username, avatar_path, bio, founder_stage, current_streak, longest_streak, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, profile.ID, profile.UserID, profile.Username, profile.AvatarPath, profile.Bio, profile.FounderStage,
		profile.CurrentStreak, profile.LongestStreak, profile.CreatedAt, profile.UpdatedAt)
	if db.IsUniqueViolation(err) {
		if strings.Contains(err.Error(), "username") {
			return ErrDuplicateUsername
		}
		return ErrProfileExists
	}

	return err
}

// Update writes the user-editable fields. Streak counters are left alone.
func (r *profileRepository) Update(ctx context.Context, profile *model.Profile) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET username = $1, bio = $2, founder_stage = $3, updated_at = $4
		WHERE user_id = $5
	`, profile.Username, profile.Bio, profile.FounderStage, profile.UpdatedAt, profile.UserID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return err
	}

	return expectRows(result, ErrProfileNotFound)
}

func (r *profileRepository) SetAvatarPath(ctx context.Context, userID string, path *string, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET avatar_path = $1, updated_at = $2 WHERE user_id = $3
	`, path, now, userID)
	if err != nil {
		return err
	}

	return expectRows(result, ErrProfileNotFound)
}

// IncrementStreak bumps current_streak and raises longest_streak with it in
// a single statement.
func (r *profileRepository) IncrementStreak(ctx context.Context, userID string, now time.Time) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, `
		UPDATE profiles
		SET current_streak = current_streak + 1,
		    longest_streak = CASE WHEN current_streak + 1 > longest_streak THEN current_streak + 1 ELSE longest_streak END,
		    updated_at = $1
		WHERE user_id = $2
		RETURNING *
	`, now, userID)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

func (r *profileRepository) ResetStreak(ctx context.Context, userID string, now time.Time) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, `
		UPDATE profiles
		SET current_streak = 0, updated_at = $1
		WHERE user_id = $2
		RETURNING *
	`, now, userID)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// Discover lists other founders the viewer has no open partnership with.
// An empty stage matches every stage.
func (r *profileRepository) Discover(ctx context.Context, viewerID, stage string, limit int) ([]*model.Profile, error) {
	profiles := []*model.Profile{}
	err := r.db.SelectContext(ctx, &profiles, `
		SELECT p.* FROM profiles p
		WHERE p.user_id <> $1
		AND ($2 = '' OR p.founder_stage = $2)
		AND NOT EXISTS (
			SELECT 1 FROM partnerships pa
			WHERE pa.status IN ('pending', 'active')
			AND ((pa.requester_id = $1 AND pa.receiver_id = p.user_id)
			  OR (pa.receiver_id = $1 AND pa.requester_id = p.user_id))
		)
		ORDER BY p.current_streak DESC, p.created_at DESC
		LIMIT $3
	`, viewerID, stage, limit)
	if err != nil {
		return nil, err
	}

	return profiles, nil
}

// expectRows maps a zero-row update to notFound.
func expectRows(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
