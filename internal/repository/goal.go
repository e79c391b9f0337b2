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
	ErrGoalNotFound        = errors.New("goal not found")
	ErrGoalAlreadyExists   = errors.New("a goal for this day already exists")
	ErrReservationNotFound = errors.New("reservation not found")
)

type GoalRepository interface {
	Create(ctx context.Context, goal *model.Goal) error
	ByID(ctx context.Context, id string) (*model.Goal, error)
	ByUserAndDate(ctx context.Context, userID, date string) (*model.Goal, error)
	History(ctx context.Context, userID string, limit int) ([]*model.Goal, error)
	Update(ctx context.Context, goal *model.Goal) error
	Delete(ctx context.Context, id, userID string) error
	SetCompleted(ctx context.Context, id, userID string, completed bool, now time.Time) (bool, error)
	Feed(ctx context.Context, viewerID, date string, now time.Time, limit int) ([]*model.FeedGoal, error)
	OpenForDate(ctx context.Context, date string) ([]*model.Goal, error)

	ReserveSlot(ctx context.Context, goalID, holderID string, now time.Time, ttl time.Duration) (*model.SlotReservation, bool, error)
	ReleaseSlot(ctx context.Context, reservationID string, now time.Time) (bool, error)
	Reservation(ctx context.Context, id string) (*model.SlotReservation, error)
	ExpiredReservations(ctx context.Context, now time.Time) ([]*model.SlotReservation, error)
	ReconcileSlots(ctx context.Context, now time.Time) (int64, error)
}

type goalRepository struct {
	db *sqlx.DB
}

func NewGoalRepository(db *sqlx.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Create(ctx context.Context, goal *model.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.New().String()
	}

	query := `
		INSERT INTO goals (id, user_id, date, goal_text, due_at, priority, success_metric, blockers,
			motivation, join_conditions, join_limit, join_current_count, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, FALSE, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		goal.ID,
		goal.UserID,
		goal.Date,
		goal.GoalText,
		goal.DueAt,
		goal.Priority,
		goal.SuccessMetric,
		goal.Blockers,
		goal.Motivation,
		goal.JoinConditions,
		goal.JoinLimit,
		goal.CreatedAt,
		goal.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrGoalAlreadyExists
		}
		return err
	}

	goal.JoinCurrentCount = 0
	goal.Completed = false
	return nil
}

func (r *goalRepository) ByID(ctx context.Context, id string) (*model.Goal, error) {
	var goal model.Goal
	err := r.db.GetContext(ctx, &goal, `SELECT * FROM goals WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	return &goal, nil
}

func (r *goalRepository) ByUserAndDate(ctx context.Context, userID, date string) (*model.Goal, error) {
	var goal model.Goal
	err := r.db.GetContext(ctx, &goal, `SELECT * FROM goals WHERE user_id = $1 AND date = $2`, userID, date)
	if err == sql.ErrNoRows {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	return &goal, nil
}

func (r *goalRepository) History(ctx context.Context, userID string, limit int) ([]*model.Goal, error) {
	goals := []*model.Goal{}
	err := r.db.SelectContext(ctx, &goals, `
		SELECT * FROM goals WHERE user_id = $1 ORDER BY date DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

// Update writes the content fields. Capacity and completion have their own paths.
func (r *goalRepository) Update(ctx context.Context, goal *model.Goal) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE goals
		SET goal_text = $1, due_at = $2, priority = $3, success_metric = $4, blockers = $5,
			motivation = $6, join_conditions = $7, updated_at = $8
		WHERE id = $9 AND user_id = $10
	`, goal.GoalText, goal.DueAt, goal.Priority, goal.SuccessMetric, goal.Blockers,
		goal.Motivation, goal.JoinConditions, goal.UpdatedAt, goal.ID, goal.UserID)
	if err != nil {
		return err
	}

	return expectRows(result, ErrGoalNotFound)
}

func (r *goalRepository) Delete(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}

	return expectRows(result, ErrGoalNotFound)
}

// SetCompleted flips the completion flag and reports whether the stored value
// actually changed. Marking a completed goal complete again returns false.
func (r *goalRepository) SetCompleted(ctx context.Context, id, userID string, completed bool, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE goals SET completed = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4 AND completed <> $1
	`, completed, now, id, userID)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}

	var exists int
	err = r.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrGoalNotFound
	}

	return false, nil
}

// Feed returns the joinable goals other users posted for date, newest first.
func (r *goalRepository) Feed(ctx context.Context, viewerID, date string, now time.Time, limit int) ([]*model.FeedGoal, error) {
	goals := []*model.FeedGoal{}
	err := r.db.SelectContext(ctx, &goals, `
		SELECT g.*,
			COALESCE(p.username, '') AS username,
			p.avatar_path AS avatar_path,
			p.founder_stage AS founder_stage,
			COALESCE(p.current_streak, 0) AS current_streak
		FROM goals g
		LEFT JOIN profiles p ON p.user_id = g.user_id
		WHERE g.date = $1
		AND g.user_id <> $2
		AND (g.due_at IS NULL OR g.due_at > $3)
		AND g.join_current_count < g.join_limit
		ORDER BY g.created_at DESC
		LIMIT $4
	`, date, viewerID, now, limit)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

// OpenForDate lists the goals for date that are not completed yet.
func (r *goalRepository) OpenForDate(ctx context.Context, date string) ([]*model.Goal, error) {
	goals := []*model.Goal{}
	err := r.db.SelectContext(ctx, &goals, `SELECT * FROM goals WHERE date = $1 AND completed = FALSE`, date)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

// ReserveSlot claims one join slot. The counter only moves through the
// conditional UPDATE, so two callers racing for the last slot cannot both
// succeed. A holder keeps a single ledger row per goal: asking again returns
// that row with Reused set and leaves the counter alone. A full goal returns
// (nil, false, nil).
func (r *goalRepository) ReserveSlot(ctx context.Context, goalID, holderID string, now time.Time, ttl time.Duration) (*model.SlotReservation, bool, error) {
	var reservation *model.SlotReservation

	err := db.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		held, err := heldReservation(ctx, tx, goalID, holderID)
		if err != nil {
			return err
		}
		if held != nil {
			held.ExpiresAt = now.Add(ttl)
			_, err = tx.ExecContext(ctx, `UPDATE slot_reservations SET expires_at = $1 WHERE id = $2`, held.ExpiresAt, held.ID)
			if err != nil {
				return err
			}
			held.Reused = true
			reservation = held
			return nil
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE goals
			SET join_current_count = join_current_count + 1, updated_at = $1
			WHERE id = $2 AND join_current_count < join_limit
		`, now, goalID)
		if err != nil {
			return err
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			var exists int
			err = tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM goals WHERE id = $1`, goalID)
			if err != nil {
				return err
			}
			if exists == 0 {
				return ErrGoalNotFound
			}
			return nil
		}

		reservation = &model.SlotReservation{
			ID:        uuid.New().String(),
			GoalID:    goalID,
			HolderID:  holderID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO slot_reservations (id, goal_id, holder_id, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
		`, reservation.ID, reservation.GoalID, reservation.HolderID, reservation.CreatedAt, reservation.ExpiresAt)
		return err
	})
	if db.IsUniqueViolation(err) {
		// A concurrent call by the same holder inserted the row first and the
		// increment above was rolled back with this transaction.
		held, heldErr := heldReservation(ctx, r.db, goalID, holderID)
		if heldErr != nil {
			return nil, false, heldErr
		}
		if held == nil {
			return nil, false, err
		}
		held.Reused = true
		return held, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	return reservation, reservation != nil, nil
}

func heldReservation(ctx context.Context, q sqlx.QueryerContext, goalID, holderID string) (*model.SlotReservation, error) {
	var reservation model.SlotReservation
	err := sqlx.GetContext(ctx, q, &reservation, `
		SELECT * FROM slot_reservations WHERE goal_id = $1 AND holder_id = $2
	`, goalID, holderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &reservation, nil
}

// ReleaseSlot deletes the reservation and gives its slot back. The counter
// is only decremented when a ledger row was removed, so releasing the same
// reservation twice is a no-op. A reservation still referenced by a pending,
// active or ended partnership is kept. It reports whether a slot was freed.
func (r *goalRepository) ReleaseSlot(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	released := false

	err := db.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var goalID string
		err := tx.GetContext(ctx, &goalID, `SELECT goal_id FROM slot_reservations WHERE id = $1`, reservationID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM slot_reservations
			WHERE id = $1
			AND NOT EXISTS (
				SELECT 1 FROM partnerships p
				WHERE p.reservation_id = slot_reservations.id AND p.status <> 'declined'
			)
		`, reservationID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE goals
			SET join_current_count = CASE WHEN join_current_count > 0 THEN join_current_count - 1 ELSE 0 END,
				updated_at = $1
			WHERE id = $2
		`, now, goalID)
		if err != nil {
			return err
		}

		released = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return released, nil
}

func (r *goalRepository) Reservation(ctx context.Context, id string) (*model.SlotReservation, error) {
	var reservation model.SlotReservation
	err := r.db.GetContext(ctx, &reservation, `SELECT * FROM slot_reservations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}

	return &reservation, nil
}

// ExpiredReservations lists reservations past their expiry that no live or
// ended partnership refers to.
func (r *goalRepository) ExpiredReservations(ctx context.Context, now time.Time) ([]*model.SlotReservation, error) {
	reservations := []*model.SlotReservation{}
	err := r.db.SelectContext(ctx, &reservations, `
		SELECT r.* FROM slot_reservations r
		WHERE r.expires_at <= $1
		AND NOT EXISTS (
			SELECT 1 FROM partnerships p
			WHERE p.reservation_id = r.id AND p.status <> 'declined'
		)
		ORDER BY r.expires_at
	`, now)
	if err != nil {
		return nil, err
	}

	return reservations, nil
}

// ReconcileSlots resets every goal's counter to the number of ledger rows
// it holds and returns how many goals were corrected.
func (r *goalRepository) ReconcileSlots(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE goals
		SET join_current_count = (SELECT COUNT(*) FROM slot_reservations r WHERE r.goal_id = goals.id),
			updated_at = $1
		WHERE join_current_count <> (SELECT COUNT(*) FROM slot_reservations r WHERE r.goal_id = goals.id)
	`, now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
