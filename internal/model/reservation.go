package model

import "time"

// SlotReservation is one occupied join slot on a goal.
type SlotReservation struct {
	ID        string    `db:"id" json:"id"`
	GoalID    string    `db:"goal_id" json:"goal_id"`
	HolderID  string    `db:"holder_id" json:"holder_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`

	// Reused is set when the holder already had this row on the goal.
	Reused bool `db:"-" json:"-"`
}
