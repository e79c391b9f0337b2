package model

import "time"

type SharedMilestone struct {
	ID            string     `db:"id" json:"id"`
	PartnershipID string     `db:"partnership_id" json:"partnership_id"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	Title         string     `db:"title" json:"title"`
	Description   *string    `db:"description" json:"description,omitempty"`
	TargetDate    *string    `db:"target_date" json:"target_date,omitempty"`
	Completed     bool       `db:"completed" json:"completed"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
