package model

import "time"

const DefaultSessionMinutes = 30

type VideoSession struct {
	ID              string     `db:"id" json:"id"`
	PartnershipID   string     `db:"partnership_id" json:"partnership_id"`
	ScheduledAt     time.Time  `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	MeetingURL      *string    `db:"meeting_url" json:"meeting_url,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	Completed       bool       `db:"completed" json:"completed"`
	RemindedAt      *time.Time `db:"reminded_at" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

func (v *VideoSession) EndsAt() time.Time {
	return v.ScheduledAt.Add(time.Duration(v.DurationMinutes) * time.Minute)
}
