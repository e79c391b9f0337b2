package model

import "time"

const MaxMessageLength = 1000

type Message struct {
	ID            string    `db:"id" json:"id"`
	PartnershipID string    `db:"partnership_id" json:"partnership_id"`
	SenderID      string    `db:"sender_id" json:"sender_id"`
	Content       string    `db:"content" json:"content"`
	Read          bool      `db:"read" json:"read"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
