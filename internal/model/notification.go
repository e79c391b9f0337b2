package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	NotificationPartnerRequest  = "partner_request"
	NotificationPartnerAccepted = "partner_accepted"
	NotificationPartnerDeclined = "partner_declined"
	NotificationPartnerEnded    = "partner_ended"
	NotificationMessage         = "message"
	NotificationMilestone       = "milestone"
	NotificationVideoSession    = "video_session"
	NotificationReminder        = "reminder"
)

// Metadata is free-form notification context stored as JSON text.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	out := Metadata{}
	err := json.Unmarshal(raw, &out)
	if err != nil {
		return err
	}
	*m = out
	return nil
}

type Notification struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Title         string    `db:"title" json:"title"`
	Message       string    `db:"message" json:"message"`
	Type          string    `db:"type" json:"type"`
	Read          bool      `db:"read" json:"read"`
	PartnershipID *string   `db:"partnership_id" json:"partnership_id,omitempty"`
	Metadata      Metadata  `db:"metadata" json:"metadata"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// UnreadCounts backs the badge counters.
type UnreadCounts struct {
	Notifications   int `json:"notifications"`
	Messages        int `json:"messages"`
	PendingRequests int `json:"pending_requests"`
}
