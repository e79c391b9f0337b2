package model

import (
	"errors"
	"time"
)

type PartnershipStatus string

const (
	PartnershipPending  PartnershipStatus = "pending"
	PartnershipActive   PartnershipStatus = "active"
	PartnershipDeclined PartnershipStatus = "declined"
	PartnershipEnded    PartnershipStatus = "ended"
)

var (
	ErrInvalidTransition = errors.New("invalid partnership status transition")
	ErrNotReceiver       = errors.New("only the receiver can respond to this request")
	ErrNotParticipant    = errors.New("user is not part of this partnership")
)

type Partnership struct {
	ID            string            `db:"id" json:"id"`
	RequesterID   string            `db:"requester_id" json:"requester_id"`
	ReceiverID    string            `db:"receiver_id" json:"receiver_id"`
	PairLow       string            `db:"pair_low" json:"-"`
	PairHigh      string            `db:"pair_high" json:"-"`
	Message       *string           `db:"message" json:"message,omitempty"`
	GoalID        *string           `db:"goal_id" json:"goal_id,omitempty"`
	ReservationID *string           `db:"reservation_id" json:"-"`
	Status        PartnershipStatus `db:"status" json:"status"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// OrderedPair returns the two ids sorted, the key of the open-pair index.
func OrderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (p *Partnership) IsTerminal() bool {
	return p.Status == PartnershipDeclined || p.Status == PartnershipEnded
}

func (p *Partnership) IsOpen() bool {
	return p.Status == PartnershipPending || p.Status == PartnershipActive
}

func (p *Partnership) Involves(userID string) bool {
	return p.RequesterID == userID || p.ReceiverID == userID
}

// Other returns the counterpart of me. It returns "" when me is not a participant.
func (p *Partnership) Other(me string) string {
	switch me {
	case p.RequesterID:
		return p.ReceiverID
	case p.ReceiverID:
		return p.RequesterID
	}
	return ""
}

// CanTransition reports whether actor may move the partnership to next.
func (p *Partnership) CanTransition(actor string, next PartnershipStatus) error {
	if !p.Involves(actor) {
		return ErrNotParticipant
	}

	switch next {
	case PartnershipActive, PartnershipDeclined:
		if actor != p.ReceiverID {
			return ErrNotReceiver
		}
		if p.Status != PartnershipPending {
			return ErrInvalidTransition
		}
	case PartnershipEnded:
		if p.Status != PartnershipActive {
			return ErrInvalidTransition
		}
	default:
		return ErrInvalidTransition
	}
	return nil
}

// PartnershipSets splits a user's partnerships into disjoint groups.
type PartnershipSets struct {
	Active   []*Partnership `json:"active"`
	Incoming []*Partnership `json:"incoming"`
	Outgoing []*Partnership `json:"outgoing"`
}

func Classify(userID string, partnerships []*Partnership) PartnershipSets {
	sets := PartnershipSets{
		Active:   []*Partnership{},
		Incoming: []*Partnership{},
		Outgoing: []*Partnership{},
	}
	for _, p := range partnerships {
		if !p.Involves(userID) {
			continue
		}
		switch p.Status {
		case PartnershipActive:
			sets.Active = append(sets.Active, p)
		case PartnershipPending:
			if p.ReceiverID == userID {
				sets.Incoming = append(sets.Incoming, p)
			} else {
				sets.Outgoing = append(sets.Outgoing, p)
			}
		}
	}
	return sets
}

// Conversation is an active partnership seen from one participant.
type Conversation struct {
	Partnership *Partnership `json:"partnership"`
	Partner     *Profile     `json:"partner"`
	LastMessage *Message     `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}
