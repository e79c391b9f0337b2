// Package events is the in-process publish/subscribe channel. Services publish
// an Event on every state transition; realtime subscribers (the websocket
// endpoint) receive the events addressed to their user.
package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

type Type string

const (
	GoalPosted    Type = "goal.posted"
	GoalCompleted Type = "goal.completed"

	SlotReserved Type = "slot.reserved"
	SlotFull     Type = "slot.full"
	SlotReleased Type = "slot.released"

	PartnershipRequested Type = "partnership.requested"
	PartnershipAccepted  Type = "partnership.accepted"
	PartnershipDeclined  Type = "partnership.declined"
	PartnershipEnded     Type = "partnership.ended"

	StreakUpdated Type = "streak.updated"

	NotificationCreated Type = "notification.created"
	MessageSent         Type = "message.sent"
	MilestoneChanged    Type = "milestone.changed"
	SessionScheduled    Type = "session.scheduled"
)

type Event struct {
	Type    Type      `json:"type"`
	UserIDs []string  `json:"-"` // audience; empty means every subscriber
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Filter decides whether a subscriber receives an event.
type Filter func(Event) bool

// ForUser matches broadcast events and events addressed to userID.
func ForUser(userID string) Filter {
	return func(e Event) bool {
		return len(e.UserIDs) == 0 || slices.Contains(e.UserIDs, userID)
	}
}

type subscription struct {
	ch     chan Event
	filter Filter
}

// Bus fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	buffer int
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		subs:   make(map[int]*subscription),
		buffer: buffer,
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, sub := range b.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			slog.Warn("event dropped for slow subscriber", "subscriber", id, "type", e.Type)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{ch: ch, filter: filter}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			sub, ok := b.subs[id]
			if !ok {
				return
			}
			delete(b.subs, id)
			close(sub.ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}
