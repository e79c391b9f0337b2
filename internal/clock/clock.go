// Package clock provides the time source used to decide "now" and "today".
//
// Services never call time.Now directly; they take a Clock so tests can pin
// the calendar day.
package clock

import (
	"sync"
	"time"
)

// DateLayout is the calendar-day format stored on goals.
const DateLayout = "2006-01-02"

type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time
	// Today returns the current calendar day in the clock's location.
	Today() string
	// Location is the timezone that defines calendar days.
	Location() *time.Location
}

// System reads the wall clock.
type System struct {
	loc *time.Location
}

func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

func (c *System) Now() time.Time {
	return time.Now().UTC()
}

func (c *System) Today() string {
	return time.Now().In(c.loc).Format(DateLayout)
}

func (c *System) Location() *time.Location {
	return c.loc
}

// Fixed is a manually advanced clock. Safe for concurrent use.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now, loc: time.UTC}
}

// NewFixedIn returns a Fixed clock whose calendar days follow loc.
func NewFixedIn(now time.Time, loc *time.Location) *Fixed {
	return &Fixed{now: now, loc: loc}
}

func (c *Fixed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.UTC()
}

func (c *Fixed) Today() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.In(c.loc).Format(DateLayout)
}

func (c *Fixed) Location() *time.Location {
	return c.loc
}

// Set moves the clock to t.
func (c *Fixed) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Fixed) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
