package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/model"
)

func TestSessionService_Schedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bruno")
	id := h.activePartnership(t, a, b)

	_, err := h.sessions.Schedule(ctx, a, id, SessionInput{ScheduledAt: testNow.Add(-time.Minute)})
	assert.ErrorIs(t, err, ErrSessionInPast)

	zero := 0
	_, err = h.sessions.Schedule(ctx, a, id, SessionInput{ScheduledAt: testNow.Add(time.Hour), DurationMinutes: &zero})
	assert.ErrorIs(t, err, ErrSessionDuration)

	bad := "javascript:alert(1)"
	_, err = h.sessions.Schedule(ctx, a, id, SessionInput{ScheduledAt: testNow.Add(time.Hour), MeetingURL: &bad})
	assert.ErrorIs(t, err, ErrMeetingURL)

	v, err := h.sessions.Schedule(ctx, a, id, SessionInput{ScheduledAt: testNow.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSessionMinutes, v.DurationMinutes)
	require.NotNil(t, v.MeetingURL)
	assert.True(t, strings.HasPrefix(*v.MeetingURL, "https://meet.jit.si/accountable-"))
	assert.Equal(t, testNow.Add(90*time.Minute), v.EndsAt())

	upcoming, err := h.sessions.Upcoming(ctx, b)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)

	notes := "shipped the beta"
	done, err := h.sessions.Complete(ctx, b, v.ID, &notes)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.Notes)
	assert.Equal(t, notes, *done.Notes)

	upcoming, err = h.sessions.Upcoming(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, upcoming)
}

func TestSessionService_RemindersFireOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bruno")
	id := h.activePartnership(t, a, b)

	soon, err := h.sessions.Schedule(ctx, a, id, SessionInput{ScheduledAt: testNow.Add(10 * time.Minute)})
	require.NoError(t, err)
	_, err = h.sessions.Schedule(ctx, a, id, SessionInput{ScheduledAt: testNow.Add(2 * time.Hour)})
	require.NoError(t, err)

	sent, err := h.sessions.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = h.sessions.SendReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	for _, userID := range []string{a, b} {
		list, err := h.notifications.List(ctx, userID, 0)
		require.NoError(t, err)

		reminders := 0
		for _, n := range list {
			if n.Type == model.NotificationReminder {
				reminders++
				assert.Equal(t, soon.ID, n.Metadata["session_id"])
				assert.Equal(t, "Your session starts in 10 minutes", n.Message)
			}
		}
		assert.Equal(t, 1, reminders, "user %s", userID)
	}
}
