package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/testutil"
	"github.com/templui/accountable/internal/validation"
)

func TestGoalService_CreateDefaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "maker")

	goal, err := h.goals.Create(ctx, me, GoalInput{GoalText: "  Ship the pricing page  "})
	require.NoError(t, err)

	assert.Equal(t, testToday, goal.Date)
	assert.Equal(t, "Ship the pricing page", goal.GoalText)
	assert.Equal(t, model.PriorityMedium, goal.Priority)
	assert.Equal(t, model.DefaultJoinLimit, goal.JoinLimit)
	assert.Equal(t, 0, goal.JoinCurrentCount)
	assert.Contains(t, h.events.Types(), events.GoalPosted)

	_, err = h.goals.Create(ctx, me, GoalInput{GoalText: "second goal"})
	assert.ErrorIs(t, err, repository.ErrGoalAlreadyExists)

	today, err := h.goals.Today(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, goal.ID, today.ID)
}

func TestGoalService_CreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "maker")

	_, err := h.goals.Create(ctx, me, GoalInput{GoalText: "   "})
	var invalid *validation.Error
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "goal_text", invalid.Field)

	_, err = h.goals.Create(ctx, me, GoalInput{GoalText: "ok", Priority: "urgent"})
	assert.ErrorIs(t, err, ErrInvalidPriority)

	limit := 50
	goal, err := h.goals.Create(ctx, me, GoalInput{GoalText: "ok", Priority: model.PriorityCritical, JoinLimit: &limit})
	require.NoError(t, err)
	assert.Equal(t, model.MaxJoinLimit, goal.JoinLimit)
}

func TestGoalService_UpdateKeepsCapacity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "maker")
	other := h.user(t, "other")

	limit := 2
	goal, err := h.goals.Create(ctx, me, GoalInput{GoalText: "first draft", JoinLimit: &limit})
	require.NoError(t, err)

	bigger := 9
	metric := "deployed to prod"
	updated, err := h.goals.Update(ctx, me, goal.ID, GoalInput{GoalText: "final draft", SuccessMetric: &metric, JoinLimit: &bigger})
	require.NoError(t, err)
	assert.Equal(t, "final draft", updated.GoalText)
	assert.Equal(t, 2, updated.JoinLimit)

	stored, err := h.goals.ByID(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.JoinLimit)
	require.NotNil(t, stored.SuccessMetric)
	assert.Equal(t, metric, *stored.SuccessMetric)

	_, err = h.goals.Update(ctx, other, goal.ID, GoalInput{GoalText: "hijack"})
	assert.ErrorIs(t, err, repository.ErrGoalNotFound)

	err = h.goals.Delete(ctx, other, goal.ID)
	assert.ErrorIs(t, err, repository.ErrGoalNotFound)
	require.NoError(t, h.goals.Delete(ctx, me, goal.ID))
}

func TestGoalService_CheckInExtendsStreakOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "maker")
	testutil.SetStreak(t, h.db, me, 3, 5)

	goal, err := h.goals.Create(ctx, me, GoalInput{GoalText: "write the changelog"})
	require.NoError(t, err)

	res, err := h.goals.CheckIn(ctx, me, goal.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Goal.Completed)
	require.NotNil(t, res.Profile)
	assert.Equal(t, 4, res.Profile.CurrentStreak)
	assert.Equal(t, 5, res.Profile.LongestStreak)

	res, err = h.goals.CheckIn(ctx, me, goal.ID, true)
	require.NoError(t, err)
	assert.Nil(t, res.Profile)

	profile, err := h.profileRepo.ByUserID(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 4, profile.CurrentStreak)
	assert.Equal(t, 5, profile.LongestStreak)
}

func TestGoalService_CheckInNotDoneResetsStreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "maker")
	testutil.SetStreak(t, h.db, me, 4, 5)

	goal, err := h.goals.Create(ctx, me, GoalInput{GoalText: "write the changelog"})
	require.NoError(t, err)

	res, err := h.goals.CheckIn(ctx, me, goal.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Goal.Completed)
	require.NotNil(t, res.Profile)
	assert.Equal(t, 0, res.Profile.CurrentStreak)
	assert.Equal(t, 5, res.Profile.LongestStreak)
}

func TestGoalService_LongestStreakGrowsWithCurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "maker")
	testutil.SetStreak(t, h.db, me, 5, 5)

	goal, err := h.goals.Create(ctx, me, GoalInput{GoalText: "record the demo"})
	require.NoError(t, err)

	res, err := h.goals.CheckIn(ctx, me, goal.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Profile.CurrentStreak)
	assert.Equal(t, 6, res.Profile.LongestStreak)

	// Undo and redo on the same day: the reset wipes the current streak and
	// the fresh completion counts again, but longest never drops.
	_, err = h.goals.CheckIn(ctx, me, goal.ID, false)
	require.NoError(t, err)
	res, err = h.goals.CheckIn(ctx, me, goal.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Profile.CurrentStreak)
	assert.Equal(t, 6, res.Profile.LongestStreak)
}

func TestGoalService_PastGoalDoesNotCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "maker")
	testutil.SetStreak(t, h.db, me, 2, 2)

	goal, err := h.goals.Create(ctx, me, GoalInput{GoalText: "yesterday's goal"})
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)

	res, err := h.goals.CheckIn(ctx, me, goal.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Goal.Completed)
	assert.Nil(t, res.Profile)

	profile, err := h.profileRepo.ByUserID(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.CurrentStreak)
}

func TestGoalService_Feed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	viewer := h.user(t, "viewer")
	open := h.user(t, "open_owner")
	full := h.user(t, "full_owner")
	late := h.user(t, "late_owner")

	h.clock.Set(testNow.Add(-time.Hour))
	_, err := h.goals.Create(ctx, open, GoalInput{GoalText: "open goal"})
	require.NoError(t, err)

	one := 1
	fullGoal, err := h.goals.Create(ctx, full, GoalInput{GoalText: "full goal", JoinLimit: &one})
	require.NoError(t, err)
	_, ok, err := h.slots.Reserve(ctx, fullGoal.ID, viewer)
	require.NoError(t, err)
	require.True(t, ok)

	due := testNow.Add(-time.Minute)
	_, err = h.goals.Create(ctx, late, GoalInput{GoalText: "late goal", DueAt: &due})
	require.NoError(t, err)

	_, err = h.goals.Create(ctx, viewer, GoalInput{GoalText: "my own goal"})
	require.NoError(t, err)

	h.clock.Set(testNow)
	feed, err := h.goals.Feed(ctx, viewer)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "open goal", feed[0].GoalText)
	assert.Equal(t, "open_owner", feed[0].Username)
	assert.Equal(t, model.SlotAvailability{Limit: 3, Used: 0, Remaining: 3}, feed[0].Availability)
}
