package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/testutil"
)

var testNow = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func TestGoalRepository_ReserveSlotUntilFull(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	x := testutil.CreateUser(t, conn, "xavier")
	y := testutil.CreateUser(t, conn, "yara")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 1)

	res, ok, err := repo.ReserveSlot(ctx, goalID, x, testNow, 15*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, goalID, res.GoalID)
	assert.Equal(t, testNow.Add(15*time.Minute), res.ExpiresAt)
	assert.Equal(t, 1, testutil.JoinCount(t, conn, goalID))

	res, ok, err = repo.ReserveSlot(ctx, goalID, y, testNow, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, res)
	assert.Equal(t, 1, testutil.JoinCount(t, conn, goalID))
}

func TestGoalRepository_ReserveUnknownGoal(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	x := testutil.CreateUser(t, conn, "xavier")

	_, ok, err := repo.ReserveSlot(context.Background(), "missing", x, testNow, time.Minute)
	assert.ErrorIs(t, err, ErrGoalNotFound)
	assert.False(t, ok)
}

func TestGoalRepository_ConcurrentReserveLastSlot(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 3)

	holders := make([]string, 8)
	for i := range holders {
		holders[i] = testutil.CreateUser(t, conn, "holder"+string(rune('a'+i)))
	}

	// Take two of three slots so exactly one remains.
	for _, h := range holders[:2] {
		_, ok, err := repo.ReserveSlot(ctx, goalID, h, testNow, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		fulls     int
	)
	for _, h := range holders[2:] {
		wg.Add(1)
		go func(holder string) {
			defer wg.Done()
			_, ok, err := repo.ReserveSlot(ctx, goalID, holder, testNow, time.Minute)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				successes++
			} else {
				fulls++
			}
		}(h)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 5, fulls)
	assert.Equal(t, 3, testutil.JoinCount(t, conn, goalID))
}

func TestGoalRepository_ReleaseSlotIsIdempotent(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	x := testutil.CreateUser(t, conn, "xavier")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 2)

	res, ok, err := repo.ReserveSlot(ctx, goalID, x, testNow, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := repo.ReleaseSlot(ctx, res.ID, testNow)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 0, testutil.JoinCount(t, conn, goalID))

	released, err = repo.ReleaseSlot(ctx, res.ID, testNow)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, 0, testutil.JoinCount(t, conn, goalID))

	_, err = repo.Reservation(ctx, res.ID)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestGoalRepository_ExpiredReservationsSkipsAttached(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	partnerships := NewPartnershipRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	x := testutil.CreateUser(t, conn, "xavier")
	y := testutil.CreateUser(t, conn, "yara")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 3)

	stranded, _, err := repo.ReserveSlot(ctx, goalID, x, testNow, time.Minute)
	require.NoError(t, err)
	attached, _, err := repo.ReserveSlot(ctx, goalID, y, testNow, time.Minute)
	require.NoError(t, err)

	err = partnerships.Create(ctx, &model.Partnership{
		RequesterID:   y,
		ReceiverID:    owner,
		GoalID:        &goalID,
		ReservationID: &attached.ID,
		Status:        model.PartnershipPending,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	})
	require.NoError(t, err)

	expired, err := repo.ExpiredReservations(ctx, testNow.Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = repo.ExpiredReservations(ctx, testNow.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stranded.ID, expired[0].ID)
}

func TestGoalRepository_ReconcileSlots(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	x := testutil.CreateUser(t, conn, "xavier")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 3)

	_, _, err := repo.ReserveSlot(ctx, goalID, x, testNow, time.Minute)
	require.NoError(t, err)

	// A lost release leaves the counter ahead of the ledger.
	_, err = conn.Exec(`UPDATE goals SET join_current_count = 3 WHERE id = $1`, goalID)
	require.NoError(t, err)

	fixed, err := repo.ReconcileSlots(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fixed)
	assert.Equal(t, 1, testutil.JoinCount(t, conn, goalID))

	fixed, err = repo.ReconcileSlots(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

func TestGoalRepository_CounterCheckConstraint(t *testing.T) {
	conn := testutil.NewDB(t)
	owner := testutil.CreateUser(t, conn, "owner")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 2)

	_, err := conn.Exec(`UPDATE goals SET join_current_count = 3 WHERE id = $1`, goalID)
	assert.Error(t, err)

	_, err = conn.Exec(`UPDATE goals SET join_current_count = -1 WHERE id = $1`, goalID)
	assert.Error(t, err)
}

func TestGoalRepository_OneGoalPerDay(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()
	owner := testutil.CreateUser(t, conn, "owner")

	goal := &model.Goal{UserID: owner, Date: "2025-06-02", GoalText: "write docs", Priority: model.PriorityHigh,
		JoinLimit: 3, CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, repo.Create(ctx, goal))

	dup := &model.Goal{UserID: owner, Date: "2025-06-02", GoalText: "again", Priority: model.PriorityLow,
		JoinLimit: 3, CreatedAt: testNow, UpdatedAt: testNow}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrGoalAlreadyExists)

	got, err := repo.ByUserAndDate(ctx, owner, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "write docs", got.GoalText)
	assert.Equal(t, model.PriorityHigh, got.Priority)
}

func TestGoalRepository_SetCompletedReportsTransition(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	other := testutil.CreateUser(t, conn, "other")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 3)

	changed, err := repo.SetCompleted(ctx, goalID, owner, true, testNow)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.SetCompleted(ctx, goalID, owner, true, testNow)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.SetCompleted(ctx, goalID, owner, false, testNow)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = repo.SetCompleted(ctx, goalID, other, true, testNow)
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func TestGoalRepository_Feed(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()

	viewer := testutil.CreateUser(t, conn, "viewer")
	open := testutil.CreateUser(t, conn, "open")
	full := testutil.CreateUser(t, conn, "full")
	late := testutil.CreateUser(t, conn, "late")
	yesterday := testutil.CreateUser(t, conn, "yesterday")

	testutil.CreateGoal(t, conn, viewer, "2025-06-02", 3)
	openID := testutil.CreateGoal(t, conn, open, "2025-06-02", 3)
	fullID := testutil.CreateGoal(t, conn, full, "2025-06-02", 1)
	lateID := testutil.CreateGoal(t, conn, late, "2025-06-02", 3)
	testutil.CreateGoal(t, conn, yesterday, "2025-06-01", 3)

	_, ok, err := repo.ReserveSlot(ctx, fullID, viewer, testNow, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = conn.Exec(`UPDATE goals SET due_at = $1 WHERE id = $2`, testNow.Add(-time.Hour), lateID)
	require.NoError(t, err)

	feed, err := repo.Feed(ctx, viewer, "2025-06-02", testNow, 20)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, openID, feed[0].ID)
	assert.Equal(t, "open", feed[0].Username)
}

func TestGoalRepository_ReserveSlotReusesHolderRow(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	x := testutil.CreateUser(t, conn, "xavier")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 3)

	first, ok, err := repo.ReserveSlot(ctx, goalID, x, testNow, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, first.Reused)

	later := testNow.Add(10 * time.Minute)
	again, ok, err := repo.ReserveSlot(ctx, goalID, x, later, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, again.Reused)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, later.Add(time.Minute), again.ExpiresAt)
	assert.Equal(t, 1, testutil.JoinCount(t, conn, goalID))

	// The unique index backs the one-row-per-holder rule.
	_, err = conn.Exec(`
		INSERT INTO slot_reservations (id, goal_id, holder_id, created_at, expires_at)
		VALUES ('dup', $1, $2, $3, $4)
	`, goalID, x, testNow, testNow)
	assert.Error(t, err)
}

func TestGoalRepository_ReleaseSlotKeepsAttachedReservation(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewGoalRepository(conn)
	partnerships := NewPartnershipRepository(conn)
	ctx := context.Background()

	owner := testutil.CreateUser(t, conn, "owner")
	x := testutil.CreateUser(t, conn, "xavier")
	goalID := testutil.CreateGoal(t, conn, owner, "2025-06-02", 2)

	res, ok, err := repo.ReserveSlot(ctx, goalID, x, testNow, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Listed as expired, then claimed by a request before the sweep releases it.
	expired, err := repo.ExpiredReservations(ctx, testNow.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	p := &model.Partnership{
		RequesterID:   x,
		ReceiverID:    owner,
		GoalID:        &goalID,
		ReservationID: &res.ID,
		Status:        model.PartnershipPending,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	require.NoError(t, partnerships.Create(ctx, p))

	released, err := repo.ReleaseSlot(ctx, expired[0].ID, testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, 1, testutil.JoinCount(t, conn, goalID))

	_, err = conn.Exec(`UPDATE partnerships SET status = 'declined' WHERE id = $1`, p.ID)
	require.NoError(t, err)

	released, err = repo.ReleaseSlot(ctx, res.ID, testNow.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 0, testutil.JoinCount(t, conn, goalID))
}
