package service

import (
	"context"
	"errors"
	"strings"
	"sync"
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

var errInjected = errors.New("injected storage fault")

// failingCreate fails every partnership insert.
type failingCreate struct {
	repository.PartnershipRepository
}

func (failingCreate) Create(context.Context, *model.Partnership) error {
	return errInjected
}

func TestPartnershipService_GoalFullIsAnOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "owner")
	x := h.user(t, "xavier")
	y := h.user(t, "yasmin")
	goalID := testutil.CreateGoal(t, h.db, owner, testToday, 1)

	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, model.PartnershipPending, res.Partnership.Status)
	assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))

	res, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: y, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGoalFull, res.Outcome)
	assert.Nil(t, res.Partnership)
	assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))

	assert.Contains(t, h.events.Types(), events.SlotFull)
}

func TestPartnershipService_CompensatesFailedInsert(t *testing.T) {
	h := newHarness(t, withPartnershipRepo(func(r repository.PartnershipRepository) repository.PartnershipRepository {
		return failingCreate{r}
	}))
	ctx := context.Background()

	owner := h.user(t, "owner")
	x := h.user(t, "xavier")
	goalID := testutil.CreateGoal(t, h.db, owner, testToday, 1)

	_, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.ErrorIs(t, err, errInjected)

	assert.Equal(t, 0, testutil.JoinCount(t, h.db, goalID))
	assert.Equal(t, []events.Type{events.SlotReserved, events.SlotReleased}, h.events.Types())

	var ledger int
	require.NoError(t, h.db.Get(&ledger, `SELECT COUNT(*) FROM slot_reservations WHERE goal_id = $1`, goalID))
	assert.Zero(t, ledger)
}

func TestPartnershipService_AcceptIsReceiverOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.user(t, "alice")
	b := h.user(t, "bruno")

	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b})
	require.NoError(t, err)
	id := res.Partnership.ID

	_, err = h.partnerships.Accept(ctx, id, a)
	assert.ErrorIs(t, err, model.ErrNotReceiver)

	p, err := h.partnerships.Accept(ctx, id, b)
	require.NoError(t, err)
	assert.Equal(t, model.PartnershipActive, p.Status)

	// Accepting again is a no-op for the receiver and still rejected for the requester.
	p, err = h.partnerships.Accept(ctx, id, b)
	require.NoError(t, err)
	assert.Equal(t, model.PartnershipActive, p.Status)

	_, err = h.partnerships.Accept(ctx, id, a)
	assert.ErrorIs(t, err, model.ErrNotReceiver)

	stored, err := h.partnershipRepo.ByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.PartnershipActive, stored.Status)

	// Chat is open for both.
	_, err = h.messages.Send(ctx, a, id, "morning! shipping the pricing page today")
	require.NoError(t, err)
	_, err = h.messages.Send(ctx, b, id, "nice, I'm on onboarding emails")
	require.NoError(t, err)

	outsider := h.user(t, "oscar")
	_, err = h.partnerships.Accept(ctx, id, outsider)
	assert.ErrorIs(t, err, model.ErrNotParticipant)
}

func TestPartnershipService_Duplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.user(t, "alice")
	b := h.user(t, "bruno")

	first, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b})
	require.NoError(t, err)

	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: b, ReceiverID: a})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPending, res.Outcome)
	assert.Equal(t, first.Partnership.ID, res.Partnership.ID)

	_, err = h.partnerships.Accept(ctx, first.Partnership.ID, b)
	require.NoError(t, err)

	res, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyActive, res.Outcome)
	assert.Equal(t, first.Partnership.ID, res.Partnership.ID)
}

func TestPartnershipService_DuplicateCheckRunsBeforeReserve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "owner")
	x := h.user(t, "xavier")
	goalID := testutil.CreateGoal(t, h.db, owner, testToday, 3)

	_, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)

	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPending, res.Outcome)
	assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))
}

func TestPartnershipService_DeclineReleasesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "owner")
	x := h.user(t, "xavier")
	goalID := testutil.CreateGoal(t, h.db, owner, testToday, 1)

	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)
	require.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))

	_, err = h.partnerships.Decline(ctx, res.Partnership.ID, x)
	assert.ErrorIs(t, err, model.ErrNotReceiver)
	assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))

	p, err := h.partnerships.Decline(ctx, res.Partnership.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, model.PartnershipDeclined, p.Status)
	assert.Equal(t, 0, testutil.JoinCount(t, h.db, goalID))

	_, err = h.partnerships.Accept(ctx, res.Partnership.ID, owner)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// Declined pairs may try again.
	again, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, again.Outcome)
}

func TestPartnershipService_EndKeepsSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "owner")
	x := h.user(t, "xavier")
	goalID := testutil.CreateGoal(t, h.db, owner, testToday, 2)

	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)

	_, err = h.partnerships.End(ctx, res.Partnership.ID, x)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = h.partnerships.Accept(ctx, res.Partnership.ID, owner)
	require.NoError(t, err)

	p, err := h.partnerships.End(ctx, res.Partnership.ID, x)
	require.NoError(t, err)
	assert.Equal(t, model.PartnershipEnded, p.Status)
	assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))

	_, err = h.messages.Send(ctx, x, p.ID, "still there?")
	assert.ErrorIs(t, err, ErrPartnershipNotActive)
}

func TestPartnershipService_EndedRequesterReusesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "owner")
	x := h.user(t, "xavier")
	y := h.user(t, "yasmin")
	goalID := testutil.CreateGoal(t, h.db, owner, testToday, 3)

	for range 3 {
		res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
		require.NoError(t, err)
		require.Equal(t, OutcomeCreated, res.Outcome)

		_, err = h.partnerships.Accept(ctx, res.Partnership.ID, owner)
		require.NoError(t, err)
		_, err = h.partnerships.End(ctx, res.Partnership.ID, x)
		require.NoError(t, err)

		assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))
	}

	// Declining a request on a reused slot keeps it for the ended partnerships.
	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)
	_, err = h.partnerships.Decline(ctx, res.Partnership.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))

	res, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: y, ReceiverID: owner, GoalID: &goalID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 2, testutil.JoinCount(t, h.db, goalID))

	var ledger int
	require.NoError(t, h.db.Get(&ledger, `SELECT COUNT(*) FROM slot_reservations WHERE goal_id = $1`, goalID))
	assert.Equal(t, 2, ledger)
}

func TestPartnershipService_ConcurrentDuplicateCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "owner")
	x := h.user(t, "xavier")
	goalID := testutil.CreateGoal(t, h.db, owner, testToday, 3)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[CreateOutcome]int{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: x, ReceiverID: owner, GoalID: &goalID})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[OutcomeCreated])
	assert.Equal(t, 7, outcomes[OutcomeAlreadyPending])
	assert.Equal(t, 1, testutil.JoinCount(t, h.db, goalID))

	var ledger int
	require.NoError(t, h.db.Get(&ledger, `SELECT COUNT(*) FROM slot_reservations WHERE goal_id = $1`, goalID))
	assert.Equal(t, 1, ledger)
}

func TestPartnershipService_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.user(t, "alice")
	b := h.user(t, "bruno")
	c := h.user(t, "carla")
	goalOfC := testutil.CreateGoal(t, h.db, c, testToday, 3)

	_, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: a})
	assert.ErrorIs(t, err, ErrSelfPartnership)

	tooLong := strings.Repeat("x", 501)
	_, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b, Message: &tooLong})
	var invalid *validation.Error
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "message", invalid.Field)

	_, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b, GoalID: &goalOfC})
	assert.ErrorIs(t, err, ErrGoalNotReceiver)

	missing := "does-not-exist"
	_, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b, GoalID: &missing})
	assert.ErrorIs(t, err, repository.ErrGoalNotFound)

	due := testNow.Add(-time.Minute)
	_, err = h.db.Exec(`UPDATE goals SET due_at = $1 WHERE id = $2`, due, goalOfC)
	require.NoError(t, err)
	_, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: c, GoalID: &goalOfC})
	assert.ErrorIs(t, err, ErrGoalPastDue)
}

func TestPartnershipService_RequestNotifiesReceiver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.user(t, "alice")
	b := h.user(t, "bruno")
	_, err := h.notifications.SavePushSubscription(ctx, b, pushSub("https://push.example/b"))
	require.NoError(t, err)

	note := "want to pair on launch week?"
	res, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: a, ReceiverID: b, Message: &note})
	require.NoError(t, err)

	list, err := h.notifications.List(ctx, b, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationPartnerRequest, list[0].Type)
	assert.Equal(t, "alice wants to be your accountability partner", list[0].Message)
	require.NotNil(t, list[0].PartnershipID)
	assert.Equal(t, res.Partnership.ID, *list[0].PartnershipID)

	assert.Equal(t, 1, h.dispatcher.count())
	assert.Equal(t, "New partner request", h.dispatcher.delivered[0].Title)

	counts, err := h.notifications.UnreadCounts(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Notifications)
	assert.Equal(t, 1, counts.PendingRequests)

	assert.Equal(t, []events.Type{events.NotificationCreated, events.PartnershipRequested}, h.events.Types())
}

func TestPartnershipService_Classify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	me := h.user(t, "me_myself")
	active := h.user(t, "active_pal")
	incoming := h.user(t, "incoming_pal")
	outgoing := h.user(t, "outgoing_pal")

	h.activePartnership(t, me, active)
	_, err := h.partnerships.Create(ctx, PartnershipRequest{RequesterID: incoming, ReceiverID: me})
	require.NoError(t, err)
	_, err = h.partnerships.Create(ctx, PartnershipRequest{RequesterID: me, ReceiverID: outgoing})
	require.NoError(t, err)

	sets, err := h.partnerships.Classify(ctx, me)
	require.NoError(t, err)
	require.Len(t, sets.Active, 1)
	require.Len(t, sets.Incoming, 1)
	require.Len(t, sets.Outgoing, 1)
	assert.Equal(t, active, sets.Active[0].Other(me))
	assert.Equal(t, incoming, sets.Incoming[0].RequesterID)
	assert.Equal(t, outgoing, sets.Outgoing[0].ReceiverID)
}
