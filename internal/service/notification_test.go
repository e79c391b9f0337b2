package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/repository"
)

func TestNotificationService_NotifyFansOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "reader")

	_, err := h.notifications.SavePushSubscription(ctx, me, pushSub("https://push.example/me"))
	require.NoError(t, err)

	n, err := h.notifications.Notify(ctx, Notice{
		UserID:        me,
		Type:          model.NotificationMilestone,
		Title:         "New shared milestone",
		Message:       "Launch on Product Hunt",
		PartnershipID: "p-1",
	})
	require.NoError(t, err)
	require.NotNil(t, n.PartnershipID)
	assert.Equal(t, "p-1", *n.PartnershipID)

	require.Equal(t, 1, h.dispatcher.count())
	sent := h.dispatcher.delivered[0]
	assert.Equal(t, "https://push.example/me", sent.Subscription.Endpoint)
	assert.Equal(t, "Launch on Product Hunt", sent.Body)
	assert.Equal(t, map[string]string{
		"url":             "/dashboard",
		"type":            model.NotificationMilestone,
		"notification_id": n.ID,
		"partnership_id":  "p-1",
	}, sent.Data)

	recorded := h.events.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.NotificationCreated, recorded[0].Type)
	assert.Equal(t, []string{me}, recorded[0].UserIDs)
}

func TestNotificationService_PushFailureIsNotAnError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "reader")

	_, err := h.notifications.SavePushSubscription(ctx, me, pushSub("https://push.example/gone"))
	require.NoError(t, err)
	h.dispatcher.err = &push.ProviderError{StatusCode: 410, Endpoint: "https://push.example/gone"}

	_, err = h.notifications.Notify(ctx, Notice{UserID: me, Type: model.NotificationReminder, Title: "Time to check in"})
	require.NoError(t, err)

	list, err := h.notifications.List(ctx, me, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotificationService_NoSubscriptionSkipsPush(t *testing.T) {
	h := newHarness(t)
	me := h.user(t, "reader")

	_, err := h.notifications.Notify(context.Background(), Notice{UserID: me, Type: model.NotificationReminder, Title: "hi"})
	require.NoError(t, err)
	assert.Zero(t, h.dispatcher.count())
}

func TestNotificationService_ReadAndDismiss(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "reader")
	other := h.user(t, "other")

	first, err := h.notifications.Notify(ctx, Notice{UserID: me, Type: model.NotificationReminder, Title: "one"})
	require.NoError(t, err)
	_, err = h.notifications.Notify(ctx, Notice{UserID: me, Type: model.NotificationReminder, Title: "two"})
	require.NoError(t, err)

	counts, err := h.notifications.UnreadCounts(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Notifications)

	require.NoError(t, h.notifications.MarkRead(ctx, me, first.ID))
	assert.ErrorIs(t, h.notifications.MarkRead(ctx, other, first.ID), repository.ErrNotificationNotFound)

	counts, err = h.notifications.UnreadCounts(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Notifications)

	updated, err := h.notifications.MarkAllRead(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	require.NoError(t, h.notifications.Dismiss(ctx, me, first.ID))
	list, err := h.notifications.List(ctx, me, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two", list[0].Title)
}

func TestNotificationService_PushSubscriptionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	me := h.user(t, "reader")

	_, err := h.notifications.SavePushSubscription(ctx, me, push.Subscription{Endpoint: "https://push.example/x"})
	assert.ErrorIs(t, err, push.ErrMissingFields)

	_, err = h.notifications.SavePushSubscription(ctx, me, pushSub("https://push.example/old"))
	require.NoError(t, err)
	_, err = h.notifications.SavePushSubscription(ctx, me, pushSub("https://push.example/new"))
	require.NoError(t, err)

	stored, err := h.pushRepo.ByUserID(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/new", stored.Endpoint)

	require.NoError(t, h.notifications.DeletePushSubscription(ctx, me))
	_, err = h.pushRepo.ByUserID(ctx, me)
	assert.ErrorIs(t, err, repository.ErrPushSubscriptionNotFound)
}

func TestMessageNotice(t *testing.T) {
	n := MessageNotice("u-2", "alice", "p-9", strings.Repeat("é", 200))

	assert.Equal(t, "Someone mailroomed you", n.Title)
	assert.Equal(t, model.NotificationMessage, n.Type)
	assert.Equal(t, "alice: "+strings.Repeat("é", 140), n.Message)
	assert.Equal(t, "p-9", n.PartnershipID)
	assert.Equal(t, "alice", n.Metadata["partner_name"])

	short := MessageNotice("u-2", "alice", "p-9", "see you at 9")
	assert.Equal(t, "alice: see you at 9", short.Message)
}
