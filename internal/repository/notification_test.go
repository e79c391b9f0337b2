package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/testutil"
)

func TestNotificationRepository_PartnershipIDFromMetadata(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewNotificationRepository(conn)
	ctx := context.Background()
	a := testutil.CreateUser(t, conn, "alice")

	n := &model.Notification{
		UserID:    a,
		Title:     "Someone mailroomed you",
		Message:   "bob: hi",
		Type:      model.NotificationMessage,
		Metadata:  model.Metadata{"partnership_id": "p1", "partner_name": "bob"},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, repo.Create(ctx, n))

	got, err := repo.ByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PartnershipID)
	assert.Equal(t, "p1", *got.PartnershipID)
	assert.Equal(t, "bob", got.Metadata["partner_name"])

	marked, err := repo.MarkPartnershipRead(ctx, a, "p1", model.NotificationMessage, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	count, err := repo.CountUnread(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotificationRepository_ScopedToOwner(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := NewNotificationRepository(conn)
	ctx := context.Background()
	a := testutil.CreateUser(t, conn, "alice")
	b := testutil.CreateUser(t, conn, "bob")

	n := &model.Notification{UserID: a, Title: "t", Message: "m", Type: model.NotificationReminder,
		CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, repo.Create(ctx, n))

	assert.ErrorIs(t, repo.MarkRead(ctx, b, n.ID, testNow), ErrNotificationNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, b, n.ID), ErrNotificationNotFound)

	require.NoError(t, repo.MarkRead(ctx, a, n.ID, testNow))
	require.NoError(t, repo.Delete(ctx, a, n.ID))

	list, err := repo.ListByUser(ctx, a, 50)
	require.NoError(t, err)
	assert.Empty(t, list)
}
