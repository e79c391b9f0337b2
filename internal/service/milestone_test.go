package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
)

func TestMilestoneService_CreateAndToggle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bruno")
	id := h.activePartnership(t, a, b)

	target := "2025-07-01"
	m, err := h.milestones.Create(ctx, a, id, MilestoneInput{Title: "First paying customer", TargetDate: &target})
	require.NoError(t, err)
	assert.False(t, m.Completed)
	assert.Contains(t, h.events.Types(), events.MilestoneChanged)

	bad := "July 1st"
	_, err = h.milestones.Create(ctx, a, id, MilestoneInput{Title: "x", TargetDate: &bad})
	assert.ErrorIs(t, err, ErrInvalidTargetDate)

	m, err = h.milestones.Toggle(ctx, b, m.ID)
	require.NoError(t, err)
	assert.True(t, m.Completed)
	assert.NotNil(t, m.CompletedAt)

	m, err = h.milestones.Toggle(ctx, a, m.ID)
	require.NoError(t, err)
	assert.False(t, m.Completed)
	assert.Nil(t, m.CompletedAt)

	list, err := h.milestones.List(ctx, b, id)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	outsider := h.user(t, "oscar")
	_, err = h.milestones.Toggle(ctx, outsider, m.ID)
	assert.ErrorIs(t, err, model.ErrNotParticipant)

	notes, err := h.notifications.List(ctx, b, 0)
	require.NoError(t, err)
	types := []string{}
	for _, n := range notes {
		types = append(types, n.Type)
	}
	assert.Contains(t, types, model.NotificationMilestone)
}
