package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
)

// SlotService hands out join slots on goals. The counter only moves through
// the repository's conditional update, and every occupied slot has a ledger
// row that can be released exactly once.
type SlotService struct {
	goalRepo repository.GoalRepository
	clock    clock.Clock
	events   events.Publisher
	ttl      time.Duration
}

func NewSlotService(goalRepo repository.GoalRepository, clk clock.Clock, pub events.Publisher, ttl time.Duration) *SlotService {
	return &SlotService{
		goalRepo: goalRepo,
		clock:    clk,
		events:   pub,
		ttl:      ttl,
	}
}

// Reserve takes one slot on goalID for holderID, or returns the slot the
// holder already has there. A full goal returns (nil, false, nil).
func (s *SlotService) Reserve(ctx context.Context, goalID, holderID string) (*model.SlotReservation, bool, error) {
	reservation, ok, err := s.goalRepo.ReserveSlot(ctx, goalID, holderID, s.clock.Now(), s.ttl)
	if err != nil {
		return nil, false, err
	}

	if !ok {
		slog.Info("slot reservation rejected, goal full", "goal_id", goalID, "holder_id", holderID)
		s.events.Publish(ctx, events.Event{
			Type:    events.SlotFull,
			UserIDs: []string{holderID},
			Payload: map[string]string{"goal_id": goalID},
		})
		return nil, false, nil
	}

	if reservation.Reused {
		return reservation, true, nil
	}

	s.events.Publish(ctx, events.Event{
		Type:    events.SlotReserved,
		Payload: map[string]string{"goal_id": goalID},
	})
	return reservation, true, nil
}

// Release frees the slot held by reservationID. Releasing twice is a no-op.
func (s *SlotService) Release(ctx context.Context, reservationID string) error {
	reservation, err := s.goalRepo.Reservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil
		}
		return err
	}

	released, err := s.goalRepo.ReleaseSlot(ctx, reservationID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	if !released {
		return nil
	}

	s.events.Publish(ctx, events.Event{
		Type:    events.SlotReleased,
		Payload: map[string]string{"goal_id": reservation.GoalID},
	})
	return nil
}

func (s *SlotService) Availability(goal *model.Goal) model.SlotAvailability {
	return goal.Slots()
}

// SweepExpired releases reservations past their TTL that never turned into
// a partnership.
func (s *SlotService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.goalRepo.ExpiredReservations(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	released := 0
	for _, r := range expired {
		err = s.Release(ctx, r.ID)
		if err != nil {
			slog.Error("failed to release expired reservation", "error", err, "reservation_id", r.ID, "goal_id", r.GoalID)
			continue
		}
		released++
	}

	if released > 0 {
		slog.Info("released expired slot reservations", "count", released)
	}
	return released, nil
}

// Reconcile resets every goal's counter to its ledger row count.
func (s *SlotService) Reconcile(ctx context.Context) (int64, error) {
	fixed, err := s.goalRepo.ReconcileSlots(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile slots: %w", err)
	}
	if fixed > 0 {
		slog.Warn("slot counters reconciled", "goals", fixed)
	}
	return fixed, nil
}
