package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/validation"
)

type CreateOutcome string

const (
	OutcomeCreated        CreateOutcome = "created"
	OutcomeGoalFull       CreateOutcome = "goal_full"
	OutcomeAlreadyPending CreateOutcome = "already_pending"
	OutcomeAlreadyActive  CreateOutcome = "already_active"
)

var ErrPartnershipNotActive = errors.New("partnership is not active")

var (
	ErrSelfPartnership = &validation.Error{Field: "receiver_id", Message: "you cannot partner with yourself"}
	ErrGoalNotReceiver = &validation.Error{Field: "goal_id", Message: "goal does not belong to the receiver"}
	ErrGoalPastDue     = &validation.Error{Field: "goal_id", Message: "goal is past its due time"}
)

type PartnershipRequest struct {
	RequesterID string
	ReceiverID  string
	Message     *string
	GoalID      *string
}

// CreateResult is the outcome of a partnership request. Full goals and
// duplicates are outcomes, not errors.
type CreateResult struct {
	Outcome     CreateOutcome      `json:"outcome"`
	Partnership *model.Partnership `json:"partnership,omitempty"`
}

type PartnershipService struct {
	partnershipRepo     repository.PartnershipRepository
	goalRepo            repository.GoalRepository
	profileRepo         repository.ProfileRepository
	slotService         *SlotService
	notificationService *NotificationService
	clock               clock.Clock
	events              events.Publisher
}

func NewPartnershipService(
	partnershipRepo repository.PartnershipRepository,
	goalRepo repository.GoalRepository,
	profileRepo repository.ProfileRepository,
	slotService *SlotService,
	notificationService *NotificationService,
	clk clock.Clock,
	pub events.Publisher,
) *PartnershipService {
	return &PartnershipService{
		partnershipRepo:     partnershipRepo,
		goalRepo:            goalRepo,
		profileRepo:         profileRepo,
		slotService:         slotService,
		notificationService: notificationService,
		clock:               clk,
		events:              pub,
	}
}

// Create sends a partnership request. A goal-scoped request first reserves a
// slot on the goal; if the insert then fails the slot is given back. A
// requester who already holds a slot on the goal, for example from an ended
// partnership, reuses it instead of taking another.
func (s *PartnershipService) Create(ctx context.Context, req PartnershipRequest) (*CreateResult, error) {
	if req.RequesterID == req.ReceiverID {
		return nil, ErrSelfPartnership
	}

	message, err := validation.OptionalText("message", req.Message, validation.MaxLongTextLength)
	if err != nil {
		return nil, err
	}

	_, err = s.profileRepo.ByUserID(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	if req.GoalID != nil {
		goal, err := s.goalRepo.ByID(ctx, *req.GoalID)
		if err != nil {
			return nil, err
		}
		if goal.UserID != req.ReceiverID {
			return nil, ErrGoalNotReceiver
		}
		if goal.IsPastDue(s.clock.Now()) {
			return nil, ErrGoalPastDue
		}
	}

	result, err := s.existing(ctx, req.RequesterID, req.ReceiverID)
	if err != nil || result != nil {
		return result, err
	}

	now := s.clock.Now()
	p := &model.Partnership{
		RequesterID: req.RequesterID,
		ReceiverID:  req.ReceiverID,
		Message:     message,
		GoalID:      req.GoalID,
		Status:      model.PartnershipPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var reservation *model.SlotReservation
	if req.GoalID != nil {
		var ok bool
		reservation, ok, err = s.slotService.Reserve(ctx, *req.GoalID, req.RequesterID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve slot: %w", err)
		}
		if !ok {
			return &CreateResult{Outcome: OutcomeGoalFull}, nil
		}
		p.ReservationID = &reservation.ID
	}

	err = s.partnershipRepo.Create(ctx, p)
	if err != nil {
		if reservation != nil && !reservation.Reused {
			s.compensate(ctx, reservation)
		}
		if errors.Is(err, repository.ErrDuplicatePartnership) {
			result, lookupErr := s.existing(ctx, req.RequesterID, req.ReceiverID)
			if lookupErr == nil && result != nil {
				return result, nil
			}
		}
		return nil, fmt.Errorf("failed to create partnership: %w", err)
	}

	slog.Info("partnership requested", "partnership_id", p.ID, "requester_id", p.RequesterID, "receiver_id", p.ReceiverID)

	requester := s.displayName(ctx, p.RequesterID)
	_, err = s.notificationService.Notify(ctx, Notice{
		UserID:        p.ReceiverID,
		Type:          model.NotificationPartnerRequest,
		Title:         "New partner request",
		Message:       requester + " wants to be your accountability partner",
		PartnershipID: p.ID,
		Metadata:      model.Metadata{"requester_id": p.RequesterID, "requester_name": requester},
		ActorName:     requester,
		Note:          p.Message,
	})
	if err != nil {
		slog.Error("failed to notify partner request", "error", err, "partnership_id", p.ID)
	}

	s.publish(ctx, events.PartnershipRequested, p)
	return &CreateResult{Outcome: OutcomeCreated, Partnership: p}, nil
}

// existing reports an open partnership between the two users as a duplicate
// outcome, or nil when there is none.
func (s *PartnershipService) existing(ctx context.Context, a, b string) (*CreateResult, error) {
	open, err := s.partnershipRepo.OpenBetween(ctx, a, b)
	if errors.Is(err, repository.ErrPartnershipNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check existing partnership: %w", err)
	}

	if open.Status == model.PartnershipActive {
		return &CreateResult{Outcome: OutcomeAlreadyActive, Partnership: open}, nil
	}
	return &CreateResult{Outcome: OutcomeAlreadyPending, Partnership: open}, nil
}

func (s *PartnershipService) compensate(ctx context.Context, reservation *model.SlotReservation) {
	err := s.slotService.Release(ctx, reservation.ID)
	if err != nil {
		// The counter stays one too high until the reconcile job runs.
		slog.Error("failed to release slot after partnership insert failed",
			"error", err, "reservation_id", reservation.ID, "goal_id", reservation.GoalID)
		return
	}
	slog.Info("released slot after partnership insert failed", "reservation_id", reservation.ID, "goal_id", reservation.GoalID)
}

// Accept activates a pending request. Accepting an active partnership
// returns it unchanged.
func (s *PartnershipService) Accept(ctx context.Context, id, actorID string) (*model.Partnership, error) {
	p, err := s.partnershipRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PartnershipActive && p.Involves(actorID) {
		if actorID != p.ReceiverID {
			return nil, model.ErrNotReceiver
		}
		return p, nil
	}

	p, err = s.respond(ctx, p, actorID, model.PartnershipActive)
	if err != nil {
		return nil, err
	}

	receiver := s.displayName(ctx, p.ReceiverID)
	_, err = s.notificationService.Notify(ctx, Notice{
		UserID:        p.RequesterID,
		Type:          model.NotificationPartnerAccepted,
		Title:         "Partner request accepted",
		Message:       receiver + " accepted your partner request",
		PartnershipID: p.ID,
		Metadata:      model.Metadata{"partner_name": receiver},
		ActorName:     receiver,
	})
	if err != nil {
		slog.Error("failed to notify partner accepted", "error", err, "partnership_id", p.ID)
	}

	s.publish(ctx, events.PartnershipAccepted, p)
	return p, nil
}

// Decline rejects a pending request and frees the goal slot it held.
func (s *PartnershipService) Decline(ctx context.Context, id, actorID string) (*model.Partnership, error) {
	p, err := s.partnershipRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err = s.respond(ctx, p, actorID, model.PartnershipDeclined)
	if err != nil {
		return nil, err
	}

	if p.ReservationID != nil {
		err = s.slotService.Release(ctx, *p.ReservationID)
		if err != nil {
			slog.Error("failed to release slot for declined partnership", "error", err, "partnership_id", p.ID)
		}
	}

	receiver := s.displayName(ctx, p.ReceiverID)
	_, err = s.notificationService.Notify(ctx, Notice{
		UserID:        p.RequesterID,
		Type:          model.NotificationPartnerDeclined,
		Title:         "Partner request declined",
		Message:       receiver + " declined your partner request",
		PartnershipID: p.ID,
	})
	if err != nil {
		slog.Error("failed to notify partner declined", "error", err, "partnership_id", p.ID)
	}

	s.publish(ctx, events.PartnershipDeclined, p)
	return p, nil
}

func (s *PartnershipService) respond(ctx context.Context, p *model.Partnership, actorID string, next model.PartnershipStatus) (*model.Partnership, error) {
	err := p.CanTransition(actorID, next)
	if err != nil {
		return nil, err
	}

	ok, err := s.partnershipRepo.Respond(ctx, p.ID, actorID, next, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update partnership: %w", err)
	}
	if !ok {
		// Someone else moved it first.
		return nil, model.ErrInvalidTransition
	}

	return s.partnershipRepo.ByID(ctx, p.ID)
}

// End closes an active partnership. Either participant may end it. The
// goal slot stays taken.
func (s *PartnershipService) End(ctx context.Context, id, actorID string) (*model.Partnership, error) {
	p, err := s.partnershipRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = p.CanTransition(actorID, model.PartnershipEnded)
	if err != nil {
		return nil, err
	}

	ok, err := s.partnershipRepo.End(ctx, id, actorID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to end partnership: %w", err)
	}
	if !ok {
		return nil, model.ErrInvalidTransition
	}

	p, err = s.partnershipRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor := s.displayName(ctx, actorID)
	_, err = s.notificationService.Notify(ctx, Notice{
		UserID:        p.Other(actorID),
		Type:          model.NotificationPartnerEnded,
		Title:         "Partnership ended",
		Message:       actor + " ended your partnership",
		PartnershipID: p.ID,
	})
	if err != nil {
		slog.Error("failed to notify partnership ended", "error", err, "partnership_id", p.ID)
	}

	s.publish(ctx, events.PartnershipEnded, p)
	return p, nil
}

// Get returns a partnership the user takes part in.
func (s *PartnershipService) Get(ctx context.Context, id, userID string) (*model.Partnership, error) {
	p, err := s.partnershipRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Involves(userID) {
		return nil, model.ErrNotParticipant
	}
	return p, nil
}

// Active returns the partnership only when it is active and userID is in it.
func (s *PartnershipService) Active(ctx context.Context, id, userID string) (*model.Partnership, error) {
	p, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PartnershipActive {
		return nil, ErrPartnershipNotActive
	}
	return p, nil
}

func (s *PartnershipService) Classify(ctx context.Context, userID string) (model.PartnershipSets, error) {
	partnerships, err := s.partnershipRepo.ForUser(ctx, userID)
	if err != nil {
		return model.PartnershipSets{}, fmt.Errorf("failed to list partnerships: %w", err)
	}
	return model.Classify(userID, partnerships), nil
}

func (s *PartnershipService) displayName(ctx context.Context, userID string) string {
	profile, err := s.profileRepo.ByUserID(ctx, userID)
	if err != nil {
		return "Someone"
	}
	return profile.Username
}

func (s *PartnershipService) publish(ctx context.Context, t events.Type, p *model.Partnership) {
	s.events.Publish(ctx, events.Event{
		Type:    t,
		UserIDs: []string{p.RequesterID, p.ReceiverID},
		Payload: p,
	})
}
