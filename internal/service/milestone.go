package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/validation"
)

var ErrInvalidTargetDate = &validation.Error{Field: "target_date", Message: "target date must be YYYY-MM-DD"}

type MilestoneInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	TargetDate  *string `json:"target_date"`
}

type MilestoneService struct {
	milestoneRepo       repository.MilestoneRepository
	partnershipService  *PartnershipService
	notificationService *NotificationService
	clock               clock.Clock
	events              events.Publisher
}

func NewMilestoneService(
	milestoneRepo repository.MilestoneRepository,
	partnershipService *PartnershipService,
	notificationService *NotificationService,
	clk clock.Clock,
	pub events.Publisher,
) *MilestoneService {
	return &MilestoneService{
		milestoneRepo:       milestoneRepo,
		partnershipService:  partnershipService,
		notificationService: notificationService,
		clock:               clk,
		events:              pub,
	}
}

func (s *MilestoneService) Create(ctx context.Context, userID, partnershipID string, in MilestoneInput) (*model.SharedMilestone, error) {
	p, err := s.partnershipService.Active(ctx, partnershipID, userID)
	if err != nil {
		return nil, err
	}

	title, err := validation.RequiredText("title", in.Title, validation.MaxMilestoneTitle)
	if err != nil {
		return nil, err
	}
	description, err := validation.OptionalText("description", in.Description, validation.MaxLongTextLength)
	if err != nil {
		return nil, err
	}
	if in.TargetDate != nil && *in.TargetDate != "" {
		_, err = time.Parse(clock.DateLayout, *in.TargetDate)
		if err != nil {
			return nil, ErrInvalidTargetDate
		}
	} else {
		in.TargetDate = nil
	}

	now := s.clock.Now()
	m := &model.SharedMilestone{
		PartnershipID: p.ID,
		CreatedBy:     userID,
		Title:         title,
		Description:   description,
		TargetDate:    in.TargetDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.milestoneRepo.Create(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone: %w", err)
	}

	s.publish(ctx, p, m)

	_, err = s.notificationService.Notify(ctx, Notice{
		UserID:        p.Other(userID),
		Type:          model.NotificationMilestone,
		Title:         "New shared milestone",
		Message:       title,
		PartnershipID: p.ID,
		Metadata:      model.Metadata{"milestone_id": m.ID},
	})
	if err != nil {
		slog.Error("failed to notify milestone", "error", err, "milestone_id", m.ID)
	}

	return m, nil
}

func (s *MilestoneService) List(ctx context.Context, userID, partnershipID string) ([]*model.SharedMilestone, error) {
	_, err := s.partnershipService.Get(ctx, partnershipID, userID)
	if err != nil {
		return nil, err
	}
	return s.milestoneRepo.ListByPartnership(ctx, partnershipID)
}

// Toggle flips a milestone's completion.
func (s *MilestoneService) Toggle(ctx context.Context, userID, milestoneID string) (*model.SharedMilestone, error) {
	m, err := s.milestoneRepo.ByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	p, err := s.partnershipService.Active(ctx, m.PartnershipID, userID)
	if err != nil {
		return nil, err
	}

	m, err = s.milestoneRepo.SetCompleted(ctx, m.ID, !m.Completed, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update milestone: %w", err)
	}

	s.publish(ctx, p, m)
	return m, nil
}

func (s *MilestoneService) publish(ctx context.Context, p *model.Partnership, m *model.SharedMilestone) {
	s.events.Publish(ctx, events.Event{
		Type:    events.MilestoneChanged,
		UserIDs: []string{p.RequesterID, p.ReceiverID},
		Payload: m,
	})
}
