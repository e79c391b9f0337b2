package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/validation"
)

const (
	maxSessionMinutes = 240
	meetingBaseURL    = "https://meet.jit.si/"
)

var (
	ErrSessionInPast   = &validation.Error{Field: "scheduled_at", Message: "session must be scheduled in the future"}
	ErrSessionDuration = &validation.Error{Field: "duration_minutes", Message: "duration must be between 1 and 240 minutes"}
	ErrMeetingURL      = &validation.Error{Field: "meeting_url", Message: "meeting url must be an http(s) link"}
)

type SessionInput struct {
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes *int      `json:"duration_minutes"`
	MeetingURL      *string   `json:"meeting_url"`
}

type SessionService struct {
	sessionRepo         repository.VideoSessionRepository
	partnershipRepo     repository.PartnershipRepository
	partnershipService  *PartnershipService
	notificationService *NotificationService
	clock               clock.Clock
	events              events.Publisher
	reminderWindow      time.Duration
}

func NewSessionService(
	sessionRepo repository.VideoSessionRepository,
	partnershipRepo repository.PartnershipRepository,
	partnershipService *PartnershipService,
	notificationService *NotificationService,
	clk clock.Clock,
	pub events.Publisher,
	reminderWindow time.Duration,
) *SessionService {
	if reminderWindow <= 0 {
		reminderWindow = 15 * time.Minute
	}
	return &SessionService{
		sessionRepo:         sessionRepo,
		partnershipRepo:     partnershipRepo,
		partnershipService:  partnershipService,
		notificationService: notificationService,
		clock:               clk,
		events:              pub,
		reminderWindow:      reminderWindow,
	}
}

// Schedule books a video check-in on an active partnership. Without a
// meeting URL a fresh room link is generated.
func (s *SessionService) Schedule(ctx context.Context, userID, partnershipID string, in SessionInput) (*model.VideoSession, error) {
	p, err := s.partnershipService.Active(ctx, partnershipID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !in.ScheduledAt.After(now) {
		return nil, ErrSessionInPast
	}

	duration := model.DefaultSessionMinutes
	if in.DurationMinutes != nil {
		duration = *in.DurationMinutes
	}
	if duration < 1 || duration > maxSessionMinutes {
		return nil, ErrSessionDuration
	}

	meetingURL, err := normalizeMeetingURL(in.MeetingURL)
	if err != nil {
		return nil, err
	}

	v := &model.VideoSession{
		PartnershipID:   p.ID,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: duration,
		MeetingURL:      &meetingURL,
		CreatedAt:       now,
	}
	err = s.sessionRepo.Create(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule session: %w", err)
	}

	s.events.Publish(ctx, events.Event{
		Type:    events.SessionScheduled,
		UserIDs: []string{p.RequesterID, p.ReceiverID},
		Payload: v,
	})

	_, err = s.notificationService.Notify(ctx, Notice{
		UserID:        p.Other(userID),
		Type:          model.NotificationVideoSession,
		Title:         "Video check-in scheduled",
		Message:       "Starts " + v.ScheduledAt.In(s.clock.Location()).Format("Mon Jan 2 15:04"),
		PartnershipID: p.ID,
		Metadata:      model.Metadata{"session_id": v.ID, "meeting_url": meetingURL},
	})
	if err != nil {
		slog.Error("failed to notify scheduled session", "error", err, "session_id", v.ID)
	}

	return v, nil
}

func normalizeMeetingURL(raw *string) (string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return meetingBaseURL + "accountable-" + uuid.New().String(), nil
	}

	u, err := url.Parse(strings.TrimSpace(*raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrMeetingURL
	}
	return u.String(), nil
}

func (s *SessionService) Upcoming(ctx context.Context, userID string) ([]*model.VideoSession, error) {
	return s.sessionRepo.Upcoming(ctx, userID, s.clock.Now())
}

func (s *SessionService) List(ctx context.Context, userID, partnershipID string) ([]*model.VideoSession, error) {
	_, err := s.partnershipService.Get(ctx, partnershipID, userID)
	if err != nil {
		return nil, err
	}
	return s.sessionRepo.ListByPartnership(ctx, partnershipID)
}

func (s *SessionService) Complete(ctx context.Context, userID, sessionID string, notes *string) (*model.VideoSession, error) {
	v, err := s.sessionRepo.ByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	_, err = s.partnershipService.Get(ctx, v.PartnershipID, userID)
	if err != nil {
		return nil, err
	}

	notes, err = validation.OptionalText("notes", notes, validation.MaxLongTextLength)
	if err != nil {
		return nil, err
	}

	return s.sessionRepo.Complete(ctx, sessionID, notes)
}

// SendReminders notifies both partners of sessions starting within the
// reminder window. Each session is reminded at most once.
func (s *SessionService) SendReminders(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.sessionRepo.DueForReminder(ctx, now, now.Add(s.reminderWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to list due sessions: %w", err)
	}

	sent := 0
	for _, v := range due {
		claimed, err := s.sessionRepo.MarkReminded(ctx, v.ID, now)
		if err != nil {
			slog.Error("failed to claim session reminder", "error", err, "session_id", v.ID)
			continue
		}
		if !claimed {
			continue
		}

		p, err := s.partnershipRepo.ByID(ctx, v.PartnershipID)
		if err != nil {
			slog.Error("failed to load partnership for reminder", "error", err, "session_id", v.ID)
			continue
		}
		if p.Status != model.PartnershipActive {
			continue
		}

		minutes := int(v.ScheduledAt.Sub(now).Round(time.Minute).Minutes())
		for _, userID := range []string{p.RequesterID, p.ReceiverID} {
			_, err = s.notificationService.Notify(ctx, Notice{
				UserID:        userID,
				Type:          model.NotificationReminder,
				Title:         "Video check-in starting soon",
				Message:       fmt.Sprintf("Your session starts in %d minutes", minutes),
				PartnershipID: p.ID,
				Metadata:      model.Metadata{"session_id": v.ID},
			})
			if err != nil {
				slog.Error("failed to send session reminder", "error", err, "session_id", v.ID, "user_id", userID)
			}
		}
		sent++
	}

	return sent, nil
}
