package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/repository"
)

const (
	DefaultNotificationLimit = 50
	previewLength            = 140
	dashboardURL             = "/dashboard"
)

// Notice describes one notification before it is stored.
type Notice struct {
	UserID        string
	Type          string
	Title         string
	Message       string
	PartnershipID string
	Metadata      model.Metadata

	// ActorName and Note fill the email sent for request/accept notices.
	ActorName string
	Note      *string
}

type NotificationService struct {
	notificationRepo repository.NotificationRepository
	messageRepo      repository.MessageRepository
	partnershipRepo  repository.PartnershipRepository
	pushRepo         repository.PushSubscriptionRepository
	userRepo         repository.UserRepository
	emailService     *EmailService
	dispatcher       push.Dispatcher
	clock            clock.Clock
	events           events.Publisher
}

// NewNotificationService wires the fan-out. A nil dispatcher disables push.
func NewNotificationService(
	notificationRepo repository.NotificationRepository,
	messageRepo repository.MessageRepository,
	partnershipRepo repository.PartnershipRepository,
	pushRepo repository.PushSubscriptionRepository,
	userRepo repository.UserRepository,
	emailService *EmailService,
	dispatcher push.Dispatcher,
	clk clock.Clock,
	pub events.Publisher,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		messageRepo:      messageRepo,
		partnershipRepo:  partnershipRepo,
		pushRepo:         pushRepo,
		userRepo:         userRepo,
		emailService:     emailService,
		dispatcher:       dispatcher,
		clock:            clk,
		events:           pub,
	}
}

// Notify stores the notification and fans it out. Only the insert can fail
// the call; push and email are best effort.
func (s *NotificationService) Notify(ctx context.Context, notice Notice) (*model.Notification, error) {
	now := s.clock.Now()
	n := &model.Notification{
		UserID:    notice.UserID,
		Title:     notice.Title,
		Message:   notice.Message,
		Type:      notice.Type,
		Metadata:  notice.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if notice.PartnershipID != "" {
		if n.Metadata == nil {
			n.Metadata = model.Metadata{}
		}
		n.Metadata["partnership_id"] = notice.PartnershipID
	}

	err := s.notificationRepo.Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.events.Publish(ctx, events.Event{
		Type:    events.NotificationCreated,
		UserIDs: []string{n.UserID},
		Payload: n,
	})

	s.push(ctx, n)
	s.email(ctx, notice)

	return n, nil
}

func (s *NotificationService) push(ctx context.Context, n *model.Notification) {
	if s.dispatcher == nil {
		return
	}

	sub, err := s.pushRepo.ByUserID(ctx, n.UserID)
	if errors.Is(err, repository.ErrPushSubscriptionNotFound) {
		return
	}
	if err != nil {
		slog.Warn("failed to load push subscription", "error", err, "user_id", n.UserID)
		return
	}

	data := map[string]string{"url": dashboardURL, "type": n.Type, "notification_id": n.ID}
	if n.PartnershipID != nil {
		data["partnership_id"] = *n.PartnershipID
	}

	err = s.dispatcher.Deliver(ctx, &push.Notification{
		Subscription: &push.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     push.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		},
		Title: n.Title,
		Body:  n.Message,
		Data:  data,
	})
	if err != nil {
		slog.Warn("push delivery failed", "error", err, "user_id", n.UserID, "type", n.Type)
	}
}

func (s *NotificationService) email(ctx context.Context, notice Notice) {
	if s.emailService == nil {
		return
	}
	if notice.Type != model.NotificationPartnerRequest && notice.Type != model.NotificationPartnerAccepted {
		return
	}

	user, err := s.userRepo.ByID(ctx, notice.UserID)
	if err != nil {
		slog.Warn("failed to load notification recipient", "error", err, "user_id", notice.UserID)
		return
	}

	if notice.Type == model.NotificationPartnerRequest {
		err = s.emailService.SendPartnerRequestEmail(ctx, user.Email, notice.ActorName, notice.Note)
	} else {
		err = s.emailService.SendPartnerAcceptedEmail(ctx, user.Email, notice.ActorName)
	}
	if err != nil {
		slog.Warn("notification email failed", "error", err, "user_id", notice.UserID, "type", notice.Type)
	}
}

func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > DefaultNotificationLimit {
		limit = DefaultNotificationLimit
	}
	return s.notificationRepo.ListByUser(ctx, userID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.notificationRepo.MarkRead(ctx, userID, id, s.clock.Now())
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.notificationRepo.MarkAllRead(ctx, userID, s.clock.Now())
}

// MarkPartnershipRead clears the notifications of one type for a thread.
func (s *NotificationService) MarkPartnershipRead(ctx context.Context, userID, partnershipID, notificationType string) (int64, error) {
	return s.notificationRepo.MarkPartnershipRead(ctx, userID, partnershipID, notificationType, s.clock.Now())
}

func (s *NotificationService) Dismiss(ctx context.Context, userID, id string) error {
	return s.notificationRepo.Delete(ctx, userID, id)
}

func (s *NotificationService) UnreadCounts(ctx context.Context, userID string) (*model.UnreadCounts, error) {
	notifications, err := s.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	messages, err := s.messageRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	pending, err := s.partnershipRepo.CountIncomingPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	return &model.UnreadCounts{
		Notifications:   notifications,
		Messages:        messages,
		PendingRequests: pending,
	}, nil
}

// SavePushSubscription registers the browser endpoint, replacing any
// previous one for the user.
func (s *NotificationService) SavePushSubscription(ctx context.Context, userID string, sub push.Subscription) (*model.PushSubscription, error) {
	if strings.TrimSpace(sub.Endpoint) == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, push.ErrMissingFields
	}

	now := s.clock.Now()
	ps := &model.PushSubscription{
		UserID:    userID,
		Endpoint:  sub.Endpoint,
		P256dh:    sub.Keys.P256dh,
		Auth:      sub.Keys.Auth,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.pushRepo.Upsert(ctx, ps)
	if err != nil {
		return nil, fmt.Errorf("failed to save push subscription: %w", err)
	}

	slog.Info("push subscription saved", "user_id", userID)
	return ps, nil
}

func (s *NotificationService) DeletePushSubscription(ctx context.Context, userID string) error {
	return s.pushRepo.DeleteByUserID(ctx, userID)
}

func (s *NotificationService) PushEnabled() bool {
	return s.dispatcher != nil
}

// MessageNotice is the "mailroom" notification for a new chat message.
func MessageNotice(recipientID, senderName, partnershipID, content string) Notice {
	return Notice{
		UserID:        recipientID,
		Type:          model.NotificationMessage,
		Title:         "Someone mailroomed you",
		Message:       senderName + ": " + preview(content),
		PartnershipID: partnershipID,
		Metadata:      model.Metadata{"partner_name": senderName},
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	return string([]rune(s)[:previewLength])
}
