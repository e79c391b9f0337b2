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

const DefaultThreadLimit = 100

type MessageService struct {
	messageRepo         repository.MessageRepository
	profileRepo         repository.ProfileRepository
	partnershipService  *PartnershipService
	notificationService *NotificationService
	fileService         *FileService
	clock               clock.Clock
	events              events.Publisher
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	profileRepo repository.ProfileRepository,
	partnershipService *PartnershipService,
	notificationService *NotificationService,
	fileService *FileService,
	clk clock.Clock,
	pub events.Publisher,
) *MessageService {
	return &MessageService{
		messageRepo:         messageRepo,
		profileRepo:         profileRepo,
		partnershipService:  partnershipService,
		notificationService: notificationService,
		fileService:         fileService,
		clock:               clk,
		events:              pub,
	}
}

// Send posts a chat message. Chat is only open on active partnerships.
func (s *MessageService) Send(ctx context.Context, senderID, partnershipID, content string) (*model.Message, error) {
	p, err := s.partnershipService.Active(ctx, partnershipID, senderID)
	if err != nil {
		return nil, err
	}

	content, err = validation.RequiredText("content", content, validation.MaxMessageLength)
	if err != nil {
		return nil, err
	}

	m := &model.Message{
		PartnershipID: p.ID,
		SenderID:      senderID,
		Content:       content,
		CreatedAt:     s.clock.Now(),
	}
	err = s.messageRepo.Create(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	recipientID := p.Other(senderID)
	s.events.Publish(ctx, events.Event{
		Type:    events.MessageSent,
		UserIDs: []string{senderID, recipientID},
		Payload: m,
	})

	senderName := "Someone"
	profile, err := s.profileRepo.ByUserID(ctx, senderID)
	if err == nil {
		senderName = profile.Username
	}

	_, err = s.notificationService.Notify(ctx, MessageNotice(recipientID, senderName, p.ID, content))
	if err != nil {
		slog.Error("failed to notify message recipient", "error", err, "partnership_id", p.ID)
	}

	return m, nil
}

// Thread returns the latest messages of a partnership, oldest first. Ended
// partnerships stay readable.
func (s *MessageService) Thread(ctx context.Context, userID, partnershipID string, limit int) ([]*model.Message, error) {
	_, err := s.partnershipService.Get(ctx, partnershipID, userID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > DefaultThreadLimit {
		limit = DefaultThreadLimit
	}
	return s.messageRepo.Thread(ctx, partnershipID, limit)
}

// MarkThreadRead marks the partner's messages and the matching message
// notifications as read.
func (s *MessageService) MarkThreadRead(ctx context.Context, userID, partnershipID string) error {
	_, err := s.partnershipService.Get(ctx, partnershipID, userID)
	if err != nil {
		return err
	}

	_, err = s.messageRepo.MarkRead(ctx, partnershipID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}

	_, err = s.notificationService.MarkPartnershipRead(ctx, userID, partnershipID, model.NotificationMessage)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

// Conversations lists the user's active partnerships with the partner's
// profile, the last message and the unread count.
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	sets, err := s.partnershipService.Classify(ctx, userID)
	if err != nil {
		return nil, err
	}

	conversations := make([]*model.Conversation, 0, len(sets.Active))
	for _, p := range sets.Active {
		c := &model.Conversation{Partnership: p}

		partner, err := s.profileRepo.ByUserID(ctx, p.Other(userID))
		if err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
			return nil, err
		}
		if partner != nil && partner.AvatarPath != nil && s.fileService != nil {
			partner.AvatarURL = s.fileService.URL(ctx, *partner.AvatarPath, true)
		}
		c.Partner = partner

		last, err := s.messageRepo.Last(ctx, p.ID)
		if err != nil && !errors.Is(err, repository.ErrMessageNotFound) {
			return nil, err
		}
		c.LastMessage = last

		c.UnreadCount, err = s.messageRepo.CountUnreadInThread(ctx, p.ID, userID)
		if err != nil {
			return nil, err
		}

		conversations = append(conversations, c)
	}

	return conversations, nil
}
