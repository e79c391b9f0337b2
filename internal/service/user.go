package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
)

type UserService struct {
	userRepository    repository.UserRepository
	profileRepository repository.ProfileRepository
	fileService       *FileService
	emailService      *EmailService
	slotService       *SlotService
}

func NewUserService(
	userRepository repository.UserRepository,
	profileRepository repository.ProfileRepository,
	fileService *FileService,
	emailService *EmailService,
	slotService *SlotService,
) *UserService {
	return &UserService{
		userRepository:    userRepository,
		profileRepository: profileRepository,
		fileService:       fileService,
		emailService:      emailService,
		slotService:       slotService,
	}
}

func (s *UserService) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.userRepository.ByID(ctx, id)
}

// DeleteAccount removes the user and everything they own. Slots the user
// held on other people's goals are handed back by reconciling the counters
// after the cascade removed the reservations.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.userRepository.ByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	username := ""
	profile, err := s.profileRepository.ByUserID(ctx, userID)
	if err != nil {
		slog.Warn("failed to get profile for deletion email", "user_id", userID, "error", err)
	} else {
		username = profile.Username
	}

	err = s.fileService.DeleteAllUserFilesFromStorage(ctx, userID)
	if err != nil {
		// Orphaned objects are better than a failed deletion.
		slog.Warn("failed to delete user files from storage", "user_id", userID, "error", err)
	}

	// Cascades to profiles, tokens, files, goals, reservations,
	// partnerships and everything hanging off them.
	err = s.userRepository.Delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	_, err = s.slotService.Reconcile(ctx)
	if err != nil {
		slog.Error("failed to reconcile slots after account deletion", "user_id", userID, "error", err)
	}

	err = s.emailService.SendAccountDeletedEmail(ctx, user.Email, username)
	if err != nil {
		slog.Warn("failed to send account deleted email", "user_id", userID, "error", err)
	}

	slog.Info("account deleted", "user_id", userID)
	return nil
}
