package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/validation"
)

const DiscoverLimit = 10

var ErrInvalidFounderStage = &validation.Error{Field: "founder_stage", Message: "unknown founder stage"}

type ProfileUpdate struct {
	Username     *string `json:"username"`
	Bio          *string `json:"bio"`
	FounderStage *string `json:"founder_stage"`
}

type ProfileService struct {
	profileRepo repository.ProfileRepository
	userRepo    repository.UserRepository
	fileService *FileService
	clock       clock.Clock
}

func NewProfileService(
	profileRepo repository.ProfileRepository,
	userRepo repository.UserRepository,
	fileService *FileService,
	clk clock.Clock,
) *ProfileService {
	return &ProfileService{
		profileRepo: profileRepo,
		userRepo:    userRepo,
		fileService: fileService,
		clock:       clk,
	}
}

// Get returns the user's profile, creating it on first access.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.ByUserID(ctx, userID)
	if err == nil {
		s.withAvatarURL(ctx, profile)
		return profile, nil
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	user, err := s.userRepo.ByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	profile, err = s.create(ctx, userID, usernameFromEmail(user.Email))
	if err != nil {
		return nil, err
	}

	slog.Info("profile created lazily", "user_id", userID, "username", profile.Username)
	return profile, nil
}

// CreateFor inserts a profile with the preferred username, falling back to
// a suffixed variant when it is taken.
func (s *ProfileService) CreateFor(ctx context.Context, userID, username string) (*model.Profile, error) {
	return s.create(ctx, userID, username)
}

func (s *ProfileService) create(ctx context.Context, userID, username string) (*model.Profile, error) {
	candidate := username
	for attempt := 0; attempt < 5; attempt++ {
		now := s.clock.Now()
		profile := &model.Profile{
			UserID:    userID,
			Username:  candidate,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err := s.profileRepo.Create(ctx, profile)
		switch {
		case err == nil:
			return profile, nil
		case errors.Is(err, repository.ErrProfileExists):
			// Lost a race with a concurrent first fetch.
			return s.profileRepo.ByUserID(ctx, userID)
		case errors.Is(err, repository.ErrDuplicateUsername):
			candidate = suffixUsername(username)
		default:
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to create profile: %w", repository.ErrDuplicateUsername)
}

// Public returns another user's profile.
func (s *ProfileService) Public(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.ByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.withAvatarURL(ctx, profile)
	return profile, nil
}

func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileUpdate) (*model.Profile, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		err = validation.ValidateUsername(username)
		if err != nil {
			return nil, err
		}
		profile.Username = username
	}

	if in.Bio != nil {
		profile.Bio, err = validation.OptionalText("bio", in.Bio, validation.MaxLongTextLength)
		if err != nil {
			return nil, err
		}
	}

	if in.FounderStage != nil {
		stage := strings.TrimSpace(*in.FounderStage)
		switch {
		case stage == "":
			profile.FounderStage = nil
		case model.IsValidFounderStage(stage):
			profile.FounderStage = &stage
		default:
			return nil, ErrInvalidFounderStage
		}
	}

	profile.UpdatedAt = s.clock.Now()
	err = s.profileRepo.Update(ctx, profile)
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// UploadAvatar validates the image, stores it and points the profile at it.
// The previous avatar is removed afterwards.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID string, body io.ReadSeeker, filename string, size int64) (*model.Profile, error) {
	if !s.fileService.Enabled() {
		return nil, ErrStorageDisabled
	}

	mimeType, err := validation.DetectFile(body, filename, size, validation.ImageConstraints)
	if err != nil {
		return nil, err
	}

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	previous, err := s.fileService.Avatar(ctx, profile.ID)
	if err != nil && !errors.Is(err, repository.ErrFileNotFound) {
		return nil, fmt.Errorf("failed to look up avatar: %w", err)
	}

	file, err := s.fileService.Upload(ctx, userID, model.OwnerTypeProfile, profile.ID, model.FileTypeAvatar, Upload{
		Body:         body,
		OriginalName: filename,
		MimeType:     mimeType,
		Size:         size,
	}, true)
	if err != nil {
		return nil, err
	}

	err = s.profileRepo.SetAvatarPath(ctx, userID, &file.StoragePath, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to set avatar: %w", err)
	}
	profile.AvatarPath = &file.StoragePath

	if previous != nil {
		err = s.fileService.Delete(ctx, previous.ID)
		if err != nil {
			slog.Warn("failed to delete previous avatar", "error", err, "user_id", userID, "file_id", previous.ID)
		}
	}

	s.withAvatarURL(ctx, profile)
	return profile, nil
}

func (s *ProfileService) DeleteAvatar(ctx context.Context, userID string) error {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	err = s.fileService.DeleteAvatar(ctx, profile.ID)
	if err != nil {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}

	return s.profileRepo.SetAvatarPath(ctx, userID, nil, s.clock.Now())
}

// Discover suggests up to ten founders to partner with.
func (s *ProfileService) Discover(ctx context.Context, viewerID, stage string) ([]*model.Profile, error) {
	if stage != "" && !model.IsValidFounderStage(stage) {
		return nil, ErrInvalidFounderStage
	}

	profiles, err := s.profileRepo.Discover(ctx, viewerID, stage, DiscoverLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profiles: %w", err)
	}

	for _, p := range profiles {
		s.withAvatarURL(ctx, p)
	}
	return profiles, nil
}

// AvatarURL resolves a stored avatar path.
func (s *ProfileService) AvatarURL(ctx context.Context, path *string) string {
	if path == nil {
		return ""
	}
	return s.fileService.URL(ctx, *path, true)
}

func (s *ProfileService) withAvatarURL(ctx context.Context, p *model.Profile) {
	p.AvatarURL = s.AvatarURL(ctx, p.AvatarPath)
}

var nonUsernameChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// usernameFromEmail turns "Ada.Lovelace@x.io" into "ada_lovelace".
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	name := strings.ToLower(nonUsernameChars.ReplaceAllString(local, "_"))
	name = strings.Trim(name, "_")
	if len(name) > 24 {
		name = name[:24]
	}
	if len(name) < 3 {
		name = "founder"
	}
	return name
}

func suffixUsername(base string) string {
	if len(base) > 24 {
		base = base[:24]
	}
	return base + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:5]
}
