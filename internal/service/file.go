package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/storage"
)

var ErrStorageDisabled = errors.New("file storage is not configured")

// Upload describes an incoming file. Body must already be validated.
type Upload struct {
	Body         io.Reader
	OriginalName string
	MimeType     string
	Size         int64
}

type FileService struct {
	fileRepo repository.FileRepository
	storage  storage.Storage
	clock    clock.Clock
}

// NewFileService accepts a nil storage; uploads then fail with ErrStorageDisabled.
func NewFileService(fileRepo repository.FileRepository, storage storage.Storage, clk clock.Clock) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		storage:  storage,
		clock:    clk,
	}
}

func (s *FileService) Enabled() bool {
	return s.storage != nil
}

func (s *FileService) Upload(ctx context.Context, userID, ownerType, ownerID, fileType string, up Upload, isPublic bool) (*model.File, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}

	filename := uuid.New().String() + strings.ToLower(filepath.Ext(up.OriginalName))
	prefix := "private"
	if isPublic {
		prefix = "public"
	}
	// avatar -> public/avatars/<uuid>.png
	storagePath := path.Join(prefix, fileType+"s", filename)

	err := s.storage.Save(ctx, storagePath, up.Body, up.MimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	file := &model.File{
		ID:           uuid.New().String(),
		UserID:       userID,
		OwnerType:    ownerType,
		OwnerID:      ownerID,
		Type:         fileType,
		Filename:     filename,
		OriginalName: up.OriginalName,
		MimeType:     up.MimeType,
		Size:         up.Size,
		StoragePath:  storagePath,
		Public:       isPublic,
		CreatedAt:    s.clock.Now(),
	}

	err = s.fileRepo.Create(ctx, file)
	if err != nil {
		delErr := s.storage.Delete(ctx, storagePath)
		if delErr != nil {
			slog.Error("failed to delete file from storage during cleanup", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	return file, nil
}

func (s *FileService) Avatar(ctx context.Context, ownerID string) (*model.File, error) {
	return s.fileRepo.FileByType(ctx, model.OwnerTypeProfile, ownerID, model.FileTypeAvatar)
}

// URL resolves a storage path. It returns "" when storage is off.
func (s *FileService) URL(ctx context.Context, storagePath string, public bool) string {
	if s.storage == nil || storagePath == "" {
		return ""
	}
	return s.storage.URL(ctx, storagePath, public)
}

func (s *FileService) Delete(ctx context.Context, fileID string) error {
	file, err := s.fileRepo.ByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get file: %w", err)
	}

	if s.storage != nil {
		delErr := s.storage.Delete(ctx, file.StoragePath)
		if delErr != nil {
			slog.Error("failed to delete file from storage", "error", delErr, "path", file.StoragePath)
		}
	}

	err = s.fileRepo.Delete(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	return nil
}

func (s *FileService) DeleteAvatar(ctx context.Context, ownerID string) error {
	file, err := s.Avatar(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil
		}
		return err
	}

	return s.Delete(ctx, file.ID)
}

// DeleteAllUserFilesFromStorage removes the objects only. Rows go with the
// user's cascade delete.
func (s *FileService) DeleteAllUserFilesFromStorage(ctx context.Context, userID string) error {
	if s.storage == nil {
		return nil
	}

	files, err := s.fileRepo.AllUserFiles(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user files: %w", err)
	}

	for _, file := range files {
		err = s.storage.Delete(ctx, file.StoragePath)
		if err != nil {
			slog.Warn("failed to delete file from storage", "storage_path", file.StoragePath, "error", err)
		}
	}

	return nil
}
