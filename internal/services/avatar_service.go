package services

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/storage"
	"github.com/google/uuid"
)

// AvatarUsers updates user avatars. Satisfied by *repository.UserRepository.
type AvatarUsers interface {
	UpdateAvatar(ctx context.Context, userID int, path string) error
}

// AvatarService stores profile pictures.
type AvatarService struct {
	users     AvatarUsers
	store     storage.Store
	validator *security.ValidationService
	logger    *security.Logger
}

// NewAvatarService creates an AvatarService.
func NewAvatarService(users AvatarUsers, store storage.Store, validator *security.ValidationService, logger *security.Logger) *AvatarService {
	return &AvatarService{users: users, store: store, validator: validator, logger: logger}
}

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// Upload validates and stores an avatar for the caller and returns its URL.
func (s *AvatarService) Upload(ctx context.Context, caller Caller, file UploadedFile) (string, error) {
	if err := s.validator.ValidateUpload(security.UploadAvatar, file.Filename, file.ContentType, file.Size); err != nil {
		s.logger.SecurityEvent(security.EventUploadRejected, actor(caller), "", caller.IPAddress, caller.UserAgent,
			map[string]interface{}{"filename": file.Filename, "reason": err.Error()})
		return "", &UploadError{Err: err}
	}
	if file.Content == nil {
		return "", &UploadError{Err: fmt.Errorf("file is required")}
	}

	// the declared content type is not trusted
	head := make([]byte, 512)
	n, _ := io.ReadFull(file.Content, head)
	ext, ok := avatarExtensions[sniffImage(head[:n])]
	if !ok {
		return "", &UploadError{Err: fmt.Errorf("file is not a PNG or JPEG image")}
	}

	key := fmt.Sprintf("avatars/%d/%s%s", caller.UserID, uuid.NewString(), ext)
	put, err := s.store.Put(ctx, key, io.MultiReader(bytes.NewReader(head[:n]), file.Content))
	if err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}
	if err := s.users.UpdateAvatar(ctx, caller.UserID, put.Key); err != nil {
		return "", err
	}

	s.logger.SecurityEvent(security.EventAvatarUpload, actor(caller), "", caller.IPAddress, caller.UserAgent,
		map[string]interface{}{"key": put.Key})
	return s.store.GetURL(ctx, put.Key)
}

func sniffImage(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	}
	return ""
}
