package handlers

import (
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/gofiber/fiber/v2"
)

// AccountHandler handles the signed-in user's own profile.
type AccountHandler struct {
	avatars *services.AvatarService
	logger  *security.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(avatars *services.AvatarService, logger *security.Logger) *AccountHandler {
	return &AccountHandler{avatars: avatars, logger: logger}
}

// UploadAvatar stores a new profile picture from the "file" part and returns
// its URL.
func (h *AccountHandler) UploadAvatar(c *fiber.Ctx) error {
	file, closeFile, err := uploadedFile(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	defer closeFile()

	url, err := h.avatars.Upload(c.UserContext(), callerFrom(c), file)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{"url": url})
}
