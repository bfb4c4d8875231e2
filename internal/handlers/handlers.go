// Package handlers implements HTTP request handlers for AdvisorDesk.
// This includes authentication, the form-filling session API, the HTML page
// view, the template and overlay editor API, and the staff dashboard.
package handlers

import (
	"errors"
	"strconv"

	"github.com/avissapr/advisordesk/internal/esign"
	"github.com/avissapr/advisordesk/internal/middleware"
	"github.com/avissapr/advisordesk/internal/overlay"
	"github.com/avissapr/advisordesk/internal/render"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/avissapr/advisordesk/internal/stepper"
	"github.com/gofiber/fiber/v2"
)

// callerFrom builds the service caller from the locals AuthRequired set. A
// request without a user id is a public visitor.
func callerFrom(c *fiber.Ctx) services.Caller {
	caller := services.Caller{
		Role:      stepper.RolePublic,
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
	userID, ok := c.Locals(middleware.KeyUserID).(int)
	if !ok {
		return caller
	}
	caller.UserID = userID
	caller.FirmID, _ = c.Locals(middleware.KeyFirmID).(int)
	role, _ := c.Locals(middleware.KeyUserRole).(string)
	caller.Role = stepper.Role(role)
	return caller
}

// publicCaller is used on the share-link routes regardless of any login.
func publicCaller(c *fiber.Ctx) services.Caller {
	return services.Caller{
		Role:      stepper.RolePublic,
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func paramInt(c *fiber.Ctx, name string) (int, error) {
	v, err := strconv.Atoi(c.Params(name))
	if err != nil || v <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return v, nil
}

// writeError maps service errors onto JSON responses. Anything unrecognized is
// logged and reported as a 500 without details.
func writeError(c *fiber.Ctx, logger *security.Logger, err error) error {
	var (
		verrs  render.ValidationErrors
		perr   *services.PersistenceError
		uerr   *services.UploadError
		ferr   *fiber.Error
		apiErr *esign.APIError
	)

	switch {
	case errors.As(err, &verrs):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation failed", "errors": verrs})
	case errors.As(err, &perr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "save failed", "notification": perr.Notification})
	case errors.As(err, &uerr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": uerr.Error()})
	case errors.As(err, &ferr):
		return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
	case errors.Is(err, services.ErrSkipConfirmationRequired):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "confirmRequired": true})
	case errors.Is(err, stepper.ErrPageNotReachable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, overlay.ErrFieldNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, services.ErrFormAccessDenied),
		errors.Is(err, services.ErrTemplateAccessDenied),
		errors.Is(err, services.ErrActionNotAllowed):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNoTemplates),
		errors.Is(err, overlay.ErrPageOutOfRange),
		errors.Is(err, overlay.ErrUnknownType),
		errors.Is(err, schema.ErrMalformed):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, esign.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &apiErr):
		logger.Error("e-signature provider request failed", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "e-signature provider unavailable"})
	}

	logger.Error("request failed: "+c.Method()+" "+c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
