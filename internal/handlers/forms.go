package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/avissapr/advisordesk/internal/middleware"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/render"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/avissapr/advisordesk/internal/stepper"
	"github.com/gofiber/fiber/v2"
)

// ClientForms lists the forms sent to a client. Satisfied by *repository.FormRepository.
type ClientForms interface {
	ListByClient(ctx context.Context, clientID int) ([]models.Form, error)
}

// FormHandler serves form-filling sessions as JSON and as server-rendered
// pages. The same handler type serves logged-in users and share-link
// visitors; Public returns the variant for the latter.
type FormHandler struct {
	forms    *services.FormService
	mine     ClientForms
	security *middleware.SecurityMiddleware
	logger   *security.Logger

	caller   func(*fiber.Ctx) services.Caller
	pagePath string // prefix of a session's HTML page
}

// NewFormHandler creates the handler for authenticated routes.
func NewFormHandler(forms *services.FormService, mine ClientForms, sm *middleware.SecurityMiddleware, logger *security.Logger) *FormHandler {
	return &FormHandler{
		forms:    forms,
		mine:     mine,
		security: sm,
		logger:   logger,
		caller:   callerFrom,
		pagePath: "/forms/sessions/",
	}
}

// Public returns a copy of h that treats every request as a public visitor.
func (h *FormHandler) Public() *FormHandler {
	p := *h
	p.caller = publicCaller
	p.pagePath = "/public/pages/"
	return &p
}

// Start opens a session on a stored form or on a new form built from
// templates.
//
// Request body: models.StartSessionForm
func (h *FormHandler) Start(c *fiber.Ctx) error {
	var form models.StartSessionForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.forms.Start(c.UserContext(), h.caller(c), services.StartRequest{
		FormID:      form.FormID,
		TemplateIDs: form.TemplateIDs,
		ClientID:    form.ClientID,
		ReadOnly:    form.ReadOnly,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// StartPublic opens a session on the form behind a share token.
func (h *FormHandler) StartPublic(c *fiber.Ctx) error {
	res, err := h.startPublic(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// OpenPublic is the share link itself: it opens a session and redirects to
// its page.
func (h *FormHandler) OpenPublic(c *fiber.Ctx) error {
	res, err := h.startPublic(c)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).SendString("This form link is not valid.")
		}
		return err
	}
	return c.Redirect(h.pagePath + res.SessionID)
}

func (h *FormHandler) startPublic(c *fiber.Ctx) (*services.Result, error) {
	token := c.Params("token")
	res, err := h.forms.Start(c.UserContext(), publicCaller(c), services.StartRequest{PublicToken: token})
	if errors.Is(err, repository.ErrNotFound) {
		h.security.RecordTokenMiss(c.IP(), c.Get(fiber.HeaderUserAgent))
	}
	return res, err
}

// Share creates a public form and returns its share link.
//
// Request body: {"templateIds": [1, 2]}
func (h *FormHandler) Share(c *fiber.Ctx) error {
	var body struct {
		TemplateIDs []int `json:"templateIds"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	form, err := h.forms.Share(c.UserContext(), h.caller(c), body.TemplateIDs)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"formId": form.ID,
		"token":  *form.PublicToken,
		"url":    c.BaseURL() + "/public/forms/" + *form.PublicToken,
	})
}

// View returns the active page of a session.
func (h *FormHandler) View(c *fiber.Ctx) error {
	res, err := h.forms.View(h.caller(c), c.Params("sid"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// Change applies one field change and returns the updated page, which may
// have revealed or hidden steps.
//
// Request body: models.FieldChangeForm
func (h *FormHandler) Change(c *fiber.Ctx) error {
	var form models.FieldChangeForm
	if err := c.BodyParser(&form); err != nil || form.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.forms.ChangeField(h.caller(c), c.Params("sid"), form.Key, form.Value)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// Submit submits the active page with action continue, draft or skip.
// A page that fails required-field validation is answered with 422, the
// field errors and the page with the errors attached.
//
// Request body: models.SubmitPageForm
func (h *FormHandler) Submit(c *fiber.Ctx) error {
	var form models.SubmitPageForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if form.Action == "" {
		form.Action = string(stepper.ActionContinue)
	}

	res, err := h.forms.Submit(c.UserContext(), h.caller(c), c.Params("sid"), services.SubmitRequest{
		Action:      stepper.Action(form.Action),
		Values:      form.Values,
		ConfirmSkip: form.ConfirmSkip,
	})
	var verrs render.ValidationErrors
	if errors.As(err, &verrs) && res != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "validation failed",
			"errors": verrs,
			"view":   res.View,
		})
	}
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// Back moves to the previous visible page.
func (h *FormHandler) Back(c *fiber.Ctx) error {
	res, err := h.forms.Back(h.caller(c), c.Params("sid"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// Next moves forward without submitting. Only offered in read-only mode.
func (h *FormHandler) Next(c *fiber.Ctx) error {
	res, err := h.forms.Next(h.caller(c), c.Params("sid"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// GoTo jumps to a step of the step list.
func (h *FormHandler) GoTo(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid step index"})
	}

	res, err := h.forms.Jump(h.caller(c), c.Params("sid"), index)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// End closes a session. Unsaved changes are discarded.
func (h *FormHandler) End(c *fiber.Ctx) error {
	if err := h.forms.End(h.caller(c), c.Params("sid")); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MyForms lists the signed-in client's forms.
//
// Template: forms/list.html
func (h *FormHandler) MyForms(c *fiber.Ctx) error {
	caller := h.caller(c)
	forms, err := h.mine.ListByClient(c.UserContext(), caller.UserID)
	if err != nil {
		return err
	}
	return c.Render("forms/list", fiber.Map{
		"Title": "My Forms - AdvisorDesk",
		"Forms": forms,
	})
}

// StartPage opens a session from an HTML form and redirects to its page.
// Form values: formId to resume, or templateId (repeatable) and clientId for
// a new form; readOnly to review.
func (h *FormHandler) StartPage(c *fiber.Ctx) error {
	req := services.StartRequest{
		FormID:   c.FormValue("formId"),
		ReadOnly: c.FormValue("readOnly") != "",
	}
	for _, raw := range c.Request().PostArgs().PeekMulti("templateId") {
		if id, err := strconv.Atoi(string(raw)); err == nil {
			req.TemplateIDs = append(req.TemplateIDs, id)
		}
	}
	req.ClientID, _ = strconv.Atoi(c.FormValue("clientId"))

	res, err := h.forms.Start(c.UserContext(), h.caller(c), req)
	switch {
	case errors.Is(err, services.ErrFormAccessDenied):
		return c.Status(fiber.StatusForbidden).SendString("Access denied")
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).SendString("Form not found")
	case errors.Is(err, services.ErrNoTemplates):
		return c.Status(fiber.StatusBadRequest).SendString("Choose at least one template")
	case err != nil:
		return err
	}
	return c.Redirect(h.pagePath + res.SessionID)
}

// Page renders the active page of a session as HTML.
func (h *FormHandler) Page(c *fiber.Ctx) error {
	res, err := h.forms.View(h.caller(c), c.Params("sid"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).SendString("This form session has ended.")
		}
		return err
	}
	return h.renderPage(c, res, "")
}

// PagePost handles the buttons of the HTML page. The "nav" form value picks
// back, next or a step index; otherwise the page is submitted with "action".
func (h *FormHandler) PagePost(c *fiber.Ctx) error {
	caller := h.caller(c)
	sid := c.Params("sid")

	current, err := h.forms.View(caller, sid)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).SendString("This form session has ended.")
		}
		return err
	}

	var res *services.Result
	switch nav := c.FormValue("nav"); nav {
	case "back":
		res, err = h.forms.Back(caller, sid)
	case "next":
		res, err = h.forms.Next(caller, sid)
	case "":
		res, err = h.forms.Submit(c.UserContext(), caller, sid, services.SubmitRequest{
			Action:      stepper.Action(c.FormValue("action", string(stepper.ActionContinue))),
			Values:      formValues(c, current.View.Fields),
			ConfirmSkip: c.FormValue("confirmSkip") != "",
		})
	default:
		index, convErr := strconv.Atoi(nav)
		if convErr != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid step")
		}
		res, err = h.forms.Jump(caller, sid, index)
	}

	var (
		verrs render.ValidationErrors
		perr  *services.PersistenceError
	)
	switch {
	case errors.As(err, &verrs) && res != nil:
		c.Status(fiber.StatusUnprocessableEntity)
		return h.renderPage(c, res, "")
	case errors.As(err, &perr):
		c.Status(fiber.StatusBadGateway)
		return h.renderPage(c, current, perr.Notification)
	case errors.Is(err, services.ErrSkipConfirmationRequired):
		c.Status(fiber.StatusConflict)
		return h.renderPage(c, current, "Tick the confirmation box to skip this page.")
	case errors.Is(err, stepper.ErrPageNotReachable), errors.Is(err, services.ErrActionNotAllowed):
		c.Status(fiber.StatusConflict)
		return h.renderPage(c, current, "That step is not available yet.")
	case err != nil:
		return err
	}

	if res.FormCompleted && res.NextURL != "" {
		return c.Redirect(res.NextURL)
	}
	return c.Redirect(h.pagePath + sid)
}

func (h *FormHandler) renderPage(c *fiber.Ctx, res *services.Result, notification string) error {
	title := res.View.Title
	if title == "" {
		title = "Form"
	}
	return c.Render("forms/page", fiber.Map{
		"Title":        title + " - AdvisorDesk",
		"Result":       res,
		"View":         res.View,
		"ActionURL":    h.pagePath + res.SessionID,
		"Notification": notification,
		"Staff":        h.caller(c).Role.IsStaff(),
	})
}

// Finalize is the landing page after the last page of a form is submitted.
func (h *FormHandler) Finalize(c *fiber.Ctx) error {
	return c.Render("forms/finalize", fiber.Map{
		"Title":  "Form complete - AdvisorDesk",
		"FormID": c.Params("id"),
	})
}

// formValues reads the posted values of the fields on the page. HTML forms
// omit unchecked checkboxes, so every checkbox on the page gets a value.
func formValues(c *fiber.Ctx, fields []render.FieldView) map[string]any {
	values := make(map[string]any)
	collectValues(c, fields, values)
	return values
}

func collectValues(c *fiber.Ctx, fields []render.FieldView, values map[string]any) {
	for _, f := range fields {
		if f.Disabled {
			continue
		}
		switch f.Type {
		case schema.FieldPanel:
			collectValues(c, f.Components, values)
		case schema.FieldContent, schema.FieldDataGrid:
		case schema.FieldCheckbox:
			values[f.Key] = c.FormValue(f.Key) != ""
		case schema.FieldSelectBoxes:
			picked := make(map[string]any, len(f.Options))
			for _, raw := range c.Request().PostArgs().PeekMulti(f.Key) {
				picked[string(raw)] = true
			}
			for _, o := range f.Options {
				if _, ok := picked[o.Value]; !ok {
					picked[o.Value] = false
				}
			}
			values[f.Key] = picked
		case schema.FieldNumber, schema.FieldCurrency:
			raw := strings.TrimSpace(c.FormValue(f.Key))
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				values[f.Key] = n
			} else {
				values[f.Key] = raw
			}
		default:
			values[f.Key] = c.FormValue(f.Key)
		}
	}
}
