package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/avissapr/advisordesk/internal/esign"
	"github.com/avissapr/advisordesk/internal/overlay"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/gofiber/fiber/v2"
)

// ESignProvider lists provider templates. Satisfied by *esign.Client.
type ESignProvider interface {
	ListTemplates(ctx context.Context) ([]esign.Template, error)
	GetTemplateTabs(ctx context.Context, templateType, templateID string) ([]esign.TabGroup, error)
}

// TemplateHandler handles the template editor API: template import and
// drafts, the PDF overlay builder, PDF upload and the e-signature provider
// lookups used while editing.
type TemplateHandler struct {
	templates *services.TemplateService
	overlays  *services.OverlayService
	esign     ESignProvider // nil when no provider is configured
	logger    *security.Logger
}

// NewTemplateHandler creates a TemplateHandler. provider may be nil.
func NewTemplateHandler(templates *services.TemplateService, overlays *services.OverlayService, provider ESignProvider, logger *security.Logger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		overlays:  overlays,
		esign:     provider,
		logger:    logger,
	}
}

// List returns the firm's templates.
func (h *TemplateHandler) List(c *fiber.Ctx) error {
	rows, err := h.templates.List(c.UserContext(), callerFrom(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	out := make([]fiber.Map, 0, len(rows))
	for _, row := range rows {
		out = append(out, fiber.Map{
			"id":        row.ID,
			"name":      row.Name,
			"hasPdf":    row.PDFPath != nil,
			"updatedAt": row.UpdatedAt,
		})
	}
	return c.JSON(out)
}

// Import stores a template document uploaded as a "file" part or sent as the
// raw request body. YAML is recognized by the file extension or a yaml
// content type; everything else is read as JSON.
func (h *TemplateHandler) Import(c *fiber.Ctx) error {
	data, format, err := documentFrom(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	row, report, err := h.templates.Import(c.UserContext(), callerFrom(c), c.FormValue("name", c.Query("name")), data, format)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     row.ID,
		"name":   row.Name,
		"report": report,
	})
}

// Get returns a template with its decoded definition.
func (h *TemplateHandler) Get(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	row, tpl, err := h.templates.Get(c.UserContext(), callerFrom(c), id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"id":         row.ID,
		"name":       row.Name,
		"definition": tpl,
		"hasDraft":   len(row.DraftPages) > 0,
		"updatedAt":  row.UpdatedAt,
	})
}

// Update replaces a template's definition.
func (h *TemplateHandler) Update(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	data, format, err := documentFrom(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	report, err := h.templates.Update(c.UserContext(), callerFrom(c), id, data, format)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{"id": id, "report": report})
}

// SaveDraft takes the editor's page list. It is written on the next
// autosave tick.
func (h *TemplateHandler) SaveDraft(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	if err := h.templates.SaveDraft(c.UserContext(), callerFrom(c), id, c.Body()); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func documentFrom(c *fiber.Ctx) ([]byte, schema.Format, error) {
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, "unreadable upload")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", fiber.NewError(fiber.StatusBadRequest, "unreadable upload")
		}
		return data, schema.FormatFromPath(fh.Filename), nil
	}

	body := c.Body()
	if len(body) == 0 {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "empty template document")
	}
	format := schema.FormatJSON
	if strings.Contains(c.Get(fiber.HeaderContentType), "yaml") {
		format = schema.FormatYAML
	}
	return body, format, nil
}

// containerWidth reads the editor's rendered page width from ?width=. Zero
// means unscaled.
func containerWidth(c *fiber.Ctx) float64 {
	w, err := strconv.ParseFloat(c.Query("width"), 64)
	if err != nil || w < 0 {
		return 0
	}
	return w
}

// Layout returns the overlay schema and the scale for the editor's width.
func (h *TemplateHandler) Layout(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	res, err := h.overlays.Layout(c.UserContext(), callerFrom(c), id, containerWidth(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// Drop adds an overlay from the palette.
//
// Request body: overlay.DropRequest in screen coordinates.
func (h *TemplateHandler) Drop(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var req overlay.DropRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.overlays.Drop(c.UserContext(), callerFrom(c), id, containerWidth(c), req)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Move places an overlay at a new position, possibly on another page.
//
// Request body: {"page": 2, "x": 40, "y": 50} in screen coordinates.
func (h *TemplateHandler) Move(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var body struct {
		Page int     `json:"page"`
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.overlays.Move(c.UserContext(), callerFrom(c), id, containerWidth(c), c.Params("fid"), body.Page, body.X, body.Y)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// Resize commits a finished resize drag.
//
// Request body: {"dx": 10, "dy": -4}, the total pointer delta in screen pixels.
func (h *TemplateHandler) Resize(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var body struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.overlays.Resize(c.UserContext(), callerFrom(c), id, containerWidth(c), c.Params("fid"), body.DX, body.DY)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// Duplicate copies an overlay next to the original.
func (h *TemplateHandler) Duplicate(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	res, err := h.overlays.Duplicate(c.UserContext(), callerFrom(c), id, containerWidth(c), c.Params("fid"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// UpdateProperties applies property panel edits.
//
// Request body: overlay.Properties
func (h *TemplateHandler) UpdateProperties(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var props overlay.Properties
	if err := c.BodyParser(&props); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.overlays.UpdateProperties(c.UserContext(), callerFrom(c), id, containerWidth(c), c.Params("fid"), props)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// DeleteOverlay removes an overlay.
func (h *TemplateHandler) DeleteOverlay(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	res, err := h.overlays.Delete(c.UserContext(), callerFrom(c), id, c.Params("fid"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// UploadPDF replaces the template's PDF. Overlays on pages the new PDF does
// not have are removed and reported.
func (h *TemplateHandler) UploadPDF(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	file, closeFile, err := uploadedFile(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	defer closeFile()

	res, err := h.overlays.UploadPDF(c.UserContext(), callerFrom(c), id, file)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// ImportTabs copies the tabs of a provider template onto the overlay.
//
// Request body: {"providerType": "template", "providerId": "..."}
func (h *TemplateHandler) ImportTabs(c *fiber.Ctx) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var body struct {
		ProviderType string `json:"providerType"`
		ProviderID   string `json:"providerId"`
	}
	if err := c.BodyParser(&body); err != nil || body.ProviderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.overlays.ImportTabs(c.UserContext(), callerFrom(c), id, body.ProviderType, body.ProviderID)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(res)
}

// ESignTemplates lists the provider's templates.
func (h *TemplateHandler) ESignTemplates(c *fiber.Ctx) error {
	if h.esign == nil {
		return writeError(c, h.logger, esign.ErrNotConfigured)
	}
	list, err := h.esign.ListTemplates(c.UserContext())
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(list)
}

// ESignTabs returns the tabs of one provider template grouped by recipient.
func (h *TemplateHandler) ESignTabs(c *fiber.Ctx) error {
	if h.esign == nil {
		return writeError(c, h.logger, esign.ErrNotConfigured)
	}
	groups, err := h.esign.GetTemplateTabs(c.UserContext(), c.Params("type"), c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(groups)
}

// uploadedFile opens the "file" part of a multipart request.
func uploadedFile(c *fiber.Ctx) (services.UploadedFile, func(), error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return services.UploadedFile{}, nil, fiber.NewError(fiber.StatusBadRequest, "missing file")
	}
	f, err := fh.Open()
	if err != nil {
		return services.UploadedFile{}, nil, fiber.NewError(fiber.StatusBadRequest, "unreadable upload")
	}
	return services.UploadedFile{
		Filename:    fh.Filename,
		ContentType: contentType(fh),
		Size:        fh.Size,
		Content:     f,
	}, func() { _ = f.Close() }, nil
}

func contentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get(fiber.HeaderContentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
