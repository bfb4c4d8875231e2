package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/render"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
)

// ErrTemplateAccessDenied is returned when a template belongs to another firm
// or the caller is not staff.
var ErrTemplateAccessDenied = errors.New("access to template denied")

// TemplateRepo is the full template store. Satisfied by *repository.TemplateRepository.
type TemplateRepo interface {
	TemplateStore
	ListByFirm(ctx context.Context, firmID int) ([]models.FormTemplate, error)
	Create(ctx context.Context, t *models.FormTemplate) error
	UpdateDefinition(ctx context.Context, id int, name string, definition []byte) error
	SavePDFSchema(ctx context.Context, id int, pdfFormSchema []byte) error
	SetPDF(ctx context.Context, id int, pdfPath string, pdfFormSchema []byte) error
	SaveDraft(ctx context.Context, id int, draft []byte) error
}

// TemplateService imports and edits form templates.
type TemplateService struct {
	templates TemplateRepo
	audit     AuditLogger
	validator *security.ValidationService
	logger    *security.Logger

	// Drafts batches editor drafts; when nil drafts are saved immediately.
	Drafts *Autosaver
}

// NewTemplateService creates a TemplateService.
func NewTemplateService(templates TemplateRepo, audit AuditLogger, validator *security.ValidationService, logger *security.Logger) *TemplateService {
	return &TemplateService{
		templates: templates,
		audit:     audit,
		validator: validator,
		logger:    logger,
	}
}

// Import decodes a JSON or YAML template and stores it for the caller's firm.
// An empty name falls back to the name in the document. The validation report
// is returned and logged; quarantined entries are already removed from the
// stored definition.
func (s *TemplateService) Import(ctx context.Context, caller Caller, name string, data []byte, format schema.Format) (*models.FormTemplate, *schema.Report, error) {
	if !caller.Role.IsStaff() {
		return nil, nil, ErrTemplateAccessDenied
	}

	tpl, report, err := schema.Decode(data, format)
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		name = tpl.Name
	}
	name = s.validator.SanitizeString(name)
	if err := s.validator.ValidateTemplateName(name); err != nil {
		return nil, report, nameError(err)
	}
	tpl.Name = name

	overlays := tpl.PDFFormSchema
	if overlays == nil {
		overlays = schema.NewPDFFormSchema(0)
	}
	tpl.PDFFormSchema = nil
	tpl.ID = ""

	definition, err := json.Marshal(tpl)
	if err != nil {
		return nil, report, fmt.Errorf("failed to encode template: %w", err)
	}
	doc, err := json.Marshal(overlays)
	if err != nil {
		return nil, report, fmt.Errorf("failed to encode overlay schema: %w", err)
	}

	createdBy := caller.UserID
	row := &models.FormTemplate{
		FirmID:        caller.FirmID,
		Name:          name,
		Definition:    definition,
		PDFFormSchema: doc,
		CreatedBy:     &createdBy,
	}
	if err := s.templates.Create(ctx, row); err != nil {
		return nil, report, fmt.Errorf("failed to store template: %w", err)
	}

	logReport(s.logger, strconv.Itoa(row.ID), report)
	s.record(ctx, caller, row.ID, "import")
	return row, report, nil
}

// Update replaces the definition of an existing template.
func (s *TemplateService) Update(ctx context.Context, caller Caller, id int, data []byte, format schema.Format) (*schema.Report, error) {
	row, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	tpl, report, err := schema.Decode(data, format)
	if err != nil {
		return nil, err
	}
	name := row.Name
	if tpl.Name != "" {
		name = s.validator.SanitizeString(tpl.Name)
		if err := s.validator.ValidateTemplateName(name); err != nil {
			return report, nameError(err)
		}
	}
	tpl.Name = name
	tpl.ID = ""
	tpl.PDFFormSchema = nil

	definition, err := json.Marshal(tpl)
	if err != nil {
		return report, fmt.Errorf("failed to encode template: %w", err)
	}
	if err := s.templates.UpdateDefinition(ctx, id, name, definition); err != nil {
		return report, err
	}

	logReport(s.logger, strconv.Itoa(id), report)
	s.record(ctx, caller, id, "update")
	return report, nil
}

// Get returns a template together with its decoded definition.
func (s *TemplateService) Get(ctx context.Context, caller Caller, id int) (*models.FormTemplate, *schema.Template, error) {
	row, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	tpl, _, err := schema.Decode(row.Definition, schema.FormatJSON)
	if err != nil {
		return nil, nil, err
	}
	tpl.ID = strconv.Itoa(row.ID)
	return row, tpl, nil
}

// List returns the caller's firm templates.
func (s *TemplateService) List(ctx context.Context, caller Caller) ([]models.FormTemplate, error) {
	if !caller.Role.IsStaff() {
		return nil, ErrTemplateAccessDenied
	}
	return s.templates.ListByFirm(ctx, caller.FirmID)
}

// SaveDraft stores the editor's unpublished page list, or queues it for the
// next autosave tick. The pages are decoded first so a broken draft is never
// stored.
func (s *TemplateService) SaveDraft(ctx context.Context, caller Caller, id int, pages []byte) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}
	if _, _, err := schema.DecodePages(pages); err != nil {
		return err
	}
	if s.Drafts != nil {
		s.Drafts.Mark(id, pages)
		return nil
	}
	return s.templates.SaveDraft(ctx, id, pages)
}

func nameError(err error) render.ValidationErrors {
	return render.ValidationErrors{{Key: "name", Label: "Name", Message: err.Error()}}
}

// owned loads a template and checks it belongs to the caller's firm.
func (s *TemplateService) owned(ctx context.Context, caller Caller, id int) (*models.FormTemplate, error) {
	return ownedTemplate(ctx, s.templates, caller, id)
}

func ownedTemplate(ctx context.Context, templates TemplateStore, caller Caller, id int) (*models.FormTemplate, error) {
	if !caller.Role.IsStaff() {
		return nil, ErrTemplateAccessDenied
	}
	row, err := templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.FirmID != caller.FirmID {
		return nil, ErrTemplateAccessDenied
	}
	return row, nil
}

func (s *TemplateService) record(ctx context.Context, caller Caller, id int, op string) {
	firmID := caller.FirmID
	entry := &models.AuditLog{
		FirmID:     &firmID,
		ActorID:    actor(caller),
		Action:     string(security.EventTemplateImport),
		ObjectType: "form_template",
		ObjectID:   strconv.Itoa(id),
		IPAddress:  caller.IPAddress,
		UserAgent:  caller.UserAgent,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Error("failed to write template audit entry", err)
	}
	s.logger.SecurityEvent(security.EventTemplateImport, actor(caller), "", caller.IPAddress, caller.UserAgent,
		map[string]interface{}{"template_id": id, "op": op})
}
