package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/avissapr/advisordesk/internal/esign"
	"github.com/avissapr/advisordesk/internal/overlay"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/storage"
	"github.com/google/uuid"
)

// OverlayTemplates is the part of the template store the overlay editor uses.
type OverlayTemplates interface {
	TemplateStore
	SavePDFSchema(ctx context.Context, id int, pdfFormSchema []byte) error
	SetPDF(ctx context.Context, id int, pdfPath string, pdfFormSchema []byte) error
}

// TabSource lists the tabs of an e-signature provider template. Satisfied by
// *esign.Client.
type TabSource interface {
	GetTemplateTabs(ctx context.Context, templateType, templateID string) ([]esign.TabGroup, error)
}

// OverlayResult is returned by every overlay edit.
type OverlayResult struct {
	Field  *schema.OverlayField  `json:"field,omitempty"`
	Schema *schema.PDFFormSchema `json:"schema"`
	Scale  float64               `json:"scale"`
}

// UploadResult is returned by UploadPDF.
type UploadResult struct {
	URL     string                `json:"url"`
	Schema  *schema.PDFFormSchema `json:"schema"`
	Removed []string              `json:"removed,omitempty"`
}

// ImportResult is returned by ImportTabs.
type ImportResult struct {
	Schema  *schema.PDFFormSchema `json:"schema"`
	Added   int                   `json:"added"`
	Skipped int                   `json:"skipped"`
}

// UploadedFile is a file received from a client. Content must support seeking
// so the PDF can be inspected before it is stored.
type UploadedFile struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.ReadSeeker
}

// OverlayService edits the PDF overlay layout of templates. Each edit loads
// the stored layout, applies one builder operation and writes the layout back.
// Edits of the same template are serialized.
type OverlayService struct {
	templates OverlayTemplates
	store     storage.Store
	tabs      TabSource
	validator *security.ValidationService
	logger    *security.Logger

	// ReferenceWidth is the page width in points the editor scales against.
	ReferenceWidth float64

	locks sync.Map // template id -> *sync.Mutex
}

// NewOverlayService creates an OverlayService. tabs may be nil when no
// e-signature provider is configured.
func NewOverlayService(templates OverlayTemplates, store storage.Store, tabs TabSource,
	validator *security.ValidationService, logger *security.Logger) *OverlayService {
	return &OverlayService{
		templates:      templates,
		store:          store,
		tabs:           tabs,
		validator:      validator,
		logger:         logger,
		ReferenceWidth: overlay.DefaultReferenceWidth,
	}
}

func (s *OverlayService) lock(id int) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Layout returns the stored overlay layout and the scale for containerWidth.
func (s *OverlayService) Layout(ctx context.Context, caller Caller, templateID int, containerWidth float64) (*OverlayResult, error) {
	row, err := ownedTemplate(ctx, s.templates, caller, templateID)
	if err != nil {
		return nil, err
	}
	doc, err := schema.DecodePDFFormSchema(row.PDFFormSchema)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{Schema: doc, Scale: overlay.Scale(containerWidth, s.ReferenceWidth)}, nil
}

// Drop creates an overlay from a palette item.
func (s *OverlayService) Drop(ctx context.Context, caller Caller, templateID int, containerWidth float64, req overlay.DropRequest) (*OverlayResult, error) {
	return s.edit(ctx, caller, templateID, containerWidth, "drop", func(b *overlay.Builder) (*schema.OverlayField, error) {
		return b.Drop(req)
	})
}

// Move repositions an overlay.
func (s *OverlayService) Move(ctx context.Context, caller Caller, templateID int, containerWidth float64, id string, page int, x, y float64) (*OverlayResult, error) {
	return s.edit(ctx, caller, templateID, containerWidth, "move", func(b *overlay.Builder) (*schema.OverlayField, error) {
		return b.Move(id, page, x, y)
	})
}

// Resize applies a finished corner-handle drag of dx, dy screen pixels.
func (s *OverlayService) Resize(ctx context.Context, caller Caller, templateID int, containerWidth float64, id string, dx, dy float64) (*OverlayResult, error) {
	return s.edit(ctx, caller, templateID, containerWidth, "resize", func(b *overlay.Builder) (*schema.OverlayField, error) {
		r, err := b.BeginResize(id)
		if err != nil {
			return nil, err
		}
		r.Drag(dx, dy)
		return r.Commit()
	})
}

// Duplicate copies an overlay.
func (s *OverlayService) Duplicate(ctx context.Context, caller Caller, templateID int, containerWidth float64, id string) (*OverlayResult, error) {
	return s.edit(ctx, caller, templateID, containerWidth, "duplicate", func(b *overlay.Builder) (*schema.OverlayField, error) {
		return b.Duplicate(id)
	})
}

// UpdateProperties changes the key, type, custom properties or size of an overlay.
func (s *OverlayService) UpdateProperties(ctx context.Context, caller Caller, templateID int, containerWidth float64, id string, p overlay.Properties) (*OverlayResult, error) {
	return s.edit(ctx, caller, templateID, containerWidth, "properties", func(b *overlay.Builder) (*schema.OverlayField, error) {
		return b.UpdateProperties(id, p)
	})
}

// Delete removes an overlay.
func (s *OverlayService) Delete(ctx context.Context, caller Caller, templateID int, id string) (*OverlayResult, error) {
	return s.edit(ctx, caller, templateID, 0, "delete", func(b *overlay.Builder) (*schema.OverlayField, error) {
		return nil, b.Delete(id)
	})
}

func (s *OverlayService) edit(ctx context.Context, caller Caller, templateID int, containerWidth float64, op string,
	apply func(*overlay.Builder) (*schema.OverlayField, error)) (*OverlayResult, error) {
	unlock := s.lock(templateID)
	defer unlock()

	row, err := ownedTemplate(ctx, s.templates, caller, templateID)
	if err != nil {
		return nil, err
	}
	doc, err := schema.DecodePDFFormSchema(row.PDFFormSchema)
	if err != nil {
		return nil, err
	}

	b := overlay.NewBuilder(doc, overlay.Scale(containerWidth, s.ReferenceWidth))
	field, err := apply(b)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overlay schema: %w", err)
	}
	if err := s.templates.SavePDFSchema(ctx, templateID, data); err != nil {
		return nil, fmt.Errorf("failed to save overlay schema: %w", err)
	}

	s.logger.SecurityEvent(security.EventOverlayEdit, actor(caller), "", caller.IPAddress, caller.UserAgent,
		map[string]interface{}{"template_id": templateID, "op": op})
	return &OverlayResult{Field: field, Schema: doc, Scale: b.Scale()}, nil
}

// UploadPDF validates and inspects a PDF, stores it and records its page
// layout in the template. Overlays on pages the new PDF does not have are
// removed. Nothing is stored when validation or inspection fails.
func (s *OverlayService) UploadPDF(ctx context.Context, caller Caller, templateID int, file UploadedFile) (*UploadResult, error) {
	unlock := s.lock(templateID)
	defer unlock()

	row, err := ownedTemplate(ctx, s.templates, caller, templateID)
	if err != nil {
		return nil, err
	}

	if err := s.checkPDF(file); err != nil {
		s.logger.SecurityEvent(security.EventUploadRejected, actor(caller), "", caller.IPAddress, caller.UserAgent,
			map[string]interface{}{"template_id": templateID, "filename": file.Filename, "reason": err.Error()})
		return nil, &UploadError{Err: err}
	}

	info, err := overlay.InspectPDF(file.Content)
	if err != nil {
		return nil, &UploadError{Err: fmt.Errorf("file could not be read as a PDF")}
	}
	if _, err := file.Content.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("templates/%d/%s.pdf", templateID, uuid.NewString())
	put, err := s.store.Put(ctx, key, file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store PDF: %w", err)
	}

	doc, err := schema.DecodePDFFormSchema(row.PDFFormSchema)
	if err != nil {
		return nil, err
	}
	removed := info.Apply(doc)
	doc.PDFPath = put.Key

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overlay schema: %w", err)
	}
	if err := s.templates.SetPDF(ctx, templateID, put.Key, data); err != nil {
		return nil, fmt.Errorf("failed to record PDF: %w", err)
	}
	if row.PDFPath != nil && *row.PDFPath != put.Key {
		if err := s.store.Delete(ctx, *row.PDFPath); err != nil {
			s.logger.Error("failed to delete replaced PDF", err)
		}
	}

	url, err := s.store.GetURL(ctx, put.Key)
	if err != nil {
		return nil, err
	}

	s.logger.SecurityEvent(security.EventPDFUpload, actor(caller), "", caller.IPAddress, caller.UserAgent,
		map[string]interface{}{"template_id": templateID, "pages": info.PageCount, "removed": len(removed)})
	return &UploadResult{URL: url, Schema: doc, Removed: removed}, nil
}

func (s *OverlayService) checkPDF(file UploadedFile) error {
	if err := s.validator.ValidateUpload(security.UploadPDF, file.Filename, file.ContentType, file.Size); err != nil {
		return err
	}
	if file.Content == nil {
		return fmt.Errorf("file is required")
	}

	head := make([]byte, 5)
	n, _ := io.ReadFull(file.Content, head)
	if err := s.validator.ValidatePDFHeader(head[:n]); err != nil {
		return err
	}
	_, err := file.Content.Seek(0, io.SeekStart)
	return err
}

// ImportTabs seeds the layout with the tabs of an e-signature provider
// template. Tabs of unsupported types, or on pages the stored PDF does not
// have, are skipped.
func (s *OverlayService) ImportTabs(ctx context.Context, caller Caller, templateID int, providerType, providerID string) (*ImportResult, error) {
	if s.tabs == nil {
		return nil, fmt.Errorf("e-signature provider is not configured")
	}

	unlock := s.lock(templateID)
	defer unlock()

	row, err := ownedTemplate(ctx, s.templates, caller, templateID)
	if err != nil {
		return nil, err
	}
	groups, err := s.tabs.GetTemplateTabs(ctx, providerType, providerID)
	if err != nil {
		return nil, err
	}
	doc, err := schema.DecodePDFFormSchema(row.PDFFormSchema)
	if err != nil {
		return nil, err
	}

	fields, skipped := esign.ToOverlays(groups)
	res := &ImportResult{Schema: doc, Skipped: len(skipped)}
	for _, f := range fields {
		if doc.PageCount > 0 && f.Overlay.Page > doc.PageCount {
			res.Skipped++
			continue
		}
		doc.Components[f.ID] = f
		res.Added++
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overlay schema: %w", err)
	}
	if err := s.templates.SavePDFSchema(ctx, templateID, data); err != nil {
		return nil, err
	}

	s.logger.SecurityEvent(security.EventOverlayEdit, actor(caller), "", caller.IPAddress, caller.UserAgent,
		map[string]interface{}{"template_id": templateID, "op": "import_tabs", "added": res.Added, "skipped": res.Skipped})
	return res, nil
}

// UploadError is a rejected upload. Its message is safe to show users.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return e.Err.Error() }

func (e *UploadError) Unwrap() error { return e.Err }
