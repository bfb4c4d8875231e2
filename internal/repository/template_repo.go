package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/jackc/pgx/v5"
)

// TemplateRepository handles stored form templates and their PDF overlay layouts.
type TemplateRepository struct{}

// NewTemplateRepository creates a new instance of TemplateRepository.
//
// Returns:
//   - *TemplateRepository: Initialized repository instance
func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{}
}

// GetByID retrieves a template with its definition and overlay documents.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - id: Template identifier
//
// Returns:
//   - *models.FormTemplate: The template
//   - error: wraps ErrNotFound when no template has the id, database error otherwise
func (r *TemplateRepository) GetByID(ctx context.Context, id int) (*models.FormTemplate, error) {
	query := `
		SELECT id, firm_id, name, definition, pdf_form_schema, pdf_path, draft_pages,
		       created_by, created_at, updated_at
		FROM form_templates
		WHERE id = $1
	`

	var t models.FormTemplate
	err := database.DB.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.FirmID, &t.Name, &t.Definition, &t.PDFFormSchema, &t.PDFPath, &t.DraftPages,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// ListByFirm retrieves a firm's templates without their documents, ordered by name.
func (r *TemplateRepository) ListByFirm(ctx context.Context, firmID int) ([]models.FormTemplate, error) {
	query := `SELECT id, firm_id, name, pdf_path, updated_at FROM form_templates WHERE firm_id = $1 ORDER BY name`

	rows, err := database.DB.Query(ctx, query, firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.FormTemplate
	for rows.Next() {
		var t models.FormTemplate
		if err := rows.Scan(&t.ID, &t.FirmID, &t.Name, &t.PDFPath, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// Create inserts a new template.
//
// Side Effects: Populates t.ID, t.CreatedAt and t.UpdatedAt with database values
func (r *TemplateRepository) Create(ctx context.Context, t *models.FormTemplate) error {
	query := `
		INSERT INTO form_templates (firm_id, name, definition, pdf_form_schema, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	return database.DB.QueryRow(ctx, query, t.FirmID, t.Name, t.Definition, t.PDFFormSchema, t.CreatedBy).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// UpdateDefinition replaces a template's name and definition and clears any
// editor draft, which the new definition supersedes.
func (r *TemplateRepository) UpdateDefinition(ctx context.Context, id int, name string, definition []byte) error {
	query := `
		UPDATE form_templates
		SET name = $2, definition = $3, draft_pages = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, query, id, name, definition)
}

// SavePDFSchema stores the overlay components document.
func (r *TemplateRepository) SavePDFSchema(ctx context.Context, id int, pdfFormSchema []byte) error {
	query := `UPDATE form_templates SET pdf_form_schema = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, id, query, id, pdfFormSchema)
}

// SetPDF records a newly uploaded PDF together with the overlay document
// adjusted to its page layout.
func (r *TemplateRepository) SetPDF(ctx context.Context, id int, pdfPath string, pdfFormSchema []byte) error {
	query := `UPDATE form_templates SET pdf_path = $2, pdf_form_schema = $3, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, id, query, id, pdfPath, pdfFormSchema)
}

// SaveDraft stores the editor's autosaved draft without touching the
// published definition.
func (r *TemplateRepository) SaveDraft(ctx context.Context, id int, draft []byte) error {
	query := `UPDATE form_templates SET draft_pages = $2 WHERE id = $1`
	return r.exec(ctx, id, query, id, draft)
}

func (r *TemplateRepository) exec(ctx context.Context, id int, query string, args ...any) error {
	tag, err := database.DB.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return nil
}
