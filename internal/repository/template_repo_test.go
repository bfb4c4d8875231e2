package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTemplateRepository_GetByID verifies the template documents are scanned.
func TestTemplateRepository_GetByID(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mockSetup func(pgxmock.PgxPoolIface)
		notFound  bool
	}{
		{
			name: "template found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				pdfPath := "pdfs/12.pdf"
				createdBy := 1
				rows := pgxmock.NewRows([]string{
					"id", "firm_id", "name", "definition", "pdf_form_schema", "pdf_path", "draft_pages",
					"created_by", "created_at", "updated_at",
				}).AddRow(12, 3, "Household profile", []byte(`{"pages":[]}`), []byte(`{"components":{}}`),
					&pdfPath, []byte(nil), &createdBy, testTime, testTime)
				mock.ExpectQuery("SELECT(.+)FROM form_templates(.+)WHERE id").
					WithArgs(12).
					WillReturnRows(rows)
			},
		},
		{
			name: "template missing",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT(.+)FROM form_templates").
					WithArgs(12).
					WillReturnError(pgx.ErrNoRows)
			},
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			mock := newMockDB(t)
			tt.mockSetup(mock)

			// Act
			tpl, err := repository.NewTemplateRepository().GetByID(context.Background(), 12)

			// Assert
			if tt.notFound {
				assert.ErrorIs(t, err, repository.ErrNotFound)
				assert.Nil(t, tpl)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "Household profile", tpl.Name)
				assert.JSONEq(t, `{"pages":[]}`, string(tpl.Definition))
				require.NotNil(t, tpl.PDFPath)
				assert.Equal(t, "pdfs/12.pdf", *tpl.PDFPath)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// TestTemplateRepository_ListByFirm verifies the summary listing.
func TestTemplateRepository_ListByFirm(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	mock := newMockDB(t)

	rows := pgxmock.NewRows([]string{"id", "firm_id", "name", "pdf_path", "updated_at"}).
		AddRow(12, 3, "Household profile", (*string)(nil), testTime).
		AddRow(13, 3, "Risk questionnaire", (*string)(nil), testTime)
	mock.ExpectQuery("SELECT id, firm_id, name, pdf_path, updated_at FROM form_templates WHERE firm_id").
		WithArgs(3).
		WillReturnRows(rows)

	templates, err := repository.NewTemplateRepository().ListByFirm(context.Background(), 3)

	require.NoError(t, err)
	assert.Len(t, templates, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestTemplateRepository_Create verifies the insert populates generated values.
func TestTemplateRepository_Create(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	mock := newMockDB(t)

	createdBy := 1
	tpl := &models.FormTemplate{
		FirmID:        3,
		Name:          "Household profile",
		Definition:    []byte(`{"pages":[]}`),
		PDFFormSchema: []byte(`{"components":{}}`),
		CreatedBy:     &createdBy,
	}
	mock.ExpectQuery("INSERT INTO form_templates").
		WithArgs(3, "Household profile", tpl.Definition, tpl.PDFFormSchema, &createdBy).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(12, testTime, testTime))

	err := repository.NewTemplateRepository().Create(context.Background(), tpl)

	require.NoError(t, err)
	assert.Equal(t, 12, tpl.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestTemplateRepository_Updates covers the single-row update statements and
// their not-found mapping.
func TestTemplateRepository_Updates(t *testing.T) {
	doc := []byte(`{"components":{}}`)

	tests := []struct {
		name     string
		pattern  string
		args     []any
		call     func(*repository.TemplateRepository) error
		affected int64
	}{
		{
			name:     "save pdf schema",
			pattern:  "UPDATE form_templates SET pdf_form_schema",
			args:     []any{12, doc},
			call:     func(r *repository.TemplateRepository) error { return r.SavePDFSchema(context.Background(), 12, doc) },
			affected: 1,
		},
		{
			name:    "set pdf",
			pattern: "UPDATE form_templates SET pdf_path",
			args:    []any{12, "pdfs/12.pdf", doc},
			call: func(r *repository.TemplateRepository) error {
				return r.SetPDF(context.Background(), 12, "pdfs/12.pdf", doc)
			},
			affected: 1,
		},
		{
			name:     "save draft",
			pattern:  "UPDATE form_templates SET draft_pages",
			args:     []any{12, doc},
			call:     func(r *repository.TemplateRepository) error { return r.SaveDraft(context.Background(), 12, doc) },
			affected: 1,
		},
		{
			name:    "update definition",
			pattern: "UPDATE form_templates(.+)SET name",
			args:    []any{12, "Renamed", doc},
			call: func(r *repository.TemplateRepository) error {
				return r.UpdateDefinition(context.Background(), 12, "Renamed", doc)
			},
			affected: 1,
		},
		{
			name:     "missing template",
			pattern:  "UPDATE form_templates SET draft_pages",
			args:     []any{12, doc},
			call:     func(r *repository.TemplateRepository) error { return r.SaveDraft(context.Background(), 12, doc) },
			affected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockDB(t)
			mock.ExpectExec(tt.pattern).
				WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err := tt.call(repository.NewTemplateRepository())

			if tt.affected == 0 {
				assert.ErrorIs(t, err, repository.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
