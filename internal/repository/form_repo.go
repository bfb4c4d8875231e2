package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FormRepository handles form instances and their saved progress.
//
// A form row carries everything needed to resume a stepper session: the
// submission map (jsonb), the page the user last saved on and the keys of the
// pages they completed.
type FormRepository struct{}

// NewFormRepository creates a new instance of FormRepository.
//
// Returns:
//   - *FormRepository: Initialized repository instance
func NewFormRepository() *FormRepository {
	return &FormRepository{}
}

const formColumns = `id, firm_id, client_id, template_ids, submission, current_page_key,
	completed_pages, status, is_public, public_token, created_at, updated_at, completed_at`

func scanForm(row pgx.Row) (*models.Form, error) {
	var f models.Form
	err := row.Scan(
		&f.ID, &f.FirmID, &f.ClientID, &f.TemplateIDs, &f.Submission, &f.CurrentPageKey,
		&f.CompletedPages, &f.Status, &f.IsPublic, &f.PublicToken, &f.CreatedAt, &f.UpdatedAt, &f.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if f.Submission == nil {
		f.Submission = map[string]any{}
	}
	return &f, nil
}

// Create inserts a new form. An empty ID is replaced by a fresh uuid and an
// empty status defaults to draft.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - form: Form to insert; FirmID and TemplateIDs are required
//
// Returns:
//   - error: Database error if insertion fails, nil on success
//
// Side Effects:
//   - Sets form.ID when empty
//   - Sets form.CreatedAt and form.UpdatedAt with database timestamps
func (r *FormRepository) Create(ctx context.Context, form *models.Form) error {
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if form.Status == "" {
		form.Status = models.FormStatusDraft
	}
	if form.Submission == nil {
		form.Submission = map[string]any{}
	}
	if form.CompletedPages == nil {
		form.CompletedPages = []string{}
	}

	query := `
		INSERT INTO forms (id, firm_id, client_id, template_ids, submission, current_page_key,
		                   completed_pages, status, is_public, public_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	return database.DB.QueryRow(ctx, query,
		form.ID, form.FirmID, form.ClientID, form.TemplateIDs, form.Submission, form.CurrentPageKey,
		form.CompletedPages, form.Status, form.IsPublic, form.PublicToken,
	).Scan(&form.CreatedAt, &form.UpdatedAt)
}

// SaveProgress stores the submission, resume page, completed pages and status
// of an existing form. completed_at is stamped the first time the status
// becomes completed and never moves afterwards.
//
// Returns:
//   - error: wraps ErrNotFound when no form has form.ID, database error otherwise
//
// Side Effects:
//   - Sets form.UpdatedAt and form.CompletedAt from the database
func (r *FormRepository) SaveProgress(ctx context.Context, form *models.Form) error {
	query := `
		UPDATE forms
		SET submission = $2,
		    current_page_key = $3,
		    completed_pages = $4,
		    status = $5,
		    completed_at = CASE WHEN $5 = 'completed' THEN COALESCE(completed_at, NOW()) ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at, completed_at
	`

	err := database.DB.QueryRow(ctx, query,
		form.ID, form.Submission, form.CurrentPageKey, form.CompletedPages, form.Status,
	).Scan(&form.UpdatedAt, &form.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("form %s: %w", form.ID, ErrNotFound)
	}
	return err
}

// GetByID retrieves a form by its uuid.
//
// Returns:
//   - *models.Form: The form with its saved progress
//   - error: wraps ErrNotFound when no form has the id, database error otherwise
func (r *FormRepository) GetByID(ctx context.Context, id string) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE id = $1`

	form, err := scanForm(database.DB.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("form %s: %w", id, ErrNotFound)
	}
	return form, err
}

// GetByPublicToken retrieves a public form by its share token. Forms that are
// no longer public are not returned even if the token matches.
func (r *FormRepository) GetByPublicToken(ctx context.Context, token string) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE public_token = $1 AND is_public = TRUE`

	form, err := scanForm(database.DB.QueryRow(ctx, query, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("public form: %w", ErrNotFound)
	}
	return form, err
}

// ListByClient retrieves every form sent to a client, newest first.
func (r *FormRepository) ListByClient(ctx context.Context, clientID int) ([]models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE client_id = $1 ORDER BY updated_at DESC`

	rows, err := database.DB.Query(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []models.Form
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		forms = append(forms, *form)
	}

	return forms, rows.Err()
}

// ListByFirm retrieves the most recently updated forms of a firm for the
// staff dashboard.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - firmID: Tenant whose forms are listed
//   - limit: Maximum number of rows
//
// Database: LEFT JOIN users so public forms (no client) are included
func (r *FormRepository) ListByFirm(ctx context.Context, firmID, limit int) ([]models.FormSummaryView, error) {
	query := `
		SELECT f.id, COALESCE(u.name, ''), f.status, f.is_public, f.updated_at, f.completed_at
		FROM forms f
		LEFT JOIN users u ON u.id = f.client_id
		WHERE f.firm_id = $1
		ORDER BY f.updated_at DESC
		LIMIT $2
	`

	rows, err := database.DB.Query(ctx, query, firmID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []models.FormSummaryView
	for rows.Next() {
		var v models.FormSummaryView
		if err := rows.Scan(&v.FormID, &v.ClientName, &v.Status, &v.IsPublic, &v.UpdatedAt, &v.CompletedAt); err != nil {
			return nil, err
		}
		forms = append(forms, v)
	}

	return forms, rows.Err()
}
