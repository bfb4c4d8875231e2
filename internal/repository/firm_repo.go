// Package repository implements the database access layer for AdvisorDesk.
// Repositories are stateless and reach PostgreSQL through database.DB.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// FirmRepository handles tenant records.
type FirmRepository struct{}

// NewFirmRepository creates a new instance of FirmRepository.
//
// Returns:
//   - *FirmRepository: Initialized repository instance
func NewFirmRepository() *FirmRepository {
	return &FirmRepository{}
}

// GetByID retrieves a firm by its primary key.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - id: Firm identifier
//
// Returns:
//   - *models.Firm: The firm
//   - error: wraps ErrNotFound when no firm has the id, database error otherwise
func (r *FirmRepository) GetByID(ctx context.Context, id int) (*models.Firm, error) {
	query := `SELECT id, name, slug, created_at FROM firms WHERE id = $1`

	var firm models.Firm
	err := database.DB.QueryRow(ctx, query, id).Scan(&firm.ID, &firm.Name, &firm.Slug, &firm.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("firm %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &firm, nil
}

// ListAll retrieves all firms with member and template counts.
//
// Database: LEFT JOINs users and form_templates; counts are DISTINCT because
// the two joins multiply rows.
func (r *FirmRepository) ListAll(ctx context.Context) ([]models.FirmWithCounts, error) {
	query := `
		SELECT f.id, f.name, f.slug, f.created_at,
		       COUNT(DISTINCT u.id) as member_count,
		       COUNT(DISTINCT t.id) as template_count
		FROM firms f
		LEFT JOIN users u ON u.firm_id = f.id
		LEFT JOIN form_templates t ON t.firm_id = f.id
		GROUP BY f.id, f.name, f.slug, f.created_at
		ORDER BY f.name
	`

	rows, err := database.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var firms []models.FirmWithCounts
	for rows.Next() {
		var f models.FirmWithCounts
		if err := rows.Scan(&f.ID, &f.Name, &f.Slug, &f.CreatedAt, &f.MemberCount, &f.TemplateCount); err != nil {
			return nil, err
		}
		firms = append(firms, f)
	}

	return firms, rows.Err()
}

// Create inserts a new firm.
//
// Database: Name and slug must be unique (enforced by UNIQUE constraints)
// Side Effects: Populates firm.ID and firm.CreatedAt with database values
func (r *FirmRepository) Create(ctx context.Context, firm *models.Firm) error {
	query := `
		INSERT INTO firms (name, slug)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	return database.DB.QueryRow(ctx, query, firm.Name, firm.Slug).Scan(&firm.ID, &firm.CreatedAt)
}
