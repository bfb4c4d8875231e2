package repository

import (
	"context"

	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/models"
)

// StatsRepository handles statistical queries for dashboard displays.
// These queries aggregate forms and templates per firm.
type StatsRepository struct{}

// NewStatsRepository creates a new instance of StatsRepository.
//
// Returns:
//   - *StatsRepository: Initialized repository instance
func NewStatsRepository() *StatsRepository {
	return &StatsRepository{}
}

// GetFirmStats retrieves aggregated form statistics for a firm's staff dashboard.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - firmID: Tenant the counters are computed for
//
// Returns:
//   - *models.FirmStats: Aggregated statistics, nil if error
//   - error: Database error if query fails, nil on success
//
// Database: Uses COUNT with FILTER aggregations over forms, plus a template subquery
func (r *StatsRepository) GetFirmStats(ctx context.Context, firmID int) (*models.FirmStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM form_templates t WHERE t.firm_id = $1) as templates,
			COUNT(*) FILTER (WHERE f.status = 'draft') as draft_forms,
			COUNT(*) FILTER (WHERE f.status = 'in_progress') as in_progress_forms,
			COUNT(*) FILTER (WHERE f.status = 'completed') as completed_forms,
			COUNT(*) FILTER (WHERE f.status = 'completed'
				AND f.completed_at > NOW() - INTERVAL '30 days') as completed_last_30,
			COUNT(*) FILTER (WHERE f.is_public AND f.status <> 'completed') as public_forms_open
		FROM forms f
		WHERE f.firm_id = $1
	`

	stats := &models.FirmStats{}
	row := database.DB.QueryRow(ctx, query, firmID)

	err := row.Scan(
		&stats.Templates,
		&stats.DraftForms,
		&stats.InProgressForms,
		&stats.CompletedForms,
		&stats.CompletedLast30,
		&stats.PublicFormsOpen,
	)

	if err != nil {
		return nil, err
	}

	return stats, nil
}

// CompletionRate returns the share of a firm's forms that are completed, as a
// percentage (0-100).
func CompletionRate(stats *models.FirmStats) float64 {
	total := stats.DraftForms + stats.InProgressForms + stats.CompletedForms
	if total == 0 {
		return 0
	}
	return float64(stats.CompletedForms) / float64(total) * 100
}
