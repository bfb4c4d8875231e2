package repository

import (
	"context"

	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/models"
)

// AuditRepository appends to and reads the audit trail. Entries are never
// updated or deleted.
//
// Actions written today:
//   - FORM_COMPLETED (ActorID is nil for public visitors)
//   - TEMPLATE_IMPORT, for both imports and definition updates
type AuditRepository struct{}

// NewAuditRepository creates a new instance of AuditRepository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Log inserts entry and fills in its id and server timestamp.
func (r *AuditRepository) Log(ctx context.Context, entry *models.AuditLog) error {
	return database.DB.QueryRow(ctx, `
		INSERT INTO audit_logs (firm_id, actor_id, action, object_type, object_id, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		entry.FirmID, entry.ActorID, entry.Action, entry.ObjectType, entry.ObjectID, entry.IPAddress, entry.UserAgent,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListRecent returns up to limit entries of a firm, newest first. The
// dashboard activity feed asks for 20.
func (r *AuditRepository) ListRecent(ctx context.Context, firmID, limit int) ([]models.AuditLog, error) {
	rows, err := database.DB.Query(ctx, `
		SELECT id, firm_id, actor_id, action, object_type, object_id, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE firm_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, firmID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.FirmID, &e.ActorID, &e.Action, &e.ObjectType, &e.ObjectID,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
