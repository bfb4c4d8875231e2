package models

import "time"

// Firm is a tenant: an advisory practice with its own users, templates and forms.
//
// Database: firms table
type Firm struct {
	ID        int       `db:"id"`         // Primary key, auto-increment
	Name      string    `db:"name"`       // Display name (unique)
	Slug      string    `db:"slug"`       // URL-safe identifier used in public links
	CreatedAt time.Time `db:"created_at"` // Timestamp when the firm was created
}

// FirmWithCounts extends Firm with member and template counts for display purposes.
type FirmWithCounts struct {
	Firm
	MemberCount   int `db:"member_count"`
	TemplateCount int `db:"template_count"`
}
