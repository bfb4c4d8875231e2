// Package models defines the domain entities and data transfer objects for AdvisorDesk.
// It includes database models mapped to PostgreSQL tables, form DTOs for user input,
// and view models for template rendering.
package models

import "time"

// ============================================================================
// Domain Models (Database Entities)
// ============================================================================

// User roles. Advisors and firm administrators are staff; clients only see
// their own forms.
const (
	RoleAdvisor   = "advisor"
	RoleFirmAdmin = "firm_admin"
	RoleClient    = "client"
)

// User represents a system user account with role-based access control.
//
// Database Table: users
// Security Note: PasswordHash should never be exposed in API responses or logs
type User struct {
	ID           int       `db:"id"`            // Primary key, auto-increment
	FirmID       int       `db:"firm_id"`       // Tenant the user belongs to
	Email        string    `db:"email"`         // Unique, used for login
	Name         string    `db:"name"`          // Display name
	Role         string    `db:"role"`          // "advisor", "firm_admin" or "client"
	PasswordHash string    `db:"password_hash"` // bcrypt hashed password
	AvatarPath   *string   `db:"avatar_path"`   // Storage key of the profile picture (nullable)
	CreatedAt    time.Time `db:"created_at"`    // Account creation timestamp
}

// IsStaff reports whether the user authors templates and sends forms.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdvisor || u.Role == RoleFirmAdmin
}

// FormTemplate is a stored form definition plus its PDF overlay layout.
//
// Database Table: form_templates
// Definition holds the template document (pages, fields, conditions) as JSON.
// PDFFormSchema holds the overlay components keyed by id, also JSON.
type FormTemplate struct {
	ID            int       `db:"id"`
	FirmID        int       `db:"firm_id"`
	Name          string    `db:"name"`
	Definition    []byte    `db:"definition"`
	PDFFormSchema []byte    `db:"pdf_form_schema"`
	PDFPath       *string   `db:"pdf_path"`    // Storage key of the uploaded PDF (nullable)
	DraftPages    []byte    `db:"draft_pages"` // Autosaved editor draft (nullable)
	CreatedBy     *int      `db:"created_by"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Form statuses.
const (
	FormStatusDraft      = "draft"
	FormStatusInProgress = "in_progress"
	FormStatusCompleted  = "completed"
)

// Form is one client's instance of one or more templates together with the
// answers collected so far.
//
// Database Table: forms
// Related: FormTemplate (many-to-many through TemplateIDs), User (client)
type Form struct {
	ID             string         `db:"id"` // uuid
	FirmID         int            `db:"firm_id"`
	ClientID       *int           `db:"client_id"` // nil for public forms
	TemplateIDs    []int          `db:"template_ids"`
	Submission     map[string]any `db:"submission"`
	CurrentPageKey string         `db:"current_page_key"`
	CompletedPages []string       `db:"completed_pages"`
	Status         string         `db:"status"`
	IsPublic       bool           `db:"is_public"`
	PublicToken    *string        `db:"public_token"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
}

// IsCompleted reports whether the form has been finalized.
func (f *Form) IsCompleted() bool {
	return f.Status == FormStatusCompleted
}

// AuditLog represents an audit trail entry for compliance and security monitoring.
// Form completions, template imports and overlay edits are logged here.
//
// Database Table: audit_log
// Purpose: Security auditing, compliance reporting, forensic analysis
type AuditLog struct {
	ID         int       // Primary key
	FirmID     *int      // Tenant (nullable for system actions)
	ActorID    *int      // User who performed the action (nullable for public visitors)
	Action     string    // Action type (e.g., "FORM_COMPLETED", "TEMPLATE_IMPORT")
	ObjectType string    // Type of object affected (e.g., "form", "template")
	ObjectID   string    // ID of affected object; forms use uuids
	IPAddress  string    // Source IP address
	UserAgent  string    // Browser/client identifier
	CreatedAt  time.Time // When action occurred
}

// ============================================================================
// Data Transfer Objects (DTOs) - Form Input
// ============================================================================

// LoginForm represents user login credentials from the login form.
type LoginForm struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// StartSessionForm opens a form-filling session. FormID resumes an existing
// form; otherwise TemplateIDs and ClientID describe the form to create on the
// first save.
type StartSessionForm struct {
	FormID      string `json:"formId"`
	TemplateIDs []int  `json:"templateIds"`
	ClientID    int    `json:"clientId"`
	ReadOnly    bool   `json:"readOnly"`
}

// FieldChangeForm is one value change on the active page.
type FieldChangeForm struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// SubmitPageForm submits the active page. Action is "continue", "draft" or
// "skip"; staff must set ConfirmSkip to skip.
type SubmitPageForm struct {
	Action      string         `json:"action"`
	Values      map[string]any `json:"values"`
	ConfirmSkip bool           `json:"confirmSkip"`
}

// ============================================================================
// View Models - Template Rendering
// ============================================================================

// FormSummaryView is one row of the dashboard's form list.
type FormSummaryView struct {
	FormID      string     // Form uuid
	ClientName  string     // Empty for public forms
	Status      string     // "draft", "in_progress" or "completed"
	IsPublic    bool       // Shared through a public token
	UpdatedAt   time.Time  // Last save
	CompletedAt *time.Time // Finalization timestamp (nil until completed)
}

// FirmStats holds the counters shown on the staff dashboard.
type FirmStats struct {
	Templates       int // Templates owned by the firm
	DraftForms      int // Forms created but never advanced past a draft save
	InProgressForms int // Forms with at least one completed page
	CompletedForms  int // Finalized forms
	CompletedLast30 int // Forms finalized in the last 30 days
	PublicFormsOpen int // Public forms not yet completed
}
