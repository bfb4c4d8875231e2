// Package security provides centralized security configuration and utilities
// for AdvisorDesk: password and session settings, brute force protection,
// input and upload limits, rate limits and security monitoring thresholds.
package security

import (
	"time"
)

// SecurityConfig holds all security-related configuration values.
// These values are tuned based on OWASP ASVS and NIST guidelines.
type SecurityConfig struct {
	// Password storage
	BcryptCost int // Cost factor for bcrypt hashing (recommended: 12)

	// Session management
	SessionTimeout     time.Duration // Absolute session lifetime
	SessionIdleTimeout time.Duration // Signed-in sessions idle longer than this are dropped
	SessionCookieName  string        // Name of session cookie
	SessionSecure      bool          // Require HTTPS for session cookies
	SessionHTTPOnly    bool          // Prevent JavaScript access to session cookies
	SessionSameSite    string        // CSRF protection via SameSite attribute

	// Brute force protection
	LoginRateLimit          int           // Max login attempts per minute per IP
	AccountLockoutThreshold int           // Failed attempts before account lockout
	AccountLockoutDuration  time.Duration // How long account stays locked

	// Input validation
	MaxTemplateNameLength int   // Maximum characters in a template name
	MaxFieldValueLength   int   // Maximum characters in one submitted text value
	MaxSubmissionSize     int   // Maximum bytes of a JSON request body
	MaxPDFSize            int64 // Maximum PDF upload size in bytes
	MaxAvatarSize         int64 // Maximum avatar upload size in bytes
	QueryTimeout          time.Duration

	// Rate limiting (requests per time window)
	RateLimitLogin       int // Login endpoint, per minute
	RateLimitFormSave    int // Submit/draft/skip, per minute per user
	RateLimitUpload      int // PDF and avatar uploads, per hour per user
	RateLimitPublicStart int // Public form sessions, per minute per IP

	// Security monitoring
	MonitoringInterval      time.Duration // How often counters are reset
	AlertThresholdFailures  int           // Failed logins before alerting
	AlertThresholdTokenMiss int           // Unknown public tokens per IP before alerting
}

// DefaultSecurityConfig returns security configuration with recommended defaults.
// These values comply with OWASP ASVS 4.0 and NIST SP 800-53 guidelines.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		// Bcrypt cost 12 = 2^12 = 4096 iterations
		BcryptCost: 12,

		SessionTimeout:     8 * time.Hour,
		SessionIdleTimeout: 30 * time.Minute,
		SessionCookieName:  "advisordesk_session",
		SessionSecure:      true,  // Requires HTTPS
		SessionHTTPOnly:    true,  // No JavaScript access
		SessionSameSite:    "Lax", // Share links arrive from email clients

		LoginRateLimit:          5,
		AccountLockoutThreshold: 10,
		AccountLockoutDuration:  30 * time.Minute,

		MaxTemplateNameLength: 200,
		MaxFieldValueLength:   10000,
		MaxSubmissionSize:     1024 * 1024,      // 1MB
		MaxPDFSize:            20 * 1024 * 1024, // 20MB
		MaxAvatarSize:         2 * 1024 * 1024,  // 2MB
		QueryTimeout:          30 * time.Second,

		RateLimitLogin:       5,   // per minute
		RateLimitFormSave:    120, // per minute per user
		RateLimitUpload:      30,  // per hour per user
		RateLimitPublicStart: 10,  // per minute per IP

		MonitoringInterval:      5 * time.Minute,
		AlertThresholdFailures:  5,
		AlertThresholdTokenMiss: 20,
	}
}
