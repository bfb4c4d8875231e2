package security

import (
	"bytes"
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// ValidationService provides centralized input validation functions.
// All validation methods return descriptive errors that are safe to show to users.
type ValidationService struct {
	config *SecurityConfig
}

// NewValidationService creates a new validation service with security configuration.
func NewValidationService(config *SecurityConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

// ValidateEmail validates email address format according to RFC 5322.
// Returns error if email is invalid or too long.
func (v *ValidationService) ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}

	if len(email) > 255 {
		return fmt.Errorf("email must be less than 255 characters")
	}

	// Use Go's standard mail.ParseAddress for RFC 5322 compliance
	_, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format")
	}

	return nil
}

// ValidatePassword validates password meets minimum security requirements.
// Requirements: At least 8 characters, contains uppercase, lowercase, and number.
func (v *ValidationService) ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	if len(password) > 128 {
		return fmt.Errorf("password must be less than 128 characters")
	}

	// Check for required character types
	hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
	hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
	hasNumber := regexp.MustCompile(`[0-9]`).MatchString(password)

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}

	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}

	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

// ValidateTemplateName validates template name length and content.
func (v *ValidationService) ValidateTemplateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("template name is required")
	}

	if utf8.RuneCountInString(name) > v.config.MaxTemplateNameLength {
		return fmt.Errorf("template name must be %d characters or less", v.config.MaxTemplateNameLength)
	}

	return nil
}

// ValidateUserRole validates user role is one of the allowed values.
func (v *ValidationService) ValidateUserRole(role string) error {
	if role == "" {
		return fmt.Errorf("role is required")
	}

	allowedRoles := map[string]bool{
		"advisor":    true,
		"firm_admin": true,
		"client":     true,
	}

	if !allowedRoles[role] {
		return fmt.Errorf("invalid role (must be 'advisor', 'firm_admin' or 'client')")
	}

	return nil
}

// ValidateSubmissionValues checks that no submitted text value exceeds the
// configured length. Nested maps and lists (datagrid rows) are checked too.
func (v *ValidationService) ValidateSubmissionValues(values map[string]interface{}) error {
	for key, value := range values {
		if err := v.validateValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (v *ValidationService) validateValue(key string, value interface{}) error {
	switch val := value.(type) {
	case string:
		if utf8.RuneCountInString(val) > v.config.MaxFieldValueLength {
			return fmt.Errorf("%s must be %d characters or less", key, v.config.MaxFieldValueLength)
		}
	case map[string]interface{}:
		for k, item := range val {
			if err := v.validateValue(key+"."+k, item); err != nil {
				return err
			}
		}
	case []interface{}:
		for i, item := range val {
			if err := v.validateValue(fmt.Sprintf("%s[%d]", key, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

// UploadKind selects the rules an uploaded file is checked against.
type UploadKind string

const (
	UploadPDF    UploadKind = "pdf"
	UploadAvatar UploadKind = "avatar"
)

// uploadRule lists the accepted extensions and MIME types of one upload kind.
type uploadRule struct {
	extensions map[string]bool
	mimeTypes  map[string]bool
}

var uploadRules = map[UploadKind]uploadRule{
	UploadPDF: {
		extensions: map[string]bool{".pdf": true},
		mimeTypes:  map[string]bool{"application/pdf": true},
	},
	UploadAvatar: {
		extensions: map[string]bool{".png": true, ".jpg": true, ".jpeg": true},
		mimeTypes:  map[string]bool{"image/png": true, "image/jpeg": true},
	},
}

// ValidateUpload checks an uploaded file's name, declared MIME type and size
// before anything is sent to storage. The error text is safe to show users.
func (v *ValidationService) ValidateUpload(kind UploadKind, filename, contentType string, size int64) error {
	rule, ok := uploadRules[kind]
	if !ok {
		return fmt.Errorf("unsupported upload type")
	}

	if filename == "" {
		return fmt.Errorf("file is required")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !rule.extensions[ext] {
		return fmt.Errorf("file must be one of: %s", strings.Join(sortedKeys(rule.extensions), ", "))
	}

	mimeType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !rule.mimeTypes[mimeType] {
		return fmt.Errorf("file type %q is not allowed", mimeType)
	}

	if size <= 0 {
		return fmt.Errorf("file is empty")
	}

	limit := v.config.MaxPDFSize
	if kind == UploadAvatar {
		limit = v.config.MaxAvatarSize
	}
	if size > limit {
		return fmt.Errorf("file must be %d MB or less", limit/(1024*1024))
	}

	return nil
}

// ValidatePDFHeader checks the magic bytes of an uploaded PDF.
func (v *ValidationService) ValidatePDFHeader(head []byte) error {
	if !bytes.HasPrefix(head, []byte("%PDF-")) {
		return fmt.Errorf("file is not a valid PDF")
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SanitizeString removes potentially dangerous characters from string input.
// Removes control characters and normalizes whitespace.
func (v *ValidationService) SanitizeString(input string) string {
	// Remove control characters (except newline and tab)
	input = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`).ReplaceAllString(input, "")

	// Normalize whitespace
	input = strings.TrimSpace(input)

	return input
}

// ValidateRequired checks if a required field is present and non-empty.
func (v *ValidationService) ValidateRequired(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	return nil
}

// ValidateLength validates string length is within bounds.
func (v *ValidationService) ValidateLength(fieldName string, value string, min, max int) error {
	length := utf8.RuneCountInString(value)

	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}

	if length > max {
		return fmt.Errorf("%s must be %d characters or less", fieldName, max)
	}

	return nil
}
