package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestValidator() *ValidationService {
	return NewValidationService(DefaultSecurityConfig())
}

func TestValidateUpload(t *testing.T) {
	v := newTestValidator()
	cfg := DefaultSecurityConfig()

	tests := []struct {
		name        string
		kind        UploadKind
		filename    string
		contentType string
		size        int64
		wantErr     string
	}{
		{"pdf ok", UploadPDF, "agreement.pdf", "application/pdf", 1024, ""},
		{"pdf upper ext", UploadPDF, "AGREEMENT.PDF", "application/pdf; charset=binary", 1024, ""},
		{"pdf wrong ext", UploadPDF, "agreement.docx", "application/pdf", 1024, "file must be one of"},
		{"pdf wrong mime", UploadPDF, "agreement.pdf", "text/html", 1024, "not allowed"},
		{"pdf empty", UploadPDF, "agreement.pdf", "application/pdf", 0, "empty"},
		{"pdf too big", UploadPDF, "agreement.pdf", "application/pdf", cfg.MaxPDFSize + 1, "MB or less"},
		{"avatar png", UploadAvatar, "me.png", "image/png", 2048, ""},
		{"avatar jpeg", UploadAvatar, "me.jpeg", "image/jpeg", 2048, ""},
		{"avatar gif", UploadAvatar, "me.gif", "image/gif", 2048, "file must be one of"},
		{"avatar too big", UploadAvatar, "me.png", "image/png", cfg.MaxAvatarSize + 1, "MB or less"},
		{"no file", UploadAvatar, "", "image/png", 10, "required"},
		{"unknown kind", UploadKind("zip"), "a.zip", "application/zip", 10, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateUpload(tt.kind, tt.filename, tt.contentType, tt.size)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidatePDFHeader(t *testing.T) {
	v := newTestValidator()
	assert.NoError(t, v.ValidatePDFHeader([]byte("%PDF-1.7\n")))
	assert.Error(t, v.ValidatePDFHeader([]byte("<html>")))
	assert.Error(t, v.ValidatePDFHeader(nil))
}

func TestValidateUserRole(t *testing.T) {
	v := newTestValidator()
	for _, role := range []string{"advisor", "firm_admin", "client"} {
		assert.NoError(t, v.ValidateUserRole(role), role)
	}
	assert.Error(t, v.ValidateUserRole(""))
	assert.Error(t, v.ValidateUserRole("admin"))
}

func TestValidateLoginFields(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.ValidateEmail("ada@example.com"))
	assert.EqualError(t, v.ValidateEmail(""), "email is required")
	assert.EqualError(t, v.ValidateEmail("ada.example.com"), "invalid email format")
	assert.Error(t, v.ValidateEmail(strings.Repeat("a", 250)+"@example.com"))

	assert.NoError(t, v.ValidateRequired("password", "secret"))
	assert.EqualError(t, v.ValidateRequired("password", ""), "password is required")
	assert.EqualError(t, v.ValidateRequired("password", " \t"), "password cannot be empty")

	assert.NoError(t, v.ValidateLength("password", "héllo", 5, 5), "length counts runes")
	assert.EqualError(t, v.ValidateLength("password", "abc", 4, 10), "password must be at least 4 characters")
	assert.EqualError(t, v.ValidateLength("password", "abcdef", 1, 5), "password must be 5 characters or less")
}

func TestValidateTemplateName(t *testing.T) {
	v := newTestValidator()
	assert.NoError(t, v.ValidateTemplateName("Household profile"))
	assert.Error(t, v.ValidateTemplateName("   "))
	assert.Error(t, v.ValidateTemplateName(strings.Repeat("x", DefaultSecurityConfig().MaxTemplateNameLength+1)))
}

func TestValidateSubmissionValues(t *testing.T) {
	v := newTestValidator()
	long := strings.Repeat("a", DefaultSecurityConfig().MaxFieldValueLength+1)

	assert.NoError(t, v.ValidateSubmissionValues(map[string]interface{}{
		"firstName": "Ada",
		"hasSpouse": true,
		"income":    120000.5,
	}))

	err := v.ValidateSubmissionValues(map[string]interface{}{"notes": long})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "notes")
	}

	err = v.ValidateSubmissionValues(map[string]interface{}{
		"accounts": []interface{}{
			map[string]interface{}{"name": "Brokerage"},
			map[string]interface{}{"name": long},
		},
	})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "accounts[1].name")
	}
}

func TestValidatePassword(t *testing.T) {
	v := newTestValidator()
	assert.NoError(t, v.ValidatePassword("Str0ngPass"))
	assert.Error(t, v.ValidatePassword("short1A"))
	assert.Error(t, v.ValidatePassword("alllowercase1"))
	assert.Error(t, v.ValidatePassword("NoNumbersHere"))
}

func TestSanitizeString(t *testing.T) {
	v := newTestValidator()
	assert.Equal(t, "hello world", v.SanitizeString("  hello\x00 world\x7f "))
}
