// Package models_test provides unit tests for data model structures.
package models_test

import (
	"testing"

	"github.com/avissapr/advisordesk/internal/models"
)

// TestUserModel verifies User model structure and the staff role check.
func TestUserModel(t *testing.T) {
	// Arrange
	user := models.User{
		Email: "advisor@example.com",
		Name:  "Test Advisor",
		Role:  models.RoleAdvisor,
	}

	// Assert
	if user.Email != "advisor@example.com" {
		t.Errorf("Expected email advisor@example.com, got %s", user.Email)
	}

	if !user.IsStaff() {
		t.Errorf("Expected advisor to be staff")
	}

	tests := []struct {
		role  string
		staff bool
	}{
		{models.RoleAdvisor, true},
		{models.RoleFirmAdmin, true},
		{models.RoleClient, false},
		{"", false},
	}
	for _, tt := range tests {
		u := models.User{Role: tt.role}
		if got := u.IsStaff(); got != tt.staff {
			t.Errorf("IsStaff() for role %q = %v, want %v", tt.role, got, tt.staff)
		}
	}
}

// TestFormModel verifies the completion check follows the status column.
func TestFormModel(t *testing.T) {
	form := models.Form{
		ID:          "0b6f5ad4-2c55-4d35-a2c3-0d6b0d7a77e4",
		TemplateIDs: []int{3, 7},
		Submission:  map[string]any{"hasSpouse": true},
		Status:      models.FormStatusInProgress,
	}

	if form.IsCompleted() {
		t.Errorf("Expected in-progress form not to be completed")
	}

	form.Status = models.FormStatusCompleted
	if !form.IsCompleted() {
		t.Errorf("Expected completed form to report completed")
	}

	if len(form.TemplateIDs) != 2 {
		t.Errorf("Expected 2 template ids, got %d", len(form.TemplateIDs))
	}
}
