package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var formColumnNames = []string{
	"id", "firm_id", "client_id", "template_ids", "submission", "current_page_key",
	"completed_pages", "status", "is_public", "public_token", "created_at", "updated_at", "completed_at",
}

// TestFormRepository_Create verifies a new form gets an id, draft status and
// empty progress before the insert.
func TestFormRepository_Create(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	mock := newMockDB(t)

	clientID := 4
	form := &models.Form{
		FirmID:      3,
		ClientID:    &clientID,
		TemplateIDs: []int{12},
	}

	mock.ExpectQuery("INSERT INTO forms").
		WithArgs(pgxmock.AnyArg(), 3, &clientID, []int{12}, map[string]any{}, "",
			[]string{}, models.FormStatusDraft, false, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(testTime, testTime))

	// Act
	err := repository.NewFormRepository().Create(context.Background(), form)

	// Assert
	require.NoError(t, err)
	assert.Len(t, form.ID, 36, "a uuid should be assigned")
	assert.Equal(t, models.FormStatusDraft, form.Status)
	assert.Equal(t, testTime, form.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestFormRepository_SaveProgress covers the update and the not-found mapping.
func TestFormRepository_SaveProgress(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mockSetup func(pgxmock.PgxPoolIface, *models.Form)
		notFound  bool
	}{
		{
			name: "completed form gets timestamp",
			mockSetup: func(mock pgxmock.PgxPoolIface, f *models.Form) {
				mock.ExpectQuery("UPDATE forms(.+)SET submission").
					WithArgs(f.ID, f.Submission, "review", []string{"contact", "review"}, models.FormStatusCompleted).
					WillReturnRows(pgxmock.NewRows([]string{"updated_at", "completed_at"}).AddRow(testTime, &testTime))
			},
		},
		{
			name: "unknown form",
			mockSetup: func(mock pgxmock.PgxPoolIface, f *models.Form) {
				mock.ExpectQuery("UPDATE forms").
					WithArgs(f.ID, f.Submission, "review", []string{"contact", "review"}, models.FormStatusCompleted).
					WillReturnError(pgx.ErrNoRows)
			},
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			mock := newMockDB(t)
			form := &models.Form{
				ID:             "0b6f5ad4-2c55-4d35-a2c3-0d6b0d7a77e4",
				Submission:     map[string]any{"firstName": "Ada"},
				CurrentPageKey: "review",
				CompletedPages: []string{"contact", "review"},
				Status:         models.FormStatusCompleted,
			}
			tt.mockSetup(mock, form)

			// Act
			err := repository.NewFormRepository().SaveProgress(context.Background(), form)

			// Assert
			if tt.notFound {
				assert.ErrorIs(t, err, repository.ErrNotFound)
			} else {
				require.NoError(t, err)
				require.NotNil(t, form.CompletedAt)
				assert.Equal(t, testTime, *form.CompletedAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// TestFormRepository_GetByID verifies every column is scanned into the form.
func TestFormRepository_GetByID(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	mock := newMockDB(t)

	clientID := 4
	rows := pgxmock.NewRows(formColumnNames).
		AddRow("f-1", 3, &clientID, []int{12, 13}, map[string]any{"hasSpouse": true}, "spouse",
			[]string{"contact"}, models.FormStatusInProgress, false, (*string)(nil), testTime, testTime, (*time.Time)(nil))
	mock.ExpectQuery("SELECT(.+)FROM forms WHERE id").
		WithArgs("f-1").
		WillReturnRows(rows)

	form, err := repository.NewFormRepository().GetByID(context.Background(), "f-1")

	require.NoError(t, err)
	assert.Equal(t, []int{12, 13}, form.TemplateIDs)
	assert.Equal(t, true, form.Submission["hasSpouse"])
	assert.Equal(t, "spouse", form.CurrentPageKey)
	assert.Equal(t, []string{"contact"}, form.CompletedPages)
	assert.False(t, form.IsCompleted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestFormRepository_GetByID_NotFound verifies the not-found mapping.
func TestFormRepository_GetByID_NotFound(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectQuery("SELECT(.+)FROM forms WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	form, err := repository.NewFormRepository().GetByID(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, form)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestFormRepository_GetByPublicToken verifies lookups are limited to public forms.
func TestFormRepository_GetByPublicToken(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	mock := newMockDB(t)

	token := "tok-123"
	rows := pgxmock.NewRows(formColumnNames).
		AddRow("f-2", 3, (*int)(nil), []int{12}, map[string]any{}, "",
			[]string{}, models.FormStatusDraft, true, &token, testTime, testTime, (*time.Time)(nil))
	mock.ExpectQuery("SELECT(.+)FROM forms WHERE public_token(.+)is_public = TRUE").
		WithArgs("tok-123").
		WillReturnRows(rows)

	form, err := repository.NewFormRepository().GetByPublicToken(context.Background(), "tok-123")

	require.NoError(t, err)
	assert.True(t, form.IsPublic)
	assert.Nil(t, form.ClientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestFormRepository_ListByFirm verifies the dashboard listing.
func TestFormRepository_ListByFirm(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	mock := newMockDB(t)

	rows := pgxmock.NewRows([]string{"id", "client_name", "status", "is_public", "updated_at", "completed_at"}).
		AddRow("f-1", "Ada Client", models.FormStatusCompleted, false, testTime, &testTime).
		AddRow("f-2", "", models.FormStatusDraft, true, testTime, (*time.Time)(nil))
	mock.ExpectQuery("SELECT(.+)FROM forms f(.+)LEFT JOIN users u").
		WithArgs(3, 20).
		WillReturnRows(rows)

	forms, err := repository.NewFormRepository().ListByFirm(context.Background(), 3, 20)

	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "Ada Client", forms[0].ClientName)
	assert.True(t, forms[1].IsPublic)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestFormRepository_ListByClient verifies a client's forms are scanned.
func TestFormRepository_ListByClient(t *testing.T) {
	testTime := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	mock := newMockDB(t)

	clientID := 4
	rows := pgxmock.NewRows(formColumnNames).
		AddRow("f-1", 3, &clientID, []int{12}, map[string]any{}, "", []string{},
			models.FormStatusDraft, false, (*string)(nil), testTime, testTime, (*time.Time)(nil))
	mock.ExpectQuery("SELECT(.+)FROM forms WHERE client_id").
		WithArgs(4).
		WillReturnRows(rows)

	forms, err := repository.NewFormRepository().ListByClient(context.Background(), 4)

	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, "f-1", forms[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
