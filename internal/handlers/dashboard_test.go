package handlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avissapr/advisordesk/internal/handlers"
	"github.com/avissapr/advisordesk/internal/middleware"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDashboard struct {
	statsErr error
}

func (s stubDashboard) GetFirmStats(context.Context, int) (*models.FirmStats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return &models.FirmStats{Templates: 1, InProgressForms: 1, CompletedForms: 1}, nil
}

func (stubDashboard) ListByFirm(context.Context, int, int) ([]models.FormSummaryView, error) {
	return []models.FormSummaryView{
		{FormID: "form-7", ClientName: "Chloe Client", Status: models.FormStatusInProgress, UpdatedAt: time.Now()},
		{FormID: "form-8", IsPublic: true, Status: models.FormStatusDraft, UpdatedAt: time.Now()},
	}, nil
}

func (stubDashboard) ListRecent(context.Context, int, int) ([]models.AuditLog, error) {
	return []models.AuditLog{{Action: "FORM_COMPLETED", ObjectType: "form", ObjectID: "form-6", CreatedAt: time.Now()}}, nil
}

func (stubDashboard) GetByID(_ context.Context, id int) (*models.Firm, error) {
	if id != 3 {
		return nil, repository.ErrNotFound
	}
	return &models.Firm{ID: 3, Name: "Harbor Wealth"}, nil
}

func (stubDashboard) ListClients(context.Context, int) ([]models.User, error) {
	return []models.User{{ID: 4, Name: "Chloe Client", Email: "chloe@example.com", Role: models.RoleClient}}, nil
}

func dashboardApp(t *testing.T, stub stubDashboard) *fiber.App {
	t.Helper()
	logger := security.NewLogger()
	validator := security.NewValidationService(security.DefaultSecurityConfig())
	templates := &memTemplates{rows: map[int]*models.FormTemplate{
		12: {ID: 12, FirmID: 3, Name: "Household", Definition: []byte(householdDefinition)},
	}}
	h := handlers.NewDashboardHandler(stub, stub, stub, stub,
		services.NewTemplateService(templates, nopAudit{}, validator, logger), logger)

	app := fiber.New(fiber.Config{
		Views:             html.New("../../web/templates", ".html"),
		ViewsLayout:       "layouts/main",
		PassLocalsToViews: true,
	})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.KeyUserID, advisor.id)
		c.Locals(middleware.KeyFirmID, advisor.firm)
		c.Locals(middleware.KeyUserRole, advisor.role)
		return c.Next()
	})
	app.Get("/dashboard", h.Dashboard)
	return app
}

func TestDashboardHandler(t *testing.T) {
	res := do(t, dashboardApp(t, stubDashboard{}), "GET", "/dashboard", "")

	require.Equal(t, fiber.StatusOK, res.status, res.raw)
	assert.Contains(t, res.raw, "Harbor Wealth")
	assert.Contains(t, res.raw, `<option value="12">Household</option>`)
	assert.Contains(t, res.raw, "Chloe Client (chloe@example.com)")
	assert.Contains(t, res.raw, `value="form-7"`)
	assert.Contains(t, res.raw, "Share link")
	assert.Contains(t, res.raw, "FORM_COMPLETED")
}

func TestDashboardHandler_StatsFailure(t *testing.T) {
	res := do(t, dashboardApp(t, stubDashboard{statsErr: errors.New("db down")}), "GET", "/dashboard", "")

	require.Equal(t, fiber.StatusOK, res.status, res.raw)
	assert.Contains(t, res.raw, "Harbor Wealth")
}
