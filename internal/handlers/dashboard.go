package handlers

import (
	"context"

	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/gofiber/fiber/v2"
)

// FirmStatsSource counts a firm's forms. Satisfied by *repository.StatsRepository.
type FirmStatsSource interface {
	GetFirmStats(ctx context.Context, firmID int) (*models.FirmStats, error)
}

// FormLister lists a firm's recent forms. Satisfied by *repository.FormRepository.
type FormLister interface {
	ListByFirm(ctx context.Context, firmID, limit int) ([]models.FormSummaryView, error)
}

// ActivityLister lists a firm's recent audit entries. Satisfied by *repository.AuditRepository.
type ActivityLister interface {
	ListRecent(ctx context.Context, firmID, limit int) ([]models.AuditLog, error)
}

// FirmDirectory looks up the caller's firm and its clients. Satisfied by
// firmClients over the firm and user repositories.
type FirmDirectory interface {
	GetByID(ctx context.Context, id int) (*models.Firm, error)
	ListClients(ctx context.Context, firmID int) ([]models.User, error)
}

// DashboardHandler renders the staff dashboard.
type DashboardHandler struct {
	stats     FirmStatsSource
	forms     FormLister
	activity  ActivityLister
	firms     FirmDirectory
	templates *services.TemplateService
	logger    *security.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(stats FirmStatsSource, forms FormLister, activity ActivityLister, firms FirmDirectory,
	templates *services.TemplateService, logger *security.Logger) *DashboardHandler {
	return &DashboardHandler{
		stats:     stats,
		forms:     forms,
		activity:  activity,
		firms:     firms,
		templates: templates,
		logger:    logger,
	}
}

// NewFirmDirectory joins the firm and user repositories.
func NewFirmDirectory(firms *repository.FirmRepository, users *repository.UserRepository) FirmDirectory {
	return firmClients{firms, users}
}

type firmClients struct {
	*repository.FirmRepository
	users *repository.UserRepository
}

func (f firmClients) ListClients(ctx context.Context, firmID int) ([]models.User, error) {
	return f.users.ListClients(ctx, firmID)
}

// Dashboard displays firm statistics, the latest forms, the templates and
// recent activity.
//
// Template: dashboard.html
func (h *DashboardHandler) Dashboard(c *fiber.Ctx) error {
	ctx := c.UserContext()
	caller := callerFrom(c)

	stats, err := h.stats.GetFirmStats(ctx, caller.FirmID)
	if err != nil {
		// If stats fail, use empty defaults
		h.logger.Error("failed to load dashboard stats", err)
		stats = &models.FirmStats{}
	}

	forms, err := h.forms.ListByFirm(ctx, caller.FirmID, 20)
	if err != nil {
		return err
	}

	templates, err := h.templates.List(ctx, caller)
	if err != nil {
		return err
	}

	activity, err := h.activity.ListRecent(ctx, caller.FirmID, 10)
	if err != nil {
		h.logger.Error("failed to load recent activity", err)
		activity = nil
	}

	firm, err := h.firms.GetByID(ctx, caller.FirmID)
	if err != nil {
		return err
	}
	clients, err := h.firms.ListClients(ctx, caller.FirmID)
	if err != nil {
		return err
	}

	return c.Render("dashboard", fiber.Map{
		"Title":          "Dashboard - AdvisorDesk",
		"Firm":           firm,
		"Clients":        clients,
		"Stats":          stats,
		"CompletionRate": repository.CompletionRate(stats),
		"Forms":          forms,
		"Templates":      templates,
		"Activity":       activity,
	})
}
