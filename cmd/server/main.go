// Package main is the entry point for the AdvisorDesk server.
// It loads configuration, connects to PostgreSQL, applies migrations and
// serves the form stepper, the template editor and public share links.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avissapr/advisordesk/internal/config"
	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/esign"
	"github.com/avissapr/advisordesk/internal/handlers"
	"github.com/avissapr/advisordesk/internal/middleware"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/avissapr/advisordesk/internal/stepper"
	"github.com/avissapr/advisordesk/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/template/html/v2"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	securityConfig := security.DefaultSecurityConfig()
	securityConfig.MaxPDFSize = cfg.MaxUploadSize

	securityLogger := security.NewLogger()
	securityLogger.SetLevel(security.ParseLogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateDown {
		if err := database.RollbackMigration(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			log.Fatalf("Failed to roll back migration: %v", err)
		}
		return
	}

	// Connect and migrate before anything touches the repositories
	if err := database.Connect(ctx, database.NewConfig(cfg.DatabaseURL)); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		securityLogger.Critical("Failed to apply migrations", err)
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	schemaVersion, _, err := database.GetMigrationVersion(cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		securityLogger.Error("Could not read schema version", err)
	}

	// Alerts go to the security log until an external channel is configured
	securityMiddleware := middleware.NewSecurityMiddleware(securityLogger, securityConfig, nil)
	monitorStop := make(chan struct{})
	defer close(monitorStop)
	securityMiddleware.StartMonitoring(monitorStop)
	validator := securityMiddleware.Validator()

	loginRateLimiter := security.NewRateLimiter(
		securityConfig.RateLimitLogin, // 5 requests
		12*time.Second,                // per minute
	)
	defer loginRateLimiter.Stop()

	saveRateLimiter := security.NewRateLimiter(
		securityConfig.RateLimitFormSave, // 120 requests
		500*time.Millisecond,             // per minute
	)
	defer saveRateLimiter.Stop()

	uploadRateLimiter := security.NewRateLimiter(
		securityConfig.RateLimitUpload, // 30 uploads
		2*time.Minute,                  // per hour
	)
	defer uploadRateLimiter.Stop()

	publicRateLimiter := security.NewRateLimiter(
		securityConfig.RateLimitPublicStart, // 10 sessions
		6*time.Second,                       // per minute
	)
	defer publicRateLimiter.Stop()

	store, err := storage.NewLocalStore(cfg.StorageDir, cfg.StorageURL)
	if err != nil {
		log.Fatalf("Failed to open file storage: %v", err)
	}

	// Both stay nil interfaces when no provider is configured
	var provider handlers.ESignProvider
	var tabs services.TabSource
	if cfg.ESignEnabled() {
		client := esign.NewClient(ctx, esign.Config{
			BaseURL:      cfg.ESignURL,
			TokenURL:     cfg.ESignTokenURL,
			ClientID:     cfg.ESignClientID,
			ClientSecret: cfg.ESignClientSecret,
			AccountID:    cfg.ESignAccount,
			Timeout:      15 * time.Second,
		})
		provider, tabs = client, client
		securityLogger.Info("E-signature provider configured")
	}

	registry := stepper.NewRegistry(cfg.SessionIdle)
	defer registry.Stop()

	// Repositories
	userRepo := repository.NewUserRepository()
	firmRepo := repository.NewFirmRepository()
	formRepo := repository.NewFormRepository()
	templateRepo := repository.NewTemplateRepository()
	auditRepo := repository.NewAuditRepository()
	statsRepo := repository.NewStatsRepository()

	drafts := services.NewAutosaver(templateRepo, cfg.AutosaveInterval, securityLogger)
	drafts.Start()
	defer drafts.Stop()

	// Services
	authService := services.NewAuthService(userRepo, securityConfig.BcryptCost)
	formService := services.NewFormService(formRepo, templateRepo, auditRepo, registry, validator, securityLogger)
	templateService := services.NewTemplateService(templateRepo, auditRepo, validator, securityLogger)
	templateService.Drafts = drafts
	overlayService := services.NewOverlayService(templateRepo, store, tabs, validator, securityLogger)
	overlayService.ReferenceWidth = cfg.PDFReferenceWidth
	avatarService := services.NewAvatarService(userRepo, store, validator, securityLogger)

	engine := html.New(cfg.TemplatesDir, ".html")

	// Only reload templates in development (not production)
	if !cfg.IsProduction() {
		engine.Reload(true)
	}

	app := fiber.New(fiber.Config{
		Views:             engine,
		ViewsLayout:       "layouts/main",
		PassLocalsToViews: true,
		BodyLimit:         int(cfg.MaxUploadSize),
	})

	// Panic recovery (should be first)
	app.Use(recover.New())
	app.Use(securityMiddleware.RequestLogger())
	app.Use(securityMiddleware.SecureHeaders())
	app.Use(securityMiddleware.InputValidation())

	app.Static("/static", "./web/static")

	sessions := session.New(securityMiddleware.SessionConfig(cfg.TLSEnabled()))

	app.Use(securityMiddleware.SecureSession(sessions))
	app.Use(securityMiddleware.SetCSRFToken(sessions))

	// Uploaded PDFs and avatars are only served to signed-in users
	app.Use(cfg.StorageURL, middleware.AuthRequired(sessions))
	app.Static(cfg.StorageURL, cfg.StorageDir)

	authHandler := handlers.NewAuthHandler(sessions, authService, securityMiddleware, securityLogger)
	formHandler := handlers.NewFormHandler(formService, formRepo, securityMiddleware, securityLogger)
	publicHandler := formHandler.Public()
	templateHandler := handlers.NewTemplateHandler(templateService, overlayService, provider, securityLogger)
	dashboardHandler := handlers.NewDashboardHandler(statsRepo, formRepo, auditRepo,
		handlers.NewFirmDirectory(firmRepo, userRepo), templateService, securityLogger)
	accountHandler := handlers.NewAccountHandler(avatarService, securityLogger)

	saveLimit := securityMiddleware.RateLimit(saveRateLimiter, "form_save")
	uploadLimit := securityMiddleware.RateLimit(uploadRateLimiter, "upload")
	publicLimit := securityMiddleware.RateLimit(publicRateLimiter, "public_start")

	// Root route - redirects based on user role
	app.Get("/", func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c)
		if err != nil {
			return c.Redirect("/login")
		}
		role, _ := sess.Get(middleware.KeyUserRole).(string)

		switch role {
		case models.RoleAdvisor, models.RoleFirmAdmin:
			return c.Redirect("/dashboard")
		case models.RoleClient:
			return c.Redirect("/forms")
		default:
			return c.Redirect("/login")
		}
	})

	// ========================================
	// Public Routes (No Authentication)
	// ========================================

	app.Get("/login", authHandler.ShowLogin)
	app.Post("/login",
		securityMiddleware.RateLimit(loginRateLimiter, "login"),
		authHandler.Login,
	)
	app.Get("/logout", authHandler.Logout)

	// Registered ahead of the /forms group so public visitors reach it
	app.Get("/forms/:id/finalize", formHandler.Finalize)

	public := app.Group("/public")
	public.Get("/forms/:token", publicLimit, publicHandler.OpenPublic)
	public.Post("/forms/:token/sessions", publicLimit, publicHandler.StartPublic)
	public.Get("/sessions/:sid", publicHandler.View)
	public.Post("/sessions/:sid/change", publicHandler.Change)
	public.Post("/sessions/:sid/submit", saveLimit, publicHandler.Submit)
	public.Post("/sessions/:sid/back", publicHandler.Back)
	public.Post("/sessions/:sid/next", publicHandler.Next)
	public.Post("/sessions/:sid/goto/:index", publicHandler.GoTo)
	public.Delete("/sessions/:sid", publicHandler.End)

	pages := public.Group("/pages", securityMiddleware.CSRFProtection(sessions))
	pages.Get("/:sid", publicHandler.Page)
	pages.Post("/:sid", saveLimit, publicHandler.PagePost)

	// ========================================
	// Staff Dashboard
	// ========================================

	app.Get("/dashboard",
		middleware.AuthRequired(sessions),
		middleware.StaffOnly(),
		dashboardHandler.Dashboard,
	)

	// ========================================
	// Server-rendered Form Pages (any role)
	// ========================================
	forms := app.Group("/forms",
		middleware.AuthRequired(sessions),
		securityMiddleware.CSRFProtection(sessions),
	)
	forms.Get("/", formHandler.MyForms)
	forms.Post("/sessions", saveLimit, formHandler.StartPage)
	forms.Get("/sessions/:sid", formHandler.Page)
	forms.Post("/sessions/:sid", saveLimit, formHandler.PagePost)

	// ========================================
	// JSON API (Protected)
	// ========================================
	api := app.Group("/api",
		middleware.AuthRequired(sessions),
		securityMiddleware.CSRFProtection(sessions),
	)

	api.Post("/forms/sessions", formHandler.Start)
	api.Get("/forms/sessions/:sid", formHandler.View)
	api.Post("/forms/sessions/:sid/change", formHandler.Change)
	api.Post("/forms/sessions/:sid/submit", saveLimit, formHandler.Submit)
	api.Post("/forms/sessions/:sid/back", formHandler.Back)
	api.Post("/forms/sessions/:sid/next", formHandler.Next)
	api.Post("/forms/sessions/:sid/goto/:index", formHandler.GoTo)
	api.Delete("/forms/sessions/:sid", formHandler.End)
	api.Post("/forms/share", middleware.StaffOnly(), formHandler.Share)

	api.Post("/avatar", uploadLimit, accountHandler.UploadAvatar)

	templates := api.Group("/templates", middleware.StaffOnly())
	templates.Get("/", templateHandler.List)
	templates.Post("/", uploadLimit, templateHandler.Import)
	templates.Get("/:id", templateHandler.Get)
	templates.Put("/:id", templateHandler.Update)
	templates.Post("/:id/draft", templateHandler.SaveDraft)
	templates.Post("/:id/pdf", uploadLimit, templateHandler.UploadPDF)
	templates.Get("/:id/overlay", templateHandler.Layout)
	templates.Post("/:id/overlay", templateHandler.Drop)
	templates.Post("/:id/overlay/import", templateHandler.ImportTabs)
	templates.Post("/:id/overlay/:fid/move", templateHandler.Move)
	templates.Post("/:id/overlay/:fid/resize", templateHandler.Resize)
	templates.Post("/:id/overlay/:fid/duplicate", templateHandler.Duplicate)
	templates.Put("/:id/overlay/:fid", templateHandler.UpdateProperties)
	templates.Delete("/:id/overlay/:fid", templateHandler.DeleteOverlay)

	esignRoutes := api.Group("/esign", middleware.StaffOnly())
	esignRoutes.Get("/templates", templateHandler.ESignTemplates)
	esignRoutes.Get("/templates/:type/:id/tabs", templateHandler.ESignTabs)

	// ========================================
	// Start HTTP Server
	// ========================================
	go func() {
		<-ctx.Done()
		securityLogger.Info("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			securityLogger.Error("Shutdown did not complete", err)
		}
	}()

	fmt.Printf("AdvisorDesk server starting on %s (%s)\n", cfg.Address(), cfg.Env)
	securityLogger.InfoWith("Server started", map[string]interface{}{
		"address":        cfg.Address(),
		"schema_version": schemaVersion,
		"tls":            cfg.TLSEnabled(),
		"esign":          cfg.ESignEnabled(),
		"session_idle":   cfg.SessionIdle.String(),
		"autosave_every": cfg.AutosaveInterval.String(),
	})

	if cfg.TLSEnabled() {
		err = app.ListenTLS(cfg.Address(), cfg.TLSCert, cfg.TLSKey)
	} else {
		err = app.Listen(cfg.Address())
	}
	if err != nil {
		securityLogger.Critical("Failed to start server", err)
		log.Printf("Failed to start server: %v", err)
	}
}
