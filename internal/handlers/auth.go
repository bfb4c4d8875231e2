package handlers

import (
	"github.com/avissapr/advisordesk/internal/middleware"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

// AuthHandler handles authentication-related HTTP requests.
// Manages user login, logout, and session lifecycle operations.
type AuthHandler struct {
	store          *session.Store
	authService    *services.AuthService
	security       *middleware.SecurityMiddleware
	securityLogger *security.Logger
}

// NewAuthHandler creates a new instance of AuthHandler.
//
// Parameters:
//   - store: Session store for managing user sessions
//   - authService: Credential checks
//   - sm: Login rate limiting and account lockout
//   - securityLogger: Logger for security events
func NewAuthHandler(store *session.Store, authService *services.AuthService, sm *middleware.SecurityMiddleware, securityLogger *security.Logger) *AuthHandler {
	return &AuthHandler{
		store:          store,
		authService:    authService,
		security:       sm,
		securityLogger: securityLogger,
	}
}

// ShowLogin renders the login page for unauthenticated users.
//
// Template: web/templates/login.html with layouts/blank layout
func (h *AuthHandler) ShowLogin(c *fiber.Ctx) error {
	return c.Render("login", fiber.Map{
		"Title": "Login - AdvisorDesk",
	}, "layouts/blank")
}

// Login authenticates user credentials and creates a session.
//
// Form Data:
//   - email: User's email address for authentication
//   - password: User's password in plain text (hashed during validation)
//
// Side Effects:
//   - Creates a fresh session holding user_id, user_email, user_name,
//     user_role and firm_id on success
//   - Staff are redirected to /dashboard, clients to /forms
//   - Malformed email or password input is rejected with 400
//   - Accounts with an unknown role are refused with 403
//   - Failures count towards rate limiting and account lockout
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var form models.LoginForm
	if err := c.BodyParser(&form); err != nil {
		return h.loginError(c, fiber.StatusBadRequest, "Invalid email or password")
	}

	if err := h.security.LoginRateLimit(form.Email, c.IP()); err != nil {
		return h.loginError(c, fiber.StatusTooManyRequests, err.Error())
	}

	// malformed input never reaches bcrypt
	if err := h.validateLoginForm(&form); err != nil {
		return h.loginError(c, fiber.StatusBadRequest, "Invalid email or password")
	}

	user, err := h.authService.Authenticate(c.UserContext(), form.Email, form.Password)
	if err != nil {
		h.security.RecordLoginFailure(form.Email, c.IP())
		return h.loginError(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	if err := h.security.Validator().ValidateUserRole(user.Role); err != nil {
		h.securityLogger.SecurityEvent(security.EventUnauthorizedAccess, &user.ID, user.Email, c.IP(),
			c.Get(fiber.HeaderUserAgent), map[string]interface{}{"role": user.Role, "reason": err.Error()})
		return h.loginError(c, fiber.StatusForbidden, "This account cannot sign in. Contact your firm administrator.")
	}

	sess, err := h.store.Get(c)
	if err != nil {
		return err
	}
	// new id on login
	if err := sess.Regenerate(); err != nil {
		return err
	}

	sess.Set(middleware.KeyUserID, user.ID)
	sess.Set(middleware.KeyUserEmail, user.Email)
	sess.Set(middleware.KeyUserName, user.Name)
	sess.Set(middleware.KeyUserRole, user.Role)
	sess.Set(middleware.KeyFirmID, user.FirmID)

	if err := sess.Save(); err != nil {
		h.securityLogger.Error("failed to save login session", err)
		return err
	}

	h.security.RecordLoginSuccess(user.Email, c.IP(), user.ID)

	if user.IsStaff() {
		return c.Redirect("/dashboard")
	}
	return c.Redirect("/forms")
}

func (h *AuthHandler) validateLoginForm(form *models.LoginForm) error {
	v := h.security.Validator()
	form.Email = v.SanitizeString(form.Email)
	if err := v.ValidateEmail(form.Email); err != nil {
		return err
	}
	if err := v.ValidateRequired("password", form.Password); err != nil {
		return err
	}
	return v.ValidateLength("password", form.Password, 1, 128)
}

func (h *AuthHandler) loginError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render("login", fiber.Map{
		"Title": "Login - AdvisorDesk",
		"Error": message,
	}, "layouts/blank")
}

// Logout destroys the user session and redirects to login page.
//
// Side Effects:
//   - Destroys session if exists
//   - Logs the logout as a security event
//   - Redirects to /login regardless of session state
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return c.Redirect("/login")
	}

	// Get user info before destroying session for logging
	userID, _ := sess.Get(middleware.KeyUserID).(int)
	userEmail, _ := sess.Get(middleware.KeyUserEmail).(string)

	if userID != 0 {
		h.securityLogger.SecurityEvent(
			security.EventLogout,
			&userID,
			userEmail,
			c.IP(),
			c.Get(fiber.HeaderUserAgent),
			map[string]interface{}{},
		)
	}

	if err := sess.Destroy(); err != nil {
		return err
	}

	return c.Redirect("/login")
}
