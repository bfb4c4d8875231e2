package handlers_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/avissapr/advisordesk/internal/handlers"
	"github.com/avissapr/advisordesk/internal/middleware"
	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memUsers map[string]*models.User

func (m memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := m[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func newAuthApp(t *testing.T, lockoutThreshold int) *fiber.App {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	users := memUsers{
		"ada@example.com":   {ID: 1, FirmID: 3, Email: "ada@example.com", Name: "Ada", Role: models.RoleAdvisor, PasswordHash: string(hash)},
		"chloe@example.com": {ID: 4, FirmID: 3, Email: "chloe@example.com", Name: "Chloe", Role: models.RoleClient, PasswordHash: string(hash)},
		"olga@example.com":  {ID: 8, FirmID: 3, Email: "olga@example.com", Name: "Olga", Role: "admin", PasswordHash: string(hash)},
	}

	logger := security.NewLogger()
	config := security.DefaultSecurityConfig()
	config.AccountLockoutThreshold = lockoutThreshold
	sm := middleware.NewSecurityMiddleware(logger, config, nil)
	store := session.New()

	h := handlers.NewAuthHandler(store, services.NewAuthService(users, bcrypt.MinCost), sm, logger)

	app := fiber.New(fiber.Config{
		Views:             html.New("../../web/templates", ".html"),
		ViewsLayout:       "layouts/main",
		PassLocalsToViews: true,
	})
	app.Get("/login", h.ShowLogin)
	app.Post("/login", h.Login)
	app.Get("/logout", h.Logout)
	app.Get("/whoami", middleware.AuthRequired(store), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"id":   c.Locals(middleware.KeyUserID),
			"firm": c.Locals(middleware.KeyFirmID),
			"role": c.Locals(middleware.KeyUserRole),
		})
	})
	return app
}

func login(t *testing.T, app *fiber.App, email, password string) response {
	t.Helper()
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return send(t, app, req)
}

func TestAuthHandler_ShowLogin(t *testing.T) {
	app := newAuthApp(t, 10)

	res := do(t, app, "GET", "/login", "")

	assert.Equal(t, fiber.StatusOK, res.status)
	assert.Contains(t, res.raw, `action="/login"`)
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		location string
	}{
		{"staff go to the dashboard", "ada@example.com", "/dashboard"},
		{"clients go to their forms", "chloe@example.com", "/forms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAuthApp(t, 10)

			res := login(t, app, tt.email, "correct horse")

			require.Equal(t, fiber.StatusFound, res.status, res.raw)
			assert.Equal(t, tt.location, res.header.Get("Location"))
		})
	}
}

func TestAuthHandler_SessionCarriesFirm(t *testing.T) {
	app := newAuthApp(t, 10)

	res := login(t, app, "ada@example.com", "correct horse")
	require.Equal(t, fiber.StatusFound, res.status)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Cookie", res.header.Get("Set-Cookie"))
	who := send(t, app, req)

	require.Equal(t, fiber.StatusOK, who.status, who.raw)
	assert.Equal(t, float64(1), who.body["id"])
	assert.Equal(t, float64(3), who.body["firm"])
	assert.Equal(t, "advisor", who.body["role"])
}

func TestAuthHandler_WrongPassword(t *testing.T) {
	app := newAuthApp(t, 10)

	for _, email := range []string{"ada@example.com", "nobody@example.com"} {
		res := login(t, app, email, "wrong")
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Contains(t, res.raw, "Invalid email or password")
	}
}

func TestAuthHandler_MalformedInput(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing email", "", "correct horse"},
		{"not an email", "ada", "correct horse"},
		{"missing password", "ada@example.com", ""},
		{"blank password", "ada@example.com", "   "},
		{"password too long", "ada@example.com", strings.Repeat("p", 129)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAuthApp(t, 1)

			res := login(t, app, tt.email, tt.password)
			assert.Equal(t, fiber.StatusBadRequest, res.status)
			assert.Contains(t, res.raw, "Invalid email or password")

			// rejected input does not count towards the lockout
			res = login(t, app, "ada@example.com", "correct horse")
			assert.Equal(t, fiber.StatusFound, res.status)
		})
	}
}

func TestAuthHandler_UnknownRole(t *testing.T) {
	app := newAuthApp(t, 10)

	res := login(t, app, "olga@example.com", "correct horse")

	assert.Equal(t, fiber.StatusForbidden, res.status)
	assert.Contains(t, res.raw, "cannot sign in")
	assert.Empty(t, res.header.Get("Location"))
}

func TestAuthHandler_Lockout(t *testing.T) {
	app := newAuthApp(t, 3)

	for i := 0; i < 3; i++ {
		res := login(t, app, "ada@example.com", "wrong")
		require.Equal(t, fiber.StatusUnauthorized, res.status)
	}

	// locked even with the right password
	res := login(t, app, "ada@example.com", "correct horse")
	assert.Equal(t, fiber.StatusTooManyRequests, res.status)
	assert.Contains(t, res.raw, "locked")
}

func TestAuthHandler_Logout(t *testing.T) {
	app := newAuthApp(t, 10)
	res := login(t, app, "ada@example.com", "correct horse")
	cookie := res.header.Get("Set-Cookie")

	req := httptest.NewRequest("GET", "/logout", nil)
	req.Header.Set("Cookie", cookie)
	res = send(t, app, req)
	require.Equal(t, fiber.StatusFound, res.status)
	assert.Equal(t, "/login", res.header.Get("Location"))

	req = httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Cookie", cookie)
	res = send(t, app, req)
	assert.Equal(t, fiber.StatusFound, res.status, "session is gone")
}
