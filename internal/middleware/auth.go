// Package middleware provides HTTP middleware functions for authentication and authorization.
// These middleware functions are used to protect routes and enforce role-based access control.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

// Session and context keys shared with the handlers.
const (
	KeyUserID    = "user_id"
	KeyUserRole  = "user_role"
	KeyUserName  = "user_name"
	KeyUserEmail = "user_email"
	KeyFirmID    = "firm_id"
)

// AuthRequired is a middleware that ensures the user is authenticated.
// It checks for a valid session and user_id. Page requests are redirected to
// the login page; API requests (paths under /api) get a 401 JSON error.
//
// Parameters:
//   - store: Session store for managing user sessions
//
// Returns:
//   - fiber.Handler: Middleware function that can be used with app.Use() or route groups
//
// Context Locals Set:
//   - user_id: The authenticated user's ID (int)
//   - user_role: The user's role ("advisor", "firm_admin" or "client")
//   - user_name: The user's display name (string)
//   - user_email: The user's email (string)
//   - firm_id: The firm the user belongs to (int)
//
// Example:
//
//	api := app.Group("/api", middleware.AuthRequired(store))
func AuthRequired(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return unauthenticated(c)
		}

		userID := sess.Get(KeyUserID)
		if userID == nil {
			return unauthenticated(c)
		}

		c.Locals(KeyUserID, userID)
		c.Locals(KeyUserRole, sess.Get(KeyUserRole))
		c.Locals(KeyUserName, sess.Get(KeyUserName))
		c.Locals(KeyUserEmail, sess.Get(KeyUserEmail))
		c.Locals(KeyFirmID, sess.Get(KeyFirmID))

		return c.Next()
	}
}

func unauthenticated(c *fiber.Ctx) error {
	if isAPI(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	return c.Redirect("/login")
}

func isAPI(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/") || strings.HasPrefix(c.Path(), "/public/")
}

// RequireRole is a middleware that ensures the user has one of roles.
// This middleware MUST be used after AuthRequired middleware, as it depends on
// user_role being set in the context.
//
// It returns a 403 Forbidden error if the user's role is not listed.
//
// Example:
//
//	staff := app.Group("/api/templates",
//	    middleware.AuthRequired(store),
//	    middleware.RequireRole("advisor", "firm_admin"))
//
// Security Note:
//
//	Always chain this after AuthRequired to ensure user is authenticated
//	before checking role.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(KeyUserRole).(string)
		if !allowed[role] {
			if isAPI(c) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
			}
			return c.Status(fiber.StatusForbidden).SendString("Access denied")
		}
		return c.Next()
	}
}

// StaffOnly restricts a route to advisors and firm administrators.
func StaffOnly() fiber.Handler {
	return RequireRole("advisor", "firm_admin")
}
