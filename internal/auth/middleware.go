package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"exambank/internal/engine"
)

// AuthMiddleware validates the bearer token and stores the User on the
// request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &User{ID: claims.Subject, Roles: claims.Roles})
		return c.Next()
	}
}

// RequireRole lets the request through when the user holds any of roles.
// Admins pass every check.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if user.IsAdmin() {
			return c.Next()
		}
		for _, r := range roles {
			if user.HasRole(r) {
				return c.Next()
			}
		}
		return engine.ForbiddenError("Insufficient role")
	}
}

// RequireAdmin checks the authenticated user has the admin role.
func RequireAdmin() fiber.Handler {
	return RequireRole(RoleAdmin)
}

// GetUser returns the User set by AuthMiddleware, or nil.
func GetUser(c *fiber.Ctx) *User {
	user, _ := c.Locals("user").(*User)
	return user
}
