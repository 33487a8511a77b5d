package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"media-gallery/internal/auth"
	"media-gallery/internal/utils"
)

const UserIDKey = "userId"

// RequireAuth verifies the bearer token and stashes the user id in locals.
func RequireAuth(jwt *auth.JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return utils.JSONError(c, fiber.StatusUnauthorized, "missing bearer token")
		}
		claims, err := jwt.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				return utils.JSONError(c, fiber.StatusUnauthorized, "token expired")
			}
			return utils.JSONError(c, fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(UserIDKey, claims.UserID)
		return c.Next()
	}
}

// UserID reads the authenticated user id set by RequireAuth.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
