package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"media-gallery/internal/utils"
)

const (
	csrfCookie = "csrf_token"
	csrfHeader = "X-CSRF-Token"
	csrfPrefix = "csrf:"
	csrfTTL    = 24 * time.Hour
)

// IssueCSRFToken mints a token, records it in redis and sets the cookie. The
// client echoes it back in the header on mutating requests.
func IssueCSRFToken(ctx context.Context, rdb *redis.Client) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	if err := rdb.Set(ctx, csrfPrefix+token, "1", csrfTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// SetCSRFCookie writes the double-submit cookie. Not HttpOnly: the frontend
// reads it to populate the header.
func SetCSRFCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     csrfCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfTTL.Seconds()),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// VerifyCSRF enforces the double-submit check on mutating methods. Paths in
// exempt skip the check (webauthn and oauth carry their own challenge/state).
func VerifyCSRF(rdb *redis.Client, exempt ...string) fiber.Handler {
	exemptSet := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		exemptSet[p] = true
	}
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		if exemptSet[c.Path()] {
			return c.Next()
		}

		header := c.Get(csrfHeader)
		cookie := c.Cookies(csrfCookie)
		if header == "" || cookie == "" || header != cookie {
			return utils.JSONError(c, fiber.StatusForbidden, "csrf token mismatch")
		}
		_, err := rdb.Get(c.Context(), csrfPrefix+header).Result()
		if errors.Is(err, redis.Nil) {
			return utils.JSONError(c, fiber.StatusForbidden, "csrf token expired")
		}
		if err != nil {
			// redis outage must not take writes down with it
			return c.Next()
		}
		return c.Next()
	}
}
