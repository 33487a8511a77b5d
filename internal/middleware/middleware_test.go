package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"media-gallery/internal/auth"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	rdb, _ := newTestRedis(t)

	app := fiber.New()
	app.Post("/login", RateLimit(rdb, "auth", 3, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", resp.StatusCode)
	}
}

func TestRateLimitWindowExpires(t *testing.T) {
	rdb, mr := newTestRedis(t)

	app := fiber.New()
	app.Post("/login", RateLimit(rdb, "auth", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Test(httptest.NewRequest("POST", "/login", nil))
	resp, _ := app.Test(httptest.NewRequest("POST", "/login", nil))
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}

	mr.FastForward(2 * time.Minute)
	resp, _ = app.Test(httptest.NewRequest("POST", "/login", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected fresh window after expiry, got %d", resp.StatusCode)
	}
}

func TestVerifyCSRF(t *testing.T) {
	rdb, _ := newTestRedis(t)

	app := fiber.New()
	app.Use(VerifyCSRF(rdb, "/exempt"))
	handler := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/read", handler)
	app.Post("/write", handler)
	app.Post("/exempt", handler)

	// reads pass without a token
	resp, _ := app.Test(httptest.NewRequest("GET", "/read", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("GET should bypass csrf, got %d", resp.StatusCode)
	}

	// writes without the pair are rejected
	resp, _ = app.Test(httptest.NewRequest("POST", "/write", nil))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", resp.StatusCode)
	}

	// exempt paths skip the check
	resp, _ = app.Test(httptest.NewRequest("POST", "/exempt", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("exempt path should pass, got %d", resp.StatusCode)
	}

	// the issued pair passes
	token, err := IssueCSRFToken(context.Background(), rdb)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest("POST", "/write", nil)
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with matching pair, got %d", resp.StatusCode)
	}

	// mismatched header and cookie fail
	req = httptest.NewRequest("POST", "/write", nil)
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "other"})
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 on mismatch, got %d", resp.StatusCode)
	}
}

func TestRequireAuth(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", time.Hour)

	app := fiber.New()
	app.Get("/me", RequireAuth(jwt), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c))
	})

	resp, _ := app.Test(httptest.NewRequest("GET", "/me", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	token, err := jwt.Generate("user-1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}
