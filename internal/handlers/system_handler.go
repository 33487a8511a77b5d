package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"media-gallery/internal/cache"
	"media-gallery/internal/middleware"
	"media-gallery/internal/repository"
	"media-gallery/internal/utils"
)

type SystemHandler struct {
	mongo *mongo.Client
	cache *cache.Store
	rdb   *redis.Client
}

func NewSystemHandler(mc *mongo.Client, cs *cache.Store, rdb *redis.Client) *SystemHandler {
	return &SystemHandler{mongo: mc, cache: cs, rdb: rdb}
}

// Health handles GET /api/health. The service is healthy whenever the cache
// answers; primary-store state is reported, not required.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	primary := "down"
	if repository.Ping(c.Context(), h.mongo) {
		primary = "up"
	}
	cacheState := "up"
	if err := h.cache.Ping(c.Context()); err != nil {
		cacheState = "down"
	}
	status := fiber.StatusOK
	if cacheState == "down" {
		status = fiber.StatusServiceUnavailable
	}
	return utils.JSONSuccess(c, status, fiber.Map{
		"status":  "ok",
		"primary": primary,
		"cache":   cacheState,
	})
}

// CSRFToken handles GET /api/csrf-token: mints the double-submit token and
// sets its cookie.
func (h *SystemHandler) CSRFToken(c *fiber.Ctx) error {
	token, err := middleware.IssueCSRFToken(c.Context(), h.rdb)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "could not issue token")
	}
	middleware.SetCSRFCookie(c, token)
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"csrfToken": token})
}
