package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"media-gallery/internal/utils"
)

// RateLimit caps requests per client IP over a sliding redis window. The
// counter key expires with the window, so idle clients cost nothing. If redis
// is down the request passes; throttling is protection, not a dependency.
func RateLimit(rdb *redis.Client, prefix string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ratelimit:" + prefix + ":" + c.IP()
		ctx := c.Context()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}
		if count > int64(limit) {
			return utils.JSONError(c, fiber.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
