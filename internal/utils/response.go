package utils

import "github.com/gofiber/fiber/v2"

func JSONSuccess(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(payload)
}

func JSONError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// JSONFromError replies with the status mapped from the error taxonomy.
func JSONFromError(c *fiber.Ctx, err error) error {
	return JSONError(c, StatusFromError(err), err.Error())
}
