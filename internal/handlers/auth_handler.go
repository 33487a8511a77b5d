package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"media-gallery/internal/middleware"
	"media-gallery/internal/services"
	"media-gallery/internal/utils"
)

type AuthHandler struct {
	auth *services.AuthService
	log  *zap.SugaredLogger
}

func NewAuthHandler(auth *services.AuthService, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var in services.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid json body")
	}
	result, err := h.auth.Register(c.Context(), in)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, result)
}

// Login handles POST /api/auth/login. Failed attempts include how many
// remain before lockout.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid json body")
	}
	identifier := body.Username
	if identifier == "" {
		identifier = body.Email
	}
	result, err := h.auth.Login(c.Context(), identifier, body.Password)
	if err != nil {
		var le *services.LoginError
		if errors.As(err, &le) && le.AttemptsLeft > 0 {
			return c.Status(utils.StatusFromError(err)).JSON(fiber.Map{
				"error":        err.Error(),
				"attemptsLeft": le.AttemptsLeft,
			})
		}
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, result)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	u, err := h.auth.Me(c.Context(), middleware.UserID(c))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, u)
}

// UpdateProfile handles PATCH /api/auth/profile.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	var in services.ProfileUpdate
	if err := c.BodyParser(&in); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid json body")
	}
	u, err := h.auth.UpdateProfile(c.Context(), middleware.UserID(c), in)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, u)
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid json body")
	}
	if err := h.auth.ChangePassword(c.Context(), middleware.UserID(c), body.CurrentPassword, body.NewPassword); err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"success": true})
}
