package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"media-gallery/internal/middleware"
	"media-gallery/internal/services"
	"media-gallery/internal/utils"
)

type WebAuthnHandler struct {
	wa  *services.WebAuthnService
	log *zap.SugaredLogger
}

func NewWebAuthnHandler(wa *services.WebAuthnService, log *zap.SugaredLogger) *WebAuthnHandler {
	return &WebAuthnHandler{wa: wa, log: log}
}

// RegisterOptions handles POST /api/auth/webauthn/register-options (authenticated).
func (h *WebAuthnHandler) RegisterOptions(c *fiber.Ctx) error {
	opts, err := h.wa.BeginRegistration(c.Context(), middleware.UserID(c))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, opts)
}

// Register handles POST /api/auth/webauthn/register (authenticated).
func (h *WebAuthnHandler) Register(c *fiber.Ctx) error {
	cred, err := h.wa.FinishRegistration(c.Context(), middleware.UserID(c), c.Body())
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	h.log.Infow("passkey registered", "userId", middleware.UserID(c))
	return utils.JSONSuccess(c, fiber.StatusCreated, cred)
}

// LoginOptions handles POST /api/auth/webauthn/login-options.
func (h *WebAuthnHandler) LoginOptions(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.Username) == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "username is required")
	}
	opts, err := h.wa.BeginLogin(c.Context(), body.Username)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, opts)
}

// Login handles POST /api/auth/webauthn/login. The username rides in a query
// param so the body can stay the raw assertion response.
func (h *WebAuthnHandler) Login(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "username is required")
	}
	result, err := h.wa.FinishLogin(c.Context(), username, c.Body())
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, result)
}

// Credentials handles GET /api/auth/webauthn/credentials (authenticated).
func (h *WebAuthnHandler) Credentials(c *fiber.Ctx) error {
	creds, err := h.wa.Credentials(c.Context(), middleware.UserID(c))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, creds)
}

// DeleteCredential handles DELETE /api/auth/webauthn/credentials/:credentialId.
func (h *WebAuthnHandler) DeleteCredential(c *fiber.Ctx) error {
	if err := h.wa.DeleteCredential(c.Context(), middleware.UserID(c), c.Params("credentialId")); err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"success": true})
}
