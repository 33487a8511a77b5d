package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"media-gallery/internal/services"
	"media-gallery/internal/utils"
)

type OAuthHandler struct {
	oauth       *services.OAuthService
	frontendURL string
	log         *zap.SugaredLogger
}

func NewOAuthHandler(oauth *services.OAuthService, frontendURL string, log *zap.SugaredLogger) *OAuthHandler {
	return &OAuthHandler{oauth: oauth, frontendURL: frontendURL, log: log}
}

// Start handles GET /api/auth/:provider and redirects to the consent page.
func (h *OAuthHandler) Start(c *fiber.Ctx) error {
	authURL, err := h.oauth.AuthURL(c.Context(), c.Params("provider"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

// Callback handles GET /api/auth/:provider/callback and redirects back to
// the frontend with the token in the fragment-free query (the frontend moves
// it into storage and strips the URL).
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	provider := c.Params("provider")
	result, err := h.oauth.Callback(c.Context(), provider, c.Query("state"), c.Query("code"))
	if err != nil {
		h.log.Warnw("oauth callback failed", "provider", provider, "error", err)
		return c.Redirect(h.frontendURL+"/login?error="+url.QueryEscape(err.Error()), fiber.StatusTemporaryRedirect)
	}
	return c.Redirect(h.frontendURL+"/oauth/callback?token="+url.QueryEscape(result.Token), fiber.StatusTemporaryRedirect)
}
