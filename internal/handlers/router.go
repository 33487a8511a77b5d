package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"media-gallery/internal/auth"
	"media-gallery/internal/middleware"
)

type RouterDeps struct {
	Media    *MediaHandler
	Auth     *AuthHandler
	WebAuthn *WebAuthnHandler
	OAuth    *OAuthHandler
	System   *SystemHandler
	JWT      *auth.JWTManager
	Redis    *redis.Client
}

// SetupRoutes mounts the full API surface under /api. Static segments are
// registered before parameterized ones so /auth/me never falls into
// /auth/:provider.
func SetupRoutes(app *fiber.App, d RouterDeps) {
	api := app.Group("/api")

	api.Get("/health", d.System.Health)
	api.Get("/csrf-token", d.System.CSRFToken)

	api.Use(middleware.VerifyCSRF(d.Redis,
		"/api/auth/webauthn/login-options",
		"/api/auth/webauthn/login",
	))

	authLimit := middleware.RateLimit(d.Redis, "auth", 5, 15*time.Minute)
	requireAuth := middleware.RequireAuth(d.JWT)

	ag := api.Group("/auth")
	ag.Post("/register", authLimit, d.Auth.Register)
	ag.Post("/login", authLimit, d.Auth.Login)
	ag.Get("/me", requireAuth, d.Auth.Me)
	ag.Patch("/profile", requireAuth, d.Auth.UpdateProfile)
	ag.Post("/change-password", requireAuth, d.Auth.ChangePassword)

	wg := ag.Group("/webauthn")
	wg.Post("/register-options", requireAuth, d.WebAuthn.RegisterOptions)
	wg.Post("/register", requireAuth, d.WebAuthn.Register)
	wg.Post("/login-options", authLimit, d.WebAuthn.LoginOptions)
	wg.Post("/login", authLimit, d.WebAuthn.Login)
	wg.Get("/credentials", requireAuth, d.WebAuthn.Credentials)
	wg.Delete("/credentials/:credentialId", requireAuth, d.WebAuthn.DeleteCredential)

	ag.Get("/:provider", d.OAuth.Start)
	ag.Get("/:provider/callback", d.OAuth.Callback)

	mg := api.Group("/media")
	mg.Get("/", d.Media.List)
	mg.Post("/upload", d.Media.Upload)
	mg.Post("/sync", d.Media.Sync)
	mg.Get("/file/:fileId", d.Media.ServeFile)
	mg.Get("/user/:user/favorites", d.Media.UserFavorites)
	mg.Get("/:id", d.Media.Get)
	mg.Delete("/:id", d.Media.Delete)
	mg.Post("/:id/like", d.Media.ToggleLike)
	mg.Get("/:id/likes", d.Media.GetLikes)
	mg.Post("/:id/favorite", d.Media.ToggleFavorite)
	mg.Get("/:id/favorites", d.Media.GetFavorites)
	mg.Post("/:id/comments", d.Media.AddComment)
	mg.Get("/:id/comments", d.Media.GetComments)
	mg.Delete("/:id/comments/:commentId", d.Media.DeleteComment)
}
