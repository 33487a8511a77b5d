package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"media-gallery/internal/auth"
	"media-gallery/internal/cache"
	"media-gallery/internal/config"
	"media-gallery/internal/events"
	"media-gallery/internal/handlers"
	"media-gallery/internal/repository"
	"media-gallery/internal/services"
	"media-gallery/internal/storage"
	"media-gallery/internal/utils"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// connecting is lazy, so this only fails on a bad URI; an unreachable
	// primary just means cache-only mode
	mongoClient, err := repository.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		logger.Fatalw("invalid mongodb uri", "error", err)
	}
	if !repository.Ping(ctx, mongoClient) {
		logger.Warnw("primary store not responding, starting in cache-only mode")
	}

	cacheStore, err := cache.Open(cfg.SQLite.Path)
	if err != nil {
		logger.Fatalw("open cache", "error", err)
	}
	defer cacheStore.Close()

	var blobs storage.BlobStore
	switch cfg.Storage.Driver {
	case "s3":
		blobs, err = storage.NewS3Store(ctx, cfg.Storage.Region, cfg.Storage.Bucket)
		if err != nil {
			logger.Fatalw("init s3 storage", "error", err)
		}
	default:
		blobs, err = storage.NewGridFSStore(mongoClient, cfg.Mongo.Database, cfg.Storage.Bucket)
		if err != nil {
			logger.Fatalw("init gridfs storage", "error", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	mediaRepo := repository.NewMongoMediaRepo(mongoClient, cfg.Mongo.Database, cfg.Mongo.Collection)
	userRepo := repository.NewMongoUserRepo(mongoClient, cfg.Mongo.Database, cfg.Mongo.Users)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.TokenTTL)

	mediaService := services.NewMediaService(cacheStore, mediaRepo, blobs, publisher, logger, services.MediaServiceConfig{
		MaxFiles:      cfg.Upload.MaxFiles,
		MaxFileSize:   cfg.MaxFileSize,
		TrustNonEmpty: cfg.Cache.TrustNonEmpty,
	})
	defer mediaService.Close()

	authService := services.NewAuthService(userRepo, jwtManager, services.AuthConfig{
		MaxAttempts:   cfg.Auth.MaxAttempts,
		LockoutWindow: cfg.LockoutWindow,
	})
	webauthnService, err := services.NewWebAuthnService(userRepo, rdb, jwtManager, services.WebAuthnConfig{
		RPID:         cfg.WebAuthn.RPID,
		RPName:       cfg.WebAuthn.RPName,
		RPOrigin:     cfg.WebAuthn.RPOrigin,
		ChallengeTTL: cfg.ChallengeTTL,
	})
	if err != nil {
		logger.Fatalw("init webauthn", "error", err)
	}
	oauthService := services.NewOAuthService(userRepo, rdb, jwtManager,
		services.OAuthProviderConfig(cfg.OAuth.Google),
		services.OAuthProviderConfig(cfg.OAuth.GitHub),
	)

	app := fiber.New(fiber.Config{
		AppName:   "media-gallery",
		BodyLimit: int(cfg.MaxFileSize) * (cfg.Upload.MaxFiles + 1),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return utils.JSONError(c, code, err.Error())
		},
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.FrontendURL,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-CSRF-Token",
	}))

	handlers.SetupRoutes(app, handlers.RouterDeps{
		Media:    handlers.NewMediaHandler(mediaService, logger),
		Auth:     handlers.NewAuthHandler(authService, logger),
		WebAuthn: handlers.NewWebAuthnHandler(webauthnService, logger),
		OAuth:    handlers.NewOAuthHandler(oauthService, cfg.App.FrontendURL, logger),
		System:   handlers.NewSystemHandler(mongoClient, cacheStore, rdb),
		JWT:      jwtManager,
		Redis:    rdb,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logger.Infow("starting server", "addr", addr, "env", cfg.App.Env)
		if err := app.Listen(addr); err != nil {
			logger.Fatalw("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infow("shutting down", "timeout", cfg.ShutdownTimeout)
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Errorw("shutdown", "error", err)
	}
	mediaService.FlushMirror()
	if mongoClient != nil {
		_ = mongoClient.Disconnect(context.Background())
	}
	logger.Infow("bye")
}
