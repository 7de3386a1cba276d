package http

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/insidebox/backend/internal/config"
	"github.com/insidebox/backend/internal/http/handlers"
	"github.com/insidebox/backend/internal/middleware"
	"github.com/insidebox/backend/internal/rbac"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type HealthChecker interface {
	Check(ctx context.Context) error
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	tokens middleware.TokenParser,
	health HealthChecker,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		if health != nil {
			if err := health.Check(c.UserContext()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
			}
		}
		resp := fiber.Map{"status": "ok"}
		if wsHub != nil {
			resp["ws_connections"] = wsHub.ConnectionCount()
		}
		return c.JSON(resp)
	})

	api := app.Group("/api/v1")

	// Auth (public, rate limited)
	authGroup := api.Group("/auth")
	if rdb != nil {
		authGroup.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log))
	}
	authGroup.Post("/register/challenge", authHandler.RegisterChallenge)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/nonce", authHandler.Nonce)
	authGroup.Post("/login/wallet", authHandler.LoginWallet)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(tokens, log))

	// Account
	me := protected.Group("/me", middleware.RequirePermission(rbac.PermManageProfile))
	me.Get("", userHandler.GetMe)
	me.Put("", userHandler.UpdateMe)
	me.Post("/password", userHandler.ChangePassword)
	me.Post("/wallet/challenge", userHandler.WalletChallenge)
	me.Post("/wallet", userHandler.ChangeWallet)
	me.Post("/switch/wallet", userHandler.SwitchToWallet)
	me.Post("/switch/password", userHandler.SwitchToPassword)

	// Admin
	protected.Put("/admin/role", middleware.RequirePermission(rbac.PermManageRoles), adminHandler.SyncRole)
	protected.Get("/admin/accounts", middleware.RequirePermission(rbac.PermListAccounts), adminHandler.ListAccounts)
	protected.Delete("/admin/accounts/:id", middleware.RequirePermission(rbac.PermDeleteAccounts), adminHandler.DeleteAccount)
	protected.Get("/admin/accounts/:id/audit", middleware.RequirePermission(rbac.PermListAccounts), adminHandler.AccountAudit)

	// WebSocket
	if wsHub != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(wsHub.HandleWS))
	}
}
