package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/insidebox/backend/internal/auth"
	"github.com/insidebox/backend/internal/chain"
	"github.com/insidebox/backend/internal/config"
	"github.com/insidebox/backend/internal/db"
	"github.com/insidebox/backend/internal/events"
	apphttp "github.com/insidebox/backend/internal/http"
	"github.com/insidebox/backend/internal/http/handlers"
	"github.com/insidebox/backend/internal/logging"
	"github.com/insidebox/backend/internal/repositories"
	"github.com/insidebox/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, err := logging.New(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, db.PostgresOptions{
		DSN:             cfg.PostgresDSN,
		MaxConns:        int32(cfg.PostgresMaxConns),
		MinConns:        int32(cfg.PostgresMinConns),
		ConnectAttempts: cfg.DBConnectAttempts,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, cfg.DBConnectAttempts, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Admin registry
	var authority chain.Authority = chain.UnavailableAuthority{}
	if cfg.RegistryEnabled() {
		registry, err := chain.DialRegistry(ctx, cfg.RegistryRPCURL, cfg.RegistryContractAddress, log)
		if err != nil {
			log.Fatal("failed to dial admin registry", zap.Error(err))
		}
		authority = registry
		log.Info("admin registry configured", zap.String("contract", cfg.RegistryContractAddress))
	}

	// Repositories
	accountRepo := repositories.NewAccountRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	challengeRepo := repositories.NewChallengeRepo(rdb)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	tokens := auth.NewSessionIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	settings := services.AuthSettings{
		Preambles: services.Preambles{
			Login:        cfg.LoginPreamble,
			Registration: cfg.RegistrationPreamble,
			Link:         cfg.LinkPreamble,
		},
		NonceTTL:          cfg.NonceTTL,
		PasswordMinLength: cfg.PasswordMinLength,
	}
	reconciler := services.NewRoleReconciler(accountRepo, authority, cfg.RegistryTimeout, auditRepo, publisher, log)
	authService := services.NewAuthService(accountRepo, challengeRepo, reconciler, tokens, hasher, auditRepo, publisher, settings, log)
	accountService := services.NewAccountService(accountRepo, challengeRepo, hasher, auditRepo, publisher, settings, log)
	adminService := services.NewAdminService(accountRepo, reconciler, auditRepo, auditRepo, publisher, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	userHandler := handlers.NewUserHandler(accountService, log)
	adminHandler := handlers.NewAdminHandler(adminService, log)
	wsHub := handlers.NewWSHub(tokens, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Error("failed to subscribe to account events", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, tokens, db.NewChecker(pool, rdb),
		authHandler, userHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
