package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/insidebox/backend/internal/chain"
	"github.com/insidebox/backend/internal/config"
	"github.com/insidebox/backend/internal/db"
	"github.com/insidebox/backend/internal/events"
	"github.com/insidebox/backend/internal/logging"
	"github.com/insidebox/backend/internal/repositories"
	"github.com/insidebox/backend/internal/services"
	"go.uber.org/zap"
)

// The worker keeps stored admin roles in line with the on-chain registry
// between logins.
func main() {
	log, err := logging.New(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log = log.With(zap.String("service", "worker"))
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)
	if !cfg.RegistryEnabled() {
		log.Fatal("worker requires REGISTRY_RPC_URL and REGISTRY_CONTRACT_ADDRESS")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, db.PostgresOptions{
		DSN:             cfg.PostgresDSN,
		MaxConns:        2,
		MinConns:        1,
		ConnectAttempts: cfg.DBConnectAttempts,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// The worker may start before the API on a fresh database.
	if err := db.RunMigrations(ctx, pool, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, cfg.DBConnectAttempts, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	registry, err := chain.DialRegistry(ctx, cfg.RegistryRPCURL, cfg.RegistryContractAddress, log)
	if err != nil {
		log.Fatal("failed to dial admin registry", zap.Error(err))
	}

	// Repos
	accountRepo := repositories.NewAccountRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	reconciler := services.NewRoleReconciler(accountRepo, registry, cfg.RegistryTimeout, auditRepo, publisher, log)
	sweeper := services.NewRoleSweeper(accountRepo, reconciler, log)

	log.Info("worker started", zap.Duration("sweep_interval", cfg.RoleSweepInterval))

	sweepTicker := time.NewTicker(cfg.RoleSweepInterval)
	defer sweepTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runSweep(ctx, sweeper, log)
	for {
		select {
		case <-sweepTicker.C:
			runSweep(ctx, sweeper, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runSweep(ctx context.Context, sweeper *services.RoleSweeper, log *zap.Logger) {
	if _, err := sweeper.Sweep(ctx); err != nil {
		log.Error("admin roster sweep failed", zap.Error(err))
	}
}
