package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/events"
	apphttp "github.com/otcdesk/backend/internal/http"
	"github.com/otcdesk/backend/internal/http/handlers"
	"github.com/otcdesk/backend/internal/repositories"
	"github.com/otcdesk/backend/internal/services"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	dealRepo := repositories.NewDealRepo(pool)
	deskRepo := repositories.NewDeskRepo(pool)
	accountRepo := repositories.NewAccountRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	depositRepo := repositories.NewDepositRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	dealService := services.NewDealService(pool, dealRepo, deskRepo, accountRepo, payoutRepo, auditRepo, publisher, cfg, log)
	deskService := services.NewDeskService(pool, deskRepo, dealRepo, accountRepo, payoutRepo, auditRepo, publisher, cfg, log)
	accountService := services.NewAccountService(pool, accountRepo, payoutRepo, depositRepo, auditRepo, publisher, cfg, log)

	// Seed the desk row and internal accounts on first start.
	if err := deskService.Bootstrap(ctx); err != nil {
		log.Fatal("failed to bootstrap desk", zap.Error(err))
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(accountService, log)
	accountHandler := handlers.NewAccountHandler(accountService, cfg, log)
	dealHandler := handlers.NewDealHandler(dealService, log)
	deskHandler := handlers.NewDeskHandler(deskService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, accountHandler, dealHandler, deskHandler, wsHub)

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
