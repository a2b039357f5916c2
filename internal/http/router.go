package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/http/handlers"
	"github.com/otcdesk/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	accountHandler *handlers.AccountHandler,
	dealHandler *handlers.DealHandler,
	deskHandler *handlers.DeskHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public, TON Connect + Proof)
	api.Post("/auth/proof-payload", authHandler.GeneratePayload)
	api.Post("/auth/connect", authHandler.Connect)

	// Rate-limited endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Desk state (public, read-only)
	api.Get("/desk", deskHandler.GetDesk)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Account
	protected.Delete("/auth/connect", authHandler.Disconnect)
	protected.Get("/me", accountHandler.Me)
	protected.Get("/me/balance", accountHandler.Balance)
	protected.Get("/me/deposits", accountHandler.ListDeposits)
	protected.Post("/me/withdraw", accountHandler.Withdraw)

	// Deals
	protected.Post("/deals", deskHandler.NewDeal)
	protected.Get("/deals", dealHandler.ListDeals)
	protected.Get("/deals/:id", dealHandler.GetDeal)
	protected.Post("/deals/:id/prolong", dealHandler.Prolong)
	protected.Post("/deals/:id/terminate", dealHandler.Terminate)
	protected.Post("/deals/:id/closeout", dealHandler.CloseOut)
	protected.Post("/deals/:id/escalate", dealHandler.Escalate)
	protected.Post("/deals/:id/resolve", dealHandler.Resolve)
	protected.Post("/deals/:id/withdraw-seller", dealHandler.WithdrawSellerAsset)
	protected.Post("/deals/:id/withdraw-buyer", dealHandler.WithdrawBuyerAsset)
	protected.Get("/deals/:id/events", dealHandler.GetDealEvents)
	protected.Get("/deals/:id/arbitrator", dealHandler.GetArbitrator)

	// Desk administration
	protected.Post("/desk/contribute", deskHandler.Contribute)
	protected.Post("/desk/withdraw", deskHandler.Withdraw)
	protected.Put("/desk/beneficiary", deskHandler.SetBeneficiary)
	protected.Put("/desk/arbitration-manager", deskHandler.SetArbitrationManager)
	protected.Put("/desk/closeout-credit", deskHandler.SetCloseoutCredit)
	protected.Put("/desk/owner", deskHandler.TransferOwnership)
	protected.Post("/desk/arbitrators", deskHandler.AddArbitrator)
	protected.Delete("/desk/arbitrators/:index", deskHandler.RemoveArbitrator)
	protected.Post("/desk/assign-arbitrator", deskHandler.AssignArbitrator)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
