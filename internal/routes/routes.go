package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/composition"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/config"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/coordinator"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/middleware"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/notification"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/registry"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/settlement"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg          config.Config
	DB           *pgxpool.Pool
	Cache        *redis.Client
	Ledger       chain.Client
	Compositions *composition.Table
	Logger       *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Ledger == nil {
		return fmt.Errorf("ledger client is required")
	}
	if d.Compositions == nil {
		return fmt.Errorf("composition table is required")
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	RegisterHealthRoutes(app, d)

	var store registry.Store
	if d.DB != nil {
		store = registry.NewPostgres(d.DB)
	} else {
		store = registry.NewMemory()
	}

	settlementSvc := settlement.NewService(store, d.Compositions, d.Ledger, d.Logger, d.Cfg.ConfirmTimeout)
	walletSvc := wallet.NewService(store, d.Ledger, d.Logger, d.Cfg.ConfirmTimeout)
	notifier := notification.NewLoggerNotifier(d.Logger)
	coord := coordinator.New(settlementSvc, notifier, d.Logger)

	settlementHandler := coordinator.NewHandler(coord)
	walletHandler := wallet.NewHandler(walletSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterRegistryRoutes(api, store, d.Compositions)
	RegisterChainRoutes(api, d.Ledger)
	api.Post("/wallets", walletHandler.Provision)

	// The mutating settlement endpoints sit behind the idempotency store so a
	// replayed request returns its original response instead of re-settling.
	settlementGroup := api.Group("/settlement")
	settlementGroup.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		settlementGroup.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterSettlementRoutes(settlementGroup, settlementHandler)

	return nil
}
