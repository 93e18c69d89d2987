package routes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/datahub-africa/datahub_pay/internal/auth"
	"github.com/datahub-africa/datahub_pay/internal/config"
	"github.com/datahub-africa/datahub_pay/internal/funding"
	"github.com/datahub-africa/datahub_pay/internal/identity"
	"github.com/datahub-africa/datahub_pay/internal/ledger"
	"github.com/datahub-africa/datahub_pay/internal/middleware"
	"github.com/datahub-africa/datahub_pay/internal/notification"
	"github.com/datahub-africa/datahub_pay/internal/paystack"
	"github.com/datahub-africa/datahub_pay/internal/projection"
	"github.com/datahub-africa/datahub_pay/internal/vending"
	"github.com/datahub-africa/datahub_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	// Storage
	var store ledger.Store
	if d.DB != nil {
		pg := ledger.NewPostgresStore(d.DB)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("ledger schema: %w", err)
		}
		store = pg
	} else {
		store = ledger.NewInMemory()
	}

	var identityRepo identity.Repository
	if d.DB != nil {
		pg := identity.NewPostgresRepository(d.DB)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("identity schema: %w", err)
		}
		identityRepo = pg
	} else {
		identityRepo = identity.NewMemoryRepository()
	}

	// Live projection. With Redis available commits are announced through
	// pub/sub so every instance fans out to its own subscribers.
	feed := projection.NewFeed(store, d.Logger)
	var notifier ledger.Notifier = feed
	if d.Cache != nil {
		bridge := projection.NewRedisBridge(d.Cache, feed, d.Logger)
		go bridge.Run(context.Background())
		notifier = bridge
	}

	engine := ledger.NewEngine(store, notifier)

	// Services and handlers
	notify := notification.NewLoggerNotifier(d.Logger)
	identitySvc := identity.NewService(identityRepo, store)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	authHandler := auth.NewHandler(identitySvc, authSvc)

	verifier := paystack.NewClient(d.Cfg.PaystackBaseURL, d.Cfg.PaystackSecretKey)
	fundingSvc, err := funding.NewService(engine, verifier, notify)
	if err != nil {
		return err
	}
	fundingHandler := funding.NewHandler(fundingSvc)

	vendingSvc := vending.NewService(engine, nil, notify)
	vendingHandler := vending.NewHandler(vendingSvc)

	walletHandler := wallet.NewHandler(store, feed)

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")

	// Public routes
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)
	api.Get("/services/products", vendingHandler.Products)

	// Protected routes
	jwtmw := middleware.JWTAuth(d.Cfg, identityRepo)
	protected := api.Group("", jwtmw)
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected.Post("/auth/logout", authHandler.Logout)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterFundingRoutes(protected, fundingHandler)
	RegisterVendingRoutes(protected, vendingHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
