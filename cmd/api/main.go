package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/becoinapp/becoin-backend/api/routes"
	"github.com/becoinapp/becoin-backend/internal/carts"
	"github.com/becoinapp/becoin-backend/internal/checkout"
	"github.com/becoinapp/becoin-backend/internal/gateway"
	"github.com/becoinapp/becoin-backend/internal/ledger"
	"github.com/becoinapp/becoin-backend/internal/orders"
	"github.com/becoinapp/becoin-backend/internal/wallets"
	"github.com/becoinapp/becoin-backend/pkg/config"
	"github.com/becoinapp/becoin-backend/pkg/db"
	"github.com/becoinapp/becoin-backend/pkg/logger"
	"github.com/becoinapp/becoin-backend/pkg/metrics"
	"github.com/becoinapp/becoin-backend/pkg/migrate"
	"github.com/becoinapp/becoin-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)

	walletsRepo := wallets.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	cartsRepo := carts.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())

	balanceManager, err := wallets.NewManager(walletsRepo)
	exitOnErr(logg, "failed to create balance manager", err)

	ledgerService, err := ledger.NewService(ledgerRepo, engineMetrics)
	exitOnErr(logg, "failed to create ledger service", err)

	walletService, err := wallets.NewService(walletsRepo, balanceManager, ledgerService, dbClient, cfg.Pricing, engineMetrics)
	exitOnErr(logg, "failed to create wallet service", err)

	cartService, err := carts.NewService(cartsRepo, dbClient)
	exitOnErr(logg, "failed to create cart service", err)

	ordersService, err := orders.NewService(ordersRepo, dbClient, balanceManager, ledgerService, engineMetrics)
	exitOnErr(logg, "failed to create orders service", err)

	checkoutService, err := checkout.NewService(cartsRepo, ordersRepo, balanceManager, ledgerService, dbClient, cfg.Pricing, engineMetrics)
	exitOnErr(logg, "failed to create checkout service", err)

	gatewayGuard, err := gateway.NewIdempotencyGuard(redisClient, cfg.Gateway.WebhookIdempotencyTTL, "gateway-events")
	exitOnErr(logg, "failed to create gateway idempotency guard", err)

	gatewayService, err := gateway.NewService(walletService, gatewayGuard)
	exitOnErr(logg, "failed to create gateway service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			cartService,
			checkoutService,
			ordersService,
			walletService,
			ledgerService,
			gatewayService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func exitOnErr(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
