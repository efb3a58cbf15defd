package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-sync/api/routes"
	"github.com/angelmondragon/storefront-sync/internal/backfill"
	"github.com/angelmondragon/storefront-sync/internal/orders"
	ordersync "github.com/angelmondragon/storefront-sync/internal/sync"
	"github.com/angelmondragon/storefront-sync/internal/users"
	woowebhook "github.com/angelmondragon/storefront-sync/internal/webhooks/woocommerce"
	"github.com/angelmondragon/storefront-sync/pkg/config"
	"github.com/angelmondragon/storefront-sync/pkg/db"
	"github.com/angelmondragon/storefront-sync/pkg/instance"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/metrics"
	"github.com/angelmondragon/storefront-sync/pkg/migrate"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/redis"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

const shutdownTimeout = 15 * time.Second

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
	cfg.Service.Kind = "api"

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
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(registry)

	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())

	userService, err := users.NewService(users.ServiceParams{
		Repo:        users.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Outbox:      events,
		Logger:      logg,
		CallTimeout: cfg.Sync.CallTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}
	normalizer, err := orders.NewNormalizer(orders.NormalizerParams{
		Repo:        ordersRepo,
		Users:       userService,
		Tx:          dbClient,
		Outbox:      events,
		Logger:      logg,
		CallTimeout: cfg.Sync.CallTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order normalizer", err)
		os.Exit(1)
	}
	queryService, err := orders.NewQueryService(userService, ordersRepo, cfg.Sync.CallTimeout)
	if err != nil {
		logg.Error(context.Background(), "failed to create order query service", err)
		os.Exit(1)
	}
	trackingService, err := orders.NewTrackingService(ordersRepo, dbClient, events, logg, cfg.Sync.CallTimeout)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking service", err)
		os.Exit(1)
	}

	orchestrator, err := ordersync.NewOrchestrator(ordersync.ServiceParams{
		Orders:    normalizer,
		Customers: userService,
		Logger:    logg,
		Metrics:   syncMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync orchestrator", err)
		os.Exit(1)
	}
	guard, err := woowebhook.NewIdempotencyGuard(redisClient, cfg.Sync.DeliveryTTL, "woocommerce")
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery guard", err)
		os.Exit(1)
	}
	if cfg.WooCommerce.WebhookSecret == "" {
		logg.Warn(context.Background(), "webhook secret not set; every delivery will be rejected")
	}

	params := routes.Params{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Gatherer:    registry,
		SyncMetrics: syncMetrics,
		Sync:        orchestrator,
		Guard:       guard,
		Query:       queryService,
		Tracking:    trackingService,
	}

	if cfg.WooCommerce.Enabled() {
		wooClient, err := woocommerce.NewClient(cfg.WooCommerce, woocommerce.WithLogger(logg))
		if err != nil {
			logg.Error(context.Background(), "failed to create woocommerce client", err)
			os.Exit(1)
		}
		backfillService, err := backfill.NewService(backfill.ServiceParams{
			Source: wooClient,
			Orders: normalizer,
			Logger: logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create backfill service", err)
			os.Exit(1)
		}
		params.Backfill = backfillService
	} else {
		logg.Warn(context.Background(), "woocommerce REST credentials missing; backfill disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logCtx := logg.WithFields(context.Background(), map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"backfill":    params.Backfill != nil,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}
