package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-sync/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-sync/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-sync/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-sync/api/middleware"
	"github.com/angelmondragon/storefront-sync/internal/backfill"
	"github.com/angelmondragon/storefront-sync/internal/orders"
	ordersync "github.com/angelmondragon/storefront-sync/internal/sync"
	pkgauth "github.com/angelmondragon/storefront-sync/pkg/auth"
	"github.com/angelmondragon/storefront-sync/pkg/config"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-sync/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP layer uses.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type SyncHandler interface {
	HandleEvent(ctx context.Context, event ordersync.Event) (ordersync.Result, error)
}

type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type OrderQuery interface {
	GetOrdersForUser(ctx context.Context, email string) (*orders.UserOrders, error)
}

type TrackingUpdater interface {
	UpdateTracking(ctx context.Context, orderNumber, trackingNumber string, status enums.OrderStatus) (*models.Order, error)
}

type BackfillImporter interface {
	ImportForEmail(ctx context.Context, email string, since *time.Time) (backfill.Summary, error)
}

// Params holds everything the router hands to controllers. Backfill is left
// nil when the platform REST credentials are not configured; the route is
// then not mounted.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       RedisStore
	Gatherer    prometheus.Gatherer
	SyncMetrics *metrics.SyncMetrics
	Sync        SyncHandler
	Guard       DeliveryGuard
	Query       OrderQuery
	Tracking    TrackingUpdater
	Backfill    BackfillImporter
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, readinessDeps(p), logg))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/api/webhooks/woocommerce", webhookcontrollers.WooCommerceWebhook(
		p.Sync,
		p.Guard,
		cfg.WooCommerce.WebhookSecret,
		p.SyncMetrics,
		logg,
	))

	lookupPolicy := middleware.RateLimitPolicy{
		Name:   "order-lookup",
		Limit:  cfg.Sync.LookupRateLimit,
		Window: cfg.Sync.LookupRateWindow,
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(lookupPolicy, p.Redis, logg)).
			Get("/orders", ordercontrollers.Lookup(p.Query, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, pkgauth.RoleAdmin, pkgauth.RoleOperator))
		r.Use(middleware.Idempotency(p.Redis, cfg.Sync.HTTPIdempotencyTTL, logg))

		r.Patch("/orders/{orderNumber}/tracking", controllers.AdminUpdateTracking(p.Tracking, logg))
		if p.Backfill != nil {
			r.With(middleware.RequireRole(logg, pkgauth.RoleAdmin)).
				Post("/backfill", controllers.AdminBackfill(p.Backfill, logg))
		}
	})

	return r
}

func readinessDeps(p Params) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["postgres"] = p.DB
	}
	if p.Redis != nil {
		deps["redis"] = p.Redis
	}
	return deps
}
