package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	WooCommerce  WooCommerceConfig
	Sync         SyncConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects production configs that would accept unsigned webhooks
// or talk to the store without a timeout.
func (c *Config) Validate() error {
	if c.Sync.CallTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncCallTimeout)
	}
	if !c.App.IsProd() {
		return nil
	}
	missing := []string{}
	if strings.TrimSpace(c.WooCommerce.WebhookSecret) == "" {
		missing = append(missing, EnvWooWebhookSecret)
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		missing = append(missing, EnvJWTSecret)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required production settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig secures the admin routes. Tokens are minted by the operator
// tooling; this service only verifies them.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront"`
}

type WooCommerceConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_WC_BASE_URL"`
	ConsumerKey    string        `envconfig:"STOREFRONT_WC_CONSUMER_KEY"`
	ConsumerSecret string        `envconfig:"STOREFRONT_WC_CONSUMER_SECRET"`
	WebhookSecret  string        `envconfig:"STOREFRONT_WC_WEBHOOK_SECRET"`
	PerPage        int           `envconfig:"STOREFRONT_WC_PER_PAGE" default:"50"`
	HTTPTimeout    time.Duration `envconfig:"STOREFRONT_WC_HTTP_TIMEOUT" default:"15s"`
}

// Enabled reports whether the REST API credentials are present.
func (w WooCommerceConfig) Enabled() bool {
	return strings.TrimSpace(w.BaseURL) != "" &&
		strings.TrimSpace(w.ConsumerKey) != "" &&
		strings.TrimSpace(w.ConsumerSecret) != ""
}

type SyncConfig struct {
	CallTimeout        time.Duration `envconfig:"STOREFRONT_SYNC_CALL_TIMEOUT" default:"5s"`
	DeliveryTTL        time.Duration `envconfig:"STOREFRONT_SYNC_DELIVERY_TTL" default:"72h"`
	LookupRateWindow   time.Duration `envconfig:"STOREFRONT_SYNC_LOOKUP_RATE_WINDOW" default:"1m"`
	LookupRateLimit    int           `envconfig:"STOREFRONT_SYNC_LOOKUP_RATE_LIMIT" default:"30"`
	HTTPIdempotencyTTL time.Duration `envconfig:"STOREFRONT_SYNC_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic    string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
	CustomersTopic string `envconfig:"STOREFRONT_PUBSUB_CUSTOMERS_TOPIC" default:"storefront-customer-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_INTERVAL" default:"500ms"`
	PublishTimeout time.Duration `envconfig:"STOREFRONT_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	ReconcileWindow     time.Duration `envconfig:"STOREFRONT_CRON_RECONCILE_WINDOW" default:"2h"`
	OutboxRetentionDays int           `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
