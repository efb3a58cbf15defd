package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvWooBaseURL        = "STOREFRONT_WC_BASE_URL"
	EnvWooConsumerKey    = "STOREFRONT_WC_CONSUMER_KEY"
	EnvWooConsumerSecret = "STOREFRONT_WC_CONSUMER_SECRET"
	EnvWooWebhookSecret  = "STOREFRONT_WC_WEBHOOK_SECRET"

	EnvSyncCallTimeout = "STOREFRONT_SYNC_CALL_TIMEOUT"
	EnvSyncDeliveryTTL = "STOREFRONT_SYNC_DELIVERY_TTL"

	EnvGCPProjectID         = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic    = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubCustomersTopic = "STOREFRONT_PUBSUB_CUSTOMERS_TOPIC"

	EnvCronInterval        = "STOREFRONT_CRON_INTERVAL"
	EnvCronReconcileWindow = "STOREFRONT_CRON_RECONCILE_WINDOW"
	EnvCronOutboxRetention = "STOREFRONT_CRON_OUTBOX_RETENTION_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
