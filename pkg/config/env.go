package config

// EnvPrefix is empty because every field carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv     = "GREENLINE_APP_ENV"
	EnvPort       = "GREENLINE_APP_PORT"
	EnvLogLevel   = "GREENLINE_LOG_LEVEL"
	EnvDBDSN      = "GREENLINE_DB_DSN"
	EnvDBHost     = "GREENLINE_DB_HOST"
	EnvDBUser     = "GREENLINE_DB_USER"
	EnvDBPassword = "GREENLINE_DB_PASSWORD"
	EnvDBName     = "GREENLINE_DB_NAME"
	EnvRedisURL   = "GREENLINE_REDIS_URL"
	EnvJWTSecret  = "GREENLINE_JWT_SECRET"
	EnvJWTIssuer  = "GREENLINE_JWT_ISSUER"

	EnvPricingTaxRate               = "GREENLINE_PRICING_TAX_RATE"
	EnvPricingFreeDeliveryThreshold = "GREENLINE_PRICING_FREE_DELIVERY_THRESHOLD"
	EnvPricingDeliveryFee           = "GREENLINE_PRICING_DELIVERY_FEE"

	EnvOrdersEnforceTransitions = "GREENLINE_ORDERS_ENFORCE_TRANSITIONS"
	EnvCORSAllowedOrigins       = "GREENLINE_CORS_ALLOWED_ORIGINS"
	EnvPubSubOrdersTopic        = "GREENLINE_PUBSUB_ORDERS_TOPIC"
	EnvUseSQLite                = "GREENLINE_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
