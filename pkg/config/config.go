package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Pricing      PricingConfig
	Orders       OrdersConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
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
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = "file:greenline.db?_foreign_keys=1"
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GREENLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"GREENLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GREENLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GREENLINE_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"GREENLINE_PUBLIC_URL" default:""`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GREENLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GREENLINE_DB_DSN"`
	Driver string `envconfig:"GREENLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GREENLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"GREENLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GREENLINE_DB_USER"`
	LegacyPassword string `envconfig:"GREENLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"GREENLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"GREENLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GREENLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GREENLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GREENLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GREENLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"GREENLINE_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GREENLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GREENLINE_REDIS_ADDR"`
	Password     string        `envconfig:"GREENLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"GREENLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GREENLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GREENLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GREENLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GREENLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GREENLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the identity provider tokens the API accepts. The API
// never mints tokens for end users.
type JWTConfig struct {
	Secret   string        `envconfig:"GREENLINE_JWT_SECRET" required:"true"`
	Issuer   string        `envconfig:"GREENLINE_JWT_ISSUER" required:"true"`
	Audience string        `envconfig:"GREENLINE_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"GREENLINE_JWT_LEEWAY" default:"30s"`
}

type PricingConfig struct {
	TaxRate               string `envconfig:"GREENLINE_PRICING_TAX_RATE" default:"0.08875"`
	FreeDeliveryThreshold string `envconfig:"GREENLINE_PRICING_FREE_DELIVERY_THRESHOLD" default:"100.00"`
	DeliveryFee           string `envconfig:"GREENLINE_PRICING_DELIVERY_FEE" default:"5.00"`
}

// Decimals parses the pricing policy values. Load already rejects malformed
// values, so callers holding a loaded Config can ignore the error.
func (p PricingConfig) Decimals() (taxRate, threshold, fee decimal.Decimal, err error) {
	if taxRate, err = decimal.NewFromString(p.TaxRate); err != nil {
		return taxRate, threshold, fee, fmt.Errorf("%s: %w", EnvPricingTaxRate, err)
	}
	if threshold, err = decimal.NewFromString(p.FreeDeliveryThreshold); err != nil {
		return taxRate, threshold, fee, fmt.Errorf("%s: %w", EnvPricingFreeDeliveryThreshold, err)
	}
	if fee, err = decimal.NewFromString(p.DeliveryFee); err != nil {
		return taxRate, threshold, fee, fmt.Errorf("%s: %w", EnvPricingDeliveryFee, err)
	}
	return taxRate, threshold, fee, nil
}

func (p PricingConfig) validate() error {
	taxRate, threshold, fee, err := p.Decimals()
	if err != nil {
		return err
	}
	if taxRate.IsNegative() || threshold.IsNegative() || fee.IsNegative() {
		return fmt.Errorf("pricing values must be non-negative")
	}
	return nil
}

type OrdersConfig struct {
	EnforceTransitions bool `envconfig:"GREENLINE_ORDERS_ENFORCE_TRANSITIONS" default:"false"`
	NumberAttempts     int  `envconfig:"GREENLINE_ORDERS_NUMBER_ATTEMPTS" default:"3"`
}

type CheckoutConfig struct {
	IdempotencyTTL  time.Duration `envconfig:"GREENLINE_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	RateLimitWindow time.Duration `envconfig:"GREENLINE_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitMax    int           `envconfig:"GREENLINE_CHECKOUT_RATE_LIMIT_MAX" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GREENLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GREENLINE_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"GREENLINE_CORS_ALLOWED_ORIGINS" default:"*"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GREENLINE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"GREENLINE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"GREENLINE_PUBSUB_ORDERS_TOPIC" default:"gl-order-events"`
	OrdersSubscription string `envconfig:"GREENLINE_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GREENLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GREENLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GREENLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention          time.Duration `envconfig:"GREENLINE_OUTBOX_RETENTION" default:"720h"`
	RetentionBatchSize int           `envconfig:"GREENLINE_OUTBOX_RETENTION_BATCH_SIZE" default:"1000"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"GREENLINE_CRON_INTERVAL" default:"5m"`
	ContactNudgeAfter    time.Duration `envconfig:"GREENLINE_CRON_CONTACT_NUDGE_AFTER" default:"2h"`
	TextOrderExpireAfter time.Duration `envconfig:"GREENLINE_CRON_TEXT_ORDER_EXPIRE_AFTER" default:"72h"`
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
