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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Orders       OrdersConfig
	Delivery     DeliveryConfig
	Retry        RetryConfig
	Cron         CronConfig
	Tracing      TracingConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Orders.RefundTolerance(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ORDERFLOW_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"ORDERFLOW_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ORDERFLOW_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens minted by the identity service; this service only verifies them.
type JWTConfig struct {
	Secret string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ORDERFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ORDERFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookDedupeTTL     time.Duration `envconfig:"ORDERFLOW_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ORDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"ORDERFLOW_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription    string `envconfig:"ORDERFLOW_PUBSUB_ORDERS_SUBSCRIPTION"`
	FleetDispatchTopic    string `envconfig:"ORDERFLOW_PUBSUB_FLEET_DISPATCH_TOPIC" default:"of-fleet-dispatch"`
	AnalyticsSubscription string `envconfig:"ORDERFLOW_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset             string        `envconfig:"ORDERFLOW_BIGQUERY_DATASET" default:"orderflow"`
	OrderLifecycleTable string        `envconfig:"ORDERFLOW_BIGQUERY_ORDER_LIFECYCLE_TABLE" default:"order_lifecycle_events"`
	InsertBatchSize     int           `envconfig:"ORDERFLOW_BIGQUERY_INSERT_BATCH_SIZE" default:"1"`
	FlushInterval       time.Duration `envconfig:"ORDERFLOW_BIGQUERY_FLUSH_INTERVAL" default:"10s"`
	AutoCreateTables    bool          `envconfig:"ORDERFLOW_BIGQUERY_AUTO_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	MetricsAddr    string `envconfig:"ORDERFLOW_OUTBOX_METRICS_ADDR" default:":9091"`
}

type StripeConfig struct {
	APIKey string `envconfig:"ORDERFLOW_STRIPE_API_KEY"`
	Secret string `envconfig:"ORDERFLOW_STRIPE_SECRET"`
	Env    string `envconfig:"ORDERFLOW_STRIPE_ENV" default:"test"`

	WebhookTolerance time.Duration `envconfig:"ORDERFLOW_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// OrdersConfig holds the lifecycle rules that are tunable per deployment.
type OrdersConfig struct {
	Currency                string        `envconfig:"ORDERFLOW_ORDERS_CURRENCY" default:"inr"`
	TaxRate                 string        `envconfig:"ORDERFLOW_ORDERS_TAX_RATE" default:"0.05"`
	DeliveryFee             string        `envconfig:"ORDERFLOW_ORDERS_DELIVERY_FEE" default:"40.00"`
	RefundToleranceAmount   string        `envconfig:"ORDERFLOW_ORDERS_REFUND_TOLERANCE" default:"0.01"`
	RefundEligibilityWindow time.Duration `envconfig:"ORDERFLOW_ORDERS_REFUND_WINDOW" default:"168h"`
	TransitionMaxAttempts   int           `envconfig:"ORDERFLOW_ORDERS_TRANSITION_MAX_ATTEMPTS" default:"3"`
	PaymentSessionTTL       time.Duration `envconfig:"ORDERFLOW_ORDERS_PAYMENT_SESSION_TTL" default:"30m"`
}

// RefundTolerance parses the configured rounding tolerance for refund splits.
func (o OrdersConfig) RefundTolerance() (decimal.Decimal, error) {
	raw := strings.TrimSpace(o.RefundToleranceAmount)
	if raw == "" {
		return decimal.NewFromFloat(0.01), nil
	}
	tol, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvOrdersRefundTolerance, err)
	}
	if tol.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be non-negative", EnvOrdersRefundTolerance)
	}
	return tol, nil
}

type DeliveryConfig struct {
	DefaultService   string        `envconfig:"ORDERFLOW_DELIVERY_DEFAULT_SERVICE" default:"fleet"`
	ShadowfaxBaseURL string        `envconfig:"ORDERFLOW_SHADOWFAX_BASE_URL" default:"https://api.shadowfax.in"`
	ShadowfaxToken   string        `envconfig:"ORDERFLOW_SHADOWFAX_TOKEN"`
	ShadowfaxTimeout time.Duration `envconfig:"ORDERFLOW_SHADOWFAX_TIMEOUT" default:"10s"`
	MaxDispatchTries int           `envconfig:"ORDERFLOW_DELIVERY_MAX_DISPATCH_TRIES" default:"5"`
}

// RetryConfig is the upstream call policy shared by the payment and dispatch adapters.
type RetryConfig struct {
	MaxAttempts    int           `envconfig:"ORDERFLOW_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"ORDERFLOW_RETRY_INITIAL_BACKOFF" default:"200ms"`
	MaximumBackoff time.Duration `envconfig:"ORDERFLOW_RETRY_MAX_BACKOFF" default:"2s"`
}

// CronConfig drives the cron worker. Interval is the scheduler tick; each job
// also has its own cadence.
type CronConfig struct {
	Interval            time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"1m"`
	PaymentReconcileAge time.Duration `envconfig:"ORDERFLOW_CRON_PAYMENT_RECONCILE_AGE" default:"5m"`
	PaymentBatch        int           `envconfig:"ORDERFLOW_CRON_PAYMENT_BATCH" default:"100"`
	DispatchRetryBatch  int           `envconfig:"ORDERFLOW_CRON_DISPATCH_RETRY_BATCH" default:"50"`
	DispatchStaleAfter  time.Duration `envconfig:"ORDERFLOW_CRON_DISPATCH_STALE_AFTER" default:"2m"`
	OutboxRetention     time.Duration `envconfig:"ORDERFLOW_CRON_OUTBOX_RETENTION" default:"720h"`
	RetentionEvery      time.Duration `envconfig:"ORDERFLOW_CRON_RETENTION_EVERY" default:"24h"`
	RetentionBatch      int           `envconfig:"ORDERFLOW_CRON_RETENTION_BATCH" default:"1000"`
	LockTTL             time.Duration `envconfig:"ORDERFLOW_CRON_LOCK_TTL" default:"10m"`
}

// RateLimitConfig throttles the public write surfaces with Redis fixed windows.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"ORDERFLOW_RATE_LIMIT_WINDOW" default:"1m"`
	WebhookIPLimit  int           `envconfig:"ORDERFLOW_RATE_LIMIT_WEBHOOK_IP" default:"600"`
	CheckoutIPLimit int           `envconfig:"ORDERFLOW_RATE_LIMIT_CHECKOUT_IP" default:"60"`
	CheckoutUser    int           `envconfig:"ORDERFLOW_RATE_LIMIT_CHECKOUT_USER" default:"10"`
}

type TracingConfig struct {
	Endpoint    string  `envconfig:"ORDERFLOW_OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRatio float64 `envconfig:"ORDERFLOW_OTEL_SAMPLE_RATIO" default:"1"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
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
