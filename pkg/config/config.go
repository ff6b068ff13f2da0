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
	FeatureFlags FeatureFlagsConfig
	Orders       OrdersConfig
	Search       SearchConfig
	GoogleMaps   GoogleMapsConfig
	Payments     PaymentsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Redis.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDIDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDIDROP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEDIDROP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDIDROP_LOG_WARN_STACK" default:"false"`
	// MetricsAddr is the /metrics listener for the workers. The API serves
	// /metrics on its own port.
	MetricsAddr string `envconfig:"MEDIDROP_METRICS_ADDR"`
	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"MEDIDROP_CORS_ORIGINS" default:"https://medidrop.app,https://www.medidrop.app"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MEDIDROP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MEDIDROP_DB_DSN"`
	Driver string `envconfig:"MEDIDROP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEDIDROP_DB_HOST"`
	LegacyPort     int    `envconfig:"MEDIDROP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEDIDROP_DB_USER"`
	LegacyPassword string `envconfig:"MEDIDROP_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEDIDROP_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEDIDROP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDIDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDIDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDIDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDIDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MEDIDROP_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDIDROP_REDIS_URL"`
	Address      string        `envconfig:"MEDIDROP_REDIS_ADDR"`
	Password     string        `envconfig:"MEDIDROP_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDIDROP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDIDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDIDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDIDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDIDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDIDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) validate() error {
	if strings.TrimSpace(r.URL) == "" && strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("%s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

type JWTConfig struct {
	Secret            string `envconfig:"MEDIDROP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEDIDROP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MEDIDROP_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MEDIDROP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MEDIDROP_AUTO_MIGRATE" default:"false"`
}

// OrdersConfig drives order creation and the prescription gate.
type OrdersConfig struct {
	PrescriptionGate   string   `envconfig:"MEDIDROP_PRESCRIPTION_GATE" default:"block_payment"`
	SensitiveKeywords  []string `envconfig:"MEDIDROP_SENSITIVE_KEYWORDS" default:"alprazolam,diazepam,lorazepam,clonazepam,tramadol,codeine,morphine,oxycodone,fentanyl,zolpidem,methylphenidate,pregabalin,ketamine,buprenorphine"`
	PickupCodeAttempts int      `envconfig:"MEDIDROP_PICKUP_CODE_ATTEMPTS" default:"5"`
	Currency           string   `envconfig:"MEDIDROP_CURRENCY" default:"INR"`
	MaxPrescriptionMB  int      `envconfig:"MEDIDROP_MAX_PRESCRIPTION_MB" default:"10"`
}

func (o OrdersConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.PrescriptionGate)) {
	case PrescriptionGateBlockPayment, PrescriptionGateHoldCapture:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPrescriptionGate, PrescriptionGateBlockPayment, PrescriptionGateHoldCapture)
	}
	if o.PickupCodeAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvPickupCodeAttempts)
	}
	return nil
}

type SearchConfig struct {
	DefaultRadiusKm    float64       `envconfig:"MEDIDROP_SEARCH_DEFAULT_RADIUS_KM" default:"3"`
	MaxRadiusKm        float64       `envconfig:"MEDIDROP_SEARCH_MAX_RADIUS_KM" default:"50"`
	RateLimitWindow    time.Duration `envconfig:"MEDIDROP_SEARCH_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerWindow int           `envconfig:"MEDIDROP_SEARCH_RATE_LIMIT" default:"60"`
}

// GoogleMapsConfig configures address geocoding. Without an API key the
// location lookup answers 503 and everything else keeps working.
type GoogleMapsConfig struct {
	APIKey       string        `envconfig:"MEDIDROP_GOOGLE_MAPS_API_KEY"`
	BaseURL      string        `envconfig:"MEDIDROP_GOOGLE_MAPS_BASE_URL"`
	Timeout      time.Duration `envconfig:"MEDIDROP_GOOGLE_MAPS_TIMEOUT" default:"5s"`
	RegionCode   string        `envconfig:"MEDIDROP_GOOGLE_MAPS_REGION" default:"IN"`
	LanguageCode string        `envconfig:"MEDIDROP_GOOGLE_MAPS_LANGUAGE" default:"en"`
	ResultLimit  int           `envconfig:"MEDIDROP_GOOGLE_MAPS_RESULT_LIMIT" default:"5"`
}

// PaymentsConfig selects and configures the external payment processor.
type PaymentsConfig struct {
	Provider          string        `envconfig:"MEDIDROP_PAYMENTS_PROVIDER" default:"razorpay"`
	KeyID             string        `envconfig:"MEDIDROP_PAYMENTS_KEY_ID"`
	KeySecret         string        `envconfig:"MEDIDROP_PAYMENTS_KEY_SECRET" required:"true"`
	BaseURL           string        `envconfig:"MEDIDROP_PAYMENTS_BASE_URL" default:"https://api.razorpay.com"`
	ProcessorTimeout  time.Duration `envconfig:"MEDIDROP_PAYMENTS_PROCESSOR_TIMEOUT" default:"10s"`
	CallbackDedupeTTL time.Duration `envconfig:"MEDIDROP_PAYMENTS_CALLBACK_DEDUPE_TTL" default:"24h"`
	SquareAccessToken string        `envconfig:"MEDIDROP_SQUARE_ACCESS_TOKEN"`
	SquareLocationID  string        `envconfig:"MEDIDROP_SQUARE_LOCATION_ID"`
	SquareEnv         string        `envconfig:"MEDIDROP_SQUARE_ENV" default:"sandbox"`
}

func (p PaymentsConfig) validate() error {
	switch p.NormalizedProvider() {
	case PaymentProviderRazorpay:
		if strings.TrimSpace(p.KeyID) == "" {
			return fmt.Errorf("%s is required for provider %s", EnvPaymentsKeyID, PaymentProviderRazorpay)
		}
	case PaymentProviderSquare:
		if strings.TrimSpace(p.SquareAccessToken) == "" || strings.TrimSpace(p.SquareLocationID) == "" {
			return fmt.Errorf("%s and %s are required for provider %s", EnvSquareAccessToken, EnvSquareLocationID, PaymentProviderSquare)
		}
	default:
		return fmt.Errorf("unsupported payments provider %q", p.Provider)
	}
	return nil
}

// NormalizedProvider returns the lower-cased provider name.
func (p PaymentsConfig) NormalizedProvider() string {
	return strings.ToLower(strings.TrimSpace(p.Provider))
}

// SquareEnvironment returns the normalized Square environment (sandbox/production).
func (p PaymentsConfig) SquareEnvironment() string {
	env := strings.TrimSpace(strings.ToLower(p.SquareEnv))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MEDIDROP_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MEDIDROP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MEDIDROP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName         string `envconfig:"MEDIDROP_GCS_BUCKET_NAME" required:"true"`
	PrescriptionPrefix string `envconfig:"MEDIDROP_GCS_PRESCRIPTION_PREFIX" default:"prescriptions"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"MEDIDROP_PUBSUB_NOTIFICATION_TOPIC" default:"medidrop-notification-events"`
	OrdersTopic       string `envconfig:"MEDIDROP_PUBSUB_ORDERS_TOPIC" default:"medidrop-order-events"`
	// PublishDelay is how long a publisher batches messages before sending.
	PublishDelay time.Duration `envconfig:"MEDIDROP_PUBSUB_PUBLISH_DELAY" default:"10ms"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MEDIDROP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MEDIDROP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MEDIDROP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MEDIDROP_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"MEDIDROP_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"MEDIDROP_CRON_INTERVAL" default:"1h"`
	LockTTL           time.Duration `envconfig:"MEDIDROP_CRON_LOCK_TTL" default:"10m"`
	HeldPaymentMaxAge time.Duration `envconfig:"MEDIDROP_CRON_HELD_PAYMENT_MAX_AGE" default:"24h"`
	// JobTimeout bounds a single job run. Keep it below LockTTL.
	JobTimeout time.Duration `envconfig:"MEDIDROP_CRON_JOB_TIMEOUT" default:"5m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:medidrop.db?cache=shared"
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
