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
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Session       SessionConfig
	Upstream      UpstreamConfig
	Pricing       PricingConfig
	Shipping      ShippingConfig
	Cart          CartConfig
	Notifications NotificationsConfig
	RateLimit     RateLimitConfig
	GoogleMaps    GoogleMapsConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
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

	SlowQuery      time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"200ms"`
	ConnectRetries uint64        `envconfig:"STOREFRONT_DB_CONNECT_RETRIES" default:"3"`
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

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AccessTTL returns the configured access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type SessionConfig struct {
	IdleTTL       time.Duration `envconfig:"STOREFRONT_SESSION_IDLE_TTL" default:"2h"`
	SweepInterval time.Duration `envconfig:"STOREFRONT_SESSION_SWEEP_INTERVAL" default:"1m"`
	AllowGuests   bool          `envconfig:"STOREFRONT_SESSION_ALLOW_GUESTS" default:"true"`
}

type UpstreamConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_UPSTREAM_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"STOREFRONT_UPSTREAM_API_KEY"`
	Timeout        time.Duration `envconfig:"STOREFRONT_UPSTREAM_TIMEOUT" default:"10s"`
	MaxRetries     uint64        `envconfig:"STOREFRONT_UPSTREAM_MAX_RETRIES" default:"2"`
	RetryBaseDelay time.Duration `envconfig:"STOREFRONT_UPSTREAM_RETRY_BASE_DELAY" default:"100ms"`
}

type PricingConfig struct {
	TaxRate               decimal.Decimal `envconfig:"STOREFRONT_TAX_RATE" default:"0.18"`
	FreeShippingThreshold decimal.Decimal `envconfig:"STOREFRONT_FREE_SHIPPING_THRESHOLD" default:"100"`
	StandardShippingRate  decimal.Decimal `envconfig:"STOREFRONT_STANDARD_SHIPPING_RATE" default:"50"`
	ExpressShippingRate   decimal.Decimal `envconfig:"STOREFRONT_EXPRESS_SHIPPING_RATE" default:"150"`
	Currency              string          `envconfig:"STOREFRONT_CURRENCY" default:"INR"`
}

func (p PricingConfig) validate() error {
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1], got %s", EnvTaxRate, p.TaxRate)
	}
	for name, value := range map[string]decimal.Decimal{
		EnvFreeShippingThreshold: p.FreeShippingThreshold,
		EnvStandardShippingRate:  p.StandardShippingRate,
		EnvExpressShippingRate:   p.ExpressShippingRate,
	} {
		if value.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

type ShippingConfig struct {
	Debounce      time.Duration `envconfig:"STOREFRONT_SHIPPING_DEBOUNCE" default:"250ms"`
	RemoteTimeout time.Duration `envconfig:"STOREFRONT_SHIPPING_REMOTE_TIMEOUT" default:"3s"`
}

type CartConfig struct {
	StorageTTL time.Duration `envconfig:"STOREFRONT_CART_STORAGE_TTL" default:"720h"`
	MaxLines   int           `envconfig:"STOREFRONT_CART_MAX_LINES" default:"100"`
}

type NotificationsConfig struct {
	PageSize    int           `envconfig:"STOREFRONT_NOTIFICATIONS_PAGE_SIZE" default:"20"`
	SyncTimeout time.Duration `envconfig:"STOREFRONT_NOTIFICATIONS_SYNC_TIMEOUT" default:"5s"`
}

type RateLimitConfig struct {
	CouponWindow       time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_COUPON_WINDOW" default:"1m"`
	CouponSessionLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_COUPON_SESSION_LIMIT" default:"10"`
	CouponIPLimit      int           `envconfig:"STOREFRONT_RATE_LIMIT_COUPON_IP_LIMIT" default:"30"`
}

type GoogleMapsConfig struct {
	APIKey   string        `envconfig:"STOREFRONT_GOOGLE_MAPS_API_KEY"`
	Language string        `envconfig:"STOREFRONT_GOOGLE_MAPS_LANGUAGE" default:"en"`
	Timeout  time.Duration `envconfig:"STOREFRONT_GOOGLE_MAPS_TIMEOUT" default:"5s"`
	Retries  uint64        `envconfig:"STOREFRONT_GOOGLE_MAPS_RETRIES" default:"2"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = DefaultSQLiteDSN
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
