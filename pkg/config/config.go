package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "BECOIN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BECOIN_DB_DSN"
	EnvDBHost = "BECOIN_DB_HOST"
	EnvDBUser = "BECOIN_DB_USER"
	EnvDBName = "BECOIN_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Pricing      PricingConfig
	Gateway      GatewayConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
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
	Env          string `envconfig:"BECOIN_APP_ENV" required:"true"`
	Port         string `envconfig:"BECOIN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BECOIN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BECOIN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BECOIN_DB_DSN"`
	Driver string `envconfig:"BECOIN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BECOIN_DB_HOST"`
	LegacyPort     int    `envconfig:"BECOIN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BECOIN_DB_USER"`
	LegacyPassword string `envconfig:"BECOIN_DB_PASSWORD"`
	LegacyName     string `envconfig:"BECOIN_DB_NAME"`
	LegacySSLMode  string `envconfig:"BECOIN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BECOIN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BECOIN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BECOIN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BECOIN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BECOIN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BECOIN_REDIS_ADDR"`
	Password     string        `envconfig:"BECOIN_REDIS_PASSWORD"`
	DB           int           `envconfig:"BECOIN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BECOIN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BECOIN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BECOIN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BECOIN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BECOIN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PricingConfig carries the exchange constants used when a cart is
// materialized: the flat delivery surcharge in external currency and the
// price of one becoin in external currency.
type PricingConfig struct {
	DeliveryPrice   decimal.Decimal `envconfig:"BECOIN_PRICING_DELIVERY_PRICE" default:"5.00"`
	BecoinUnitPrice decimal.Decimal `envconfig:"BECOIN_PRICING_BECOIN_UNIT_PRICE" default:"1.00"`
}

func (p PricingConfig) validate() error {
	if p.DeliveryPrice.IsNegative() {
		return fmt.Errorf("delivery price must not be negative")
	}
	if !p.BecoinUnitPrice.IsPositive() {
		return fmt.Errorf("becoin unit price must be positive")
	}
	return nil
}

// ToBecoin converts an external-currency amount into becoin.
func (p PricingConfig) ToBecoin(amount decimal.Decimal) decimal.Decimal {
	return amount.DivRound(p.BecoinUnitPrice, 2)
}

type GatewayConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"BECOIN_GATEWAY_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BECOIN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BECOIN_AUTO_MIGRATE" default:"false"`
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
