package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "STUDYFAIR_DB_DSN"
	EnvDBHost = "STUDYFAIR_DB_HOST"
	EnvDBUser = "STUDYFAIR_DB_USER"
	EnvDBName = "STUDYFAIR_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Midtrans     MidtransConfig
	Payments     PaymentsConfig
	Cron         CronConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STUDYFAIR_APP_ENV" required:"true"`
	Port         string `envconfig:"STUDYFAIR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STUDYFAIR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STUDYFAIR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STUDYFAIR_DB_DSN"`
	Driver string `envconfig:"STUDYFAIR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STUDYFAIR_DB_HOST"`
	LegacyPort     int    `envconfig:"STUDYFAIR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STUDYFAIR_DB_USER"`
	LegacyPassword string `envconfig:"STUDYFAIR_DB_PASSWORD"`
	LegacyName     string `envconfig:"STUDYFAIR_DB_NAME"`
	LegacySSLMode  string `envconfig:"STUDYFAIR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STUDYFAIR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STUDYFAIR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STUDYFAIR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STUDYFAIR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STUDYFAIR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STUDYFAIR_REDIS_ADDR"`
	Password     string        `envconfig:"STUDYFAIR_REDIS_PASSWORD"`
	DB           int           `envconfig:"STUDYFAIR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STUDYFAIR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STUDYFAIR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STUDYFAIR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STUDYFAIR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STUDYFAIR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STUDYFAIR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STUDYFAIR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STUDYFAIR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	CheckWindow      time.Duration `envconfig:"STUDYFAIR_RATE_LIMIT_CHECK_WINDOW" default:"1m"`
	CheckIPLimit     int           `envconfig:"STUDYFAIR_RATE_LIMIT_CHECK_IP_LIMIT" default:"30"`
	CheckOrderLimit  int           `envconfig:"STUDYFAIR_RATE_LIMIT_CHECK_ORDER_LIMIT" default:"10"`
	ChargeWindow     time.Duration `envconfig:"STUDYFAIR_RATE_LIMIT_CHARGE_WINDOW" default:"5m"`
	ChargeIPLimit    int           `envconfig:"STUDYFAIR_RATE_LIMIT_CHARGE_IP_LIMIT" default:"20"`
	ChargeOrderLimit int           `envconfig:"STUDYFAIR_RATE_LIMIT_CHARGE_ORDER_LIMIT" default:"5"`
}

type MidtransConfig struct {
	ServerKey   string        `envconfig:"STUDYFAIR_MIDTRANS_SERVER_KEY" required:"true"`
	APIBaseURL  string        `envconfig:"STUDYFAIR_MIDTRANS_API_BASE_URL" default:"https://api.sandbox.midtrans.com"`
	SnapBaseURL string        `envconfig:"STUDYFAIR_MIDTRANS_SNAP_BASE_URL" default:"https://app.sandbox.midtrans.com"`
	HTTPTimeout time.Duration `envconfig:"STUDYFAIR_MIDTRANS_HTTP_TIMEOUT" default:"10s"`
}

type PaymentsConfig struct {
	PendingTTL             time.Duration `envconfig:"STUDYFAIR_PAYMENTS_PENDING_TTL" default:"24h"`
	PayTokenTTL            time.Duration `envconfig:"STUDYFAIR_PAYMENTS_PAY_TOKEN_TTL" default:"48h"`
	PayTokenSecret         string        `envconfig:"STUDYFAIR_PAYMENTS_PAY_TOKEN_SECRET" required:"true"`
	OpsSecret              string        `envconfig:"STUDYFAIR_PAYMENTS_OPS_SECRET"`
	AllowInsecureReconcile bool          `envconfig:"STUDYFAIR_PAYMENTS_ALLOW_INSECURE_RECONCILE" default:"false"`
	WebhookReplayTTL       time.Duration `envconfig:"STUDYFAIR_PAYMENTS_WEBHOOK_REPLAY_TTL" default:"72h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STUDYFAIR_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"STUDYFAIR_CRON_LOCK_TTL" default:"30m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STUDYFAIR_AUTO_MIGRATE" default:"false"`
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
