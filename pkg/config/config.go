package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// EnvPrefix is empty because every field carries its fully qualified env name.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Env var names referenced outside the struct tags (tests, error messages).
const (
	EnvAppEnv    = "TRACKBEAM_APP_ENV"
	EnvPort      = "TRACKBEAM_APP_PORT"
	EnvDBDSN     = "TRACKBEAM_DB_DSN"
	EnvDBHost    = "TRACKBEAM_DB_HOST"
	EnvDBUser    = "TRACKBEAM_DB_USER"
	EnvDBName    = "TRACKBEAM_DB_NAME"
	EnvRedisURL  = "TRACKBEAM_REDIS_URL"
	EnvJWTSecret = "TRACKBEAM_JWT_SECRET"
	EnvJWTIssuer = "TRACKBEAM_JWT_ISSUER"
	EnvMasterKey = "TRACKBEAM_CREDENTIAL_MASTER_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Ingest       IngestConfig
	Consent      ConsentConfig
	Dispatch     DispatchConfig
	Retention    RetentionConfig
	Security     SecurityConfig
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
	Env          string `envconfig:"TRACKBEAM_APP_ENV" required:"true"`
	Port         string `envconfig:"TRACKBEAM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRACKBEAM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRACKBEAM_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TRACKBEAM_DB_DSN"`
	Driver string `envconfig:"TRACKBEAM_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRACKBEAM_DB_HOST"`
	LegacyPort     int    `envconfig:"TRACKBEAM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRACKBEAM_DB_USER"`
	LegacyPassword string `envconfig:"TRACKBEAM_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRACKBEAM_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRACKBEAM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRACKBEAM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRACKBEAM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRACKBEAM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRACKBEAM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRACKBEAM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRACKBEAM_REDIS_ADDR"`
	Password     string        `envconfig:"TRACKBEAM_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRACKBEAM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRACKBEAM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRACKBEAM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRACKBEAM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRACKBEAM_REDIS_READ_TIMEOUT" default:"2s"`
	WriteTimeout time.Duration `envconfig:"TRACKBEAM_REDIS_WRITE_TIMEOUT" default:"2s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRACKBEAM_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRACKBEAM_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRACKBEAM_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TokenTTL returns the operator token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// IngestConfig bounds what the webhook and pixel handlers accept.
type IngestConfig struct {
	MaxEventAge     time.Duration `envconfig:"TRACKBEAM_INGEST_MAX_EVENT_AGE" default:"48h"`
	MaxFutureSkew   time.Duration `envconfig:"TRACKBEAM_INGEST_MAX_FUTURE_SKEW" default:"5m"`
	ReceptionMode   string        `envconfig:"TRACKBEAM_INGEST_RECEPTION_MODE" default:"lax"`
	PixelTokenGrace time.Duration `envconfig:"TRACKBEAM_INGEST_PIXEL_TOKEN_GRACE" default:"30m"`
	AllowedOrigins  []string      `envconfig:"TRACKBEAM_INGEST_ALLOWED_ORIGINS" default:"*"`
}

type ConsentConfig struct {
	Strategy string `envconfig:"TRACKBEAM_CONSENT_STRATEGY" default:"strict"`
}

// ParsedStrategy returns the configured strategy. Unknown values fall back to
// strict so misconfiguration never widens data sharing.
func (c ConsentConfig) ParsedStrategy() enums.ConsentStrategy {
	strategy, err := enums.ParseConsentStrategy(c.Strategy)
	if err != nil {
		return enums.ConsentStrict
	}
	return strategy
}

type DispatchConfig struct {
	BatchSize       int           `envconfig:"TRACKBEAM_DISPATCH_BATCH_SIZE" default:"50"`
	PollIntervalMS  int           `envconfig:"TRACKBEAM_DISPATCH_POLL_INTERVAL_MS" default:"1000"`
	MaxAttempts     int           `envconfig:"TRACKBEAM_DISPATCH_MAX_ATTEMPTS" default:"5"`
	WatchdogWindow  time.Duration `envconfig:"TRACKBEAM_DISPATCH_WATCHDOG_WINDOW" default:"5m"`
	AdapterTimeout  time.Duration `envconfig:"TRACKBEAM_DISPATCH_ADAPTER_TIMEOUT" default:"10s"`
	RateLimitWindow time.Duration `envconfig:"TRACKBEAM_DISPATCH_RATE_LIMIT_WINDOW" default:"10s"`
	RateLimitCap    int64         `envconfig:"TRACKBEAM_DISPATCH_RATE_LIMIT_CAP" default:"20"`
	ClaimTTL        time.Duration `envconfig:"TRACKBEAM_DISPATCH_CLAIM_TTL" default:"2m"`
	SentClaimTTL    time.Duration `envconfig:"TRACKBEAM_DISPATCH_SENT_CLAIM_TTL" default:"24h"`
}

// PollInterval returns the worker poll cadence.
func (d DispatchConfig) PollInterval() time.Duration {
	if d.PollIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(d.PollIntervalMS) * time.Millisecond
}

type RetentionConfig struct {
	Days     int           `envconfig:"TRACKBEAM_RETENTION_DAYS" default:"90"`
	Interval time.Duration `envconfig:"TRACKBEAM_RETENTION_INTERVAL" default:"24h"`
}

// Period returns the retention window as a duration.
func (r RetentionConfig) Period() time.Duration {
	days := r.Days
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

type SecurityConfig struct {
	// MasterKey is base64-encoded input material for HKDF; the derived AES key
	// never leaves pkg/security.
	MasterKey string `envconfig:"TRACKBEAM_CREDENTIAL_MASTER_KEY" required:"true"`
	KeyInfo   string `envconfig:"TRACKBEAM_CREDENTIAL_KEY_INFO" default:"trackbeam/credentials/v1"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRACKBEAM_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRACKBEAM_AUTO_MIGRATE" default:"false"`
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
