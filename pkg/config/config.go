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
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Auction      AuctionConfig
	Ops          OpsConfig
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
	Env          string `envconfig:"EVTRADE_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"EVTRADE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVTRADE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVTRADE_SERVICE_KIND" default:"scheduler"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVTRADE_DB_DSN"`
	Driver string `envconfig:"EVTRADE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVTRADE_DB_HOST"`
	LegacyPort     int    `envconfig:"EVTRADE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVTRADE_DB_USER"`
	LegacyPassword string `envconfig:"EVTRADE_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVTRADE_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVTRADE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVTRADE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVTRADE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVTRADE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVTRADE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVTRADE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVTRADE_REDIS_ADDR"`
	Password     string        `envconfig:"EVTRADE_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVTRADE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVTRADE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVTRADE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVTRADE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVTRADE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVTRADE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVTRADE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EVTRADE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVTRADE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AuctionTopic             string `envconfig:"EVTRADE_PUBSUB_AUCTION_TOPIC" required:"true"`
	ReleaseFundsSubscription string `envconfig:"EVTRADE_PUBSUB_RELEASE_FUNDS_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVTRADE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVTRADE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EVTRADE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// AuctionConfig tunes the scheduler loop and the release-funds consumer.
type AuctionConfig struct {
	PollInterval    time.Duration `envconfig:"EVTRADE_AUCTION_POLL_INTERVAL" default:"5s"`
	Prefetch        int           `envconfig:"EVTRADE_RELEASE_FUNDS_PREFETCH" default:"1"`
	NackDelay       time.Duration `envconfig:"EVTRADE_RELEASE_FUNDS_NACK_DELAY" default:"5s"`
	MaxRedeliveries int           `envconfig:"EVTRADE_RELEASE_FUNDS_MAX_REDELIVERIES" default:"6"`
	CommissionBps   int           `envconfig:"EVTRADE_AUCTION_COMMISSION_BPS" default:"0"`
	IdempotencyTTL  time.Duration `envconfig:"EVTRADE_RELEASE_FUNDS_IDEMPOTENCY_TTL" default:"720h"`
}

type OpsConfig struct {
	Port string `envconfig:"EVTRADE_OPS_PORT" default:"9090"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVTRADE_AUTO_MIGRATE" default:"false"`
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
