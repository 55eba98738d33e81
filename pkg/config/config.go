package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "aistudio"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AISTUDIO_DB_DSN"
	EnvDBHost = "AISTUDIO_DB_HOST"
	EnvDBUser = "AISTUDIO_DB_USER"
	EnvDBName = "AISTUDIO_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Dispatch     DispatchConfig
	Generation   GenerationConfig
	Billing      BillingConfig
	Reaper       ReaperConfig
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
	Env          string `envconfig:"AISTUDIO_APP_ENV" required:"true"`
	Port         string `envconfig:"AISTUDIO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AISTUDIO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AISTUDIO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AISTUDIO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AISTUDIO_DB_DSN"`
	Driver string `envconfig:"AISTUDIO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AISTUDIO_DB_HOST"`
	LegacyPort     int    `envconfig:"AISTUDIO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AISTUDIO_DB_USER"`
	LegacyPassword string `envconfig:"AISTUDIO_DB_PASSWORD"`
	LegacyName     string `envconfig:"AISTUDIO_DB_NAME"`
	LegacySSLMode  string `envconfig:"AISTUDIO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AISTUDIO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AISTUDIO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AISTUDIO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AISTUDIO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AISTUDIO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AISTUDIO_REDIS_ADDR"`
	Password     string        `envconfig:"AISTUDIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"AISTUDIO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AISTUDIO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AISTUDIO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AISTUDIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AISTUDIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AISTUDIO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AISTUDIO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AISTUDIO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AISTUDIO_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AISTUDIO_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AISTUDIO_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"AISTUDIO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AISTUDIO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	ImagesBucket string `envconfig:"AISTUDIO_GCS_IMAGES_BUCKET" required:"true"`
	VideosBucket string `envconfig:"AISTUDIO_GCS_VIDEOS_BUCKET" required:"true"`
	MaxUploadMB  int    `envconfig:"AISTUDIO_MAX_UPLOAD_MB" default:"10"`
}

type PubSubConfig struct {
	JobsTopic string `envconfig:"AISTUDIO_PUBSUB_JOBS_TOPIC" default:"generation-jobs"`
}

// DispatchModePubSub publishes jobs on Pub/Sub; DispatchModeHTTP posts
// directly to the worker's intake webhook.
const (
	DispatchModePubSub = "pubsub"
	DispatchModeHTTP   = "http"
)

type DispatchConfig struct {
	Mode             string        `envconfig:"AISTUDIO_DISPATCH_MODE" default:"http"`
	WorkerWebhookURL string        `envconfig:"AISTUDIO_DISPATCH_WORKER_URL"`
	Timeout          time.Duration `envconfig:"AISTUDIO_DISPATCH_TIMEOUT" default:"10s"`
}

// NormalizedMode returns the lowercased dispatch mode, defaulting to HTTP.
func (d DispatchConfig) NormalizedMode() string {
	mode := strings.TrimSpace(strings.ToLower(d.Mode))
	if mode == "" {
		return DispatchModeHTTP
	}
	return mode
}

type GenerationConfig struct {
	ImageCost   int `envconfig:"AISTUDIO_GENERATION_IMAGE_COST" default:"5"`
	VideoCost   int `envconfig:"AISTUDIO_GENERATION_VIDEO_COST" default:"20"`
	SignupBonus int `envconfig:"AISTUDIO_SIGNUP_BONUS_TOKENS" default:"60"`
}

type BillingConfig struct {
	Provider      string `envconfig:"AISTUDIO_BILLING_PROVIDER" default:"apple_iap"`
	WebhookSecret string `envconfig:"AISTUDIO_BILLING_WEBHOOK_SECRET"`
}

type ReaperConfig struct {
	Interval   time.Duration `envconfig:"AISTUDIO_REAPER_INTERVAL" default:"10m"`
	PendingTTL time.Duration `envconfig:"AISTUDIO_REAPER_PENDING_TTL" default:"2h"`
	BatchSize  int           `envconfig:"AISTUDIO_REAPER_BATCH_SIZE" default:"100"`
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
