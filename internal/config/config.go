package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Version é sobrescrita em build via -ldflags.
var Version = "dev"

type Config struct {
	App         AppConfig
	DB          DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	Storage     StorageConfig
	RateLimit   RateLimitConfig
	IPRateLimit IPRateLimitConfig
	Provider    ProviderConfig
	Monitor     MonitorConfig
	Batch       BatchConfig
	Pairing     PairingConfig
	Webhook     WebhookConfig
	Metrics     MetricsConfig
}

type StorageConfig struct {
	Driver  string `env:"DB_DRIVER" envDefault:"sqlite"`
	DataDir string `env:"DATA_DIR" envDefault:"/app/data"`

	// AutoMigrate aplica as migrations embutidas ao abrir o banco.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type AppConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN retorna a string de conexão em formato aceito pelo pgxpool.
func (cfg DatabaseConfig) DSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
}

type RateLimitConfig struct {
	Enabled       bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests      int    `env:"RATE_LIMIT_REQUESTS" envDefault:"300"`
	WindowSeconds int    `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	Prefix        string `env:"RATE_LIMIT_PREFIX" envDefault:"ratelimit:api"`
}

type IPRateLimitConfig struct {
	Enabled        bool `env:"IP_RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests       int  `env:"IP_RATE_LIMIT_REQUESTS" envDefault:"600"`
	WindowSeconds  int  `env:"IP_RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	SkipPrivateIPs bool `env:"IP_RATE_LIMIT_SKIP_PRIVATE_IPS" envDefault:"true"`
}

// JWTConfig protege a API de operação. APIKey é uma alternativa estática ao JWT.
type JWTConfig struct {
	Secret string `env:"JWT_SECRET,required"`
	APIKey string `env:"API_KEY" envDefault:""`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"debug"`
}

// ProviderConfig descreve o gateway remoto e os timeouts por operação.
type ProviderConfig struct {
	BaseURL           string        `env:"PROVIDER_BASE_URL" envDefault:"http://localhost:8081"`
	APIKey            string        `env:"PROVIDER_API_KEY" envDefault:""`
	ListTimeout       time.Duration `env:"PROVIDER_LIST_TIMEOUT" envDefault:"15s"`
	CreateTimeout     time.Duration `env:"PROVIDER_CREATE_TIMEOUT" envDefault:"20s"`
	ConnectTimeout    time.Duration `env:"PROVIDER_CONNECT_TIMEOUT" envDefault:"15s"`
	DisconnectTimeout time.Duration `env:"PROVIDER_DISCONNECT_TIMEOUT" envDefault:"10s"`
	DeleteTimeout     time.Duration `env:"PROVIDER_DELETE_TIMEOUT" envDefault:"10s"`
	SendTimeout       time.Duration `env:"PROVIDER_SEND_TIMEOUT" envDefault:"15s"`
	WebhookTimeout    time.Duration `env:"PROVIDER_WEBHOOK_TIMEOUT" envDefault:"10s"`
}

type MonitorConfig struct {
	Enabled    bool          `env:"MONITOR_ENABLED" envDefault:"true"`
	Interval   time.Duration `env:"MONITOR_INTERVAL" envDefault:"60s"`
	SyncOnRead bool          `env:"MONITOR_SYNC_ON_READ" envDefault:"true"`
	LockTTL    time.Duration `env:"MONITOR_LOCK_TTL" envDefault:"30s"`
}

type BatchConfig struct {
	CreateGroupSize int           `env:"BATCH_CREATE_GROUP_SIZE" envDefault:"3"`
	CreatePause     time.Duration `env:"BATCH_CREATE_PAUSE" envDefault:"2s"`
}

type PairingConfig struct {
	TTL           time.Duration `env:"PAIRING_TTL" envDefault:"60s"`
	RefreshLead   time.Duration `env:"PAIRING_REFRESH_LEAD" envDefault:"10s"`
	SweepInterval time.Duration `env:"PAIRING_SWEEP_INTERVAL" envDefault:"30s"`
	CreateDelay   time.Duration `env:"PAIRING_CREATE_DELAY" envDefault:"2s"`
}

type WebhookConfig struct {
	CallbackURL string        `env:"WEBHOOK_CALLBACK_URL" envDefault:""`
	Events      []string      `env:"WEBHOOK_EVENTS" envDefault:"MESSAGES_UPSERT,MESSAGES_UPDATE,QRCODE_UPDATED,CONNECTION_UPDATE"`
	Secret      string        `env:"WEBHOOK_SECRET" envDefault:""`
	Workers     int           `env:"WEBHOOK_WORKERS" envDefault:"4"`
	QueueBuffer int           `env:"WEBHOOK_QUEUE_BUFFER" envDefault:"10000"`
	QueueKey    string        `env:"WEBHOOK_QUEUE_KEY" envDefault:"webhook:inbound"`
	PruneAfter  time.Duration `env:"WEBHOOK_PRUNE_AFTER" envDefault:"24h"`
	DedupTTL    time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"10m"`
}

// CallbackOrDefault devolve a URL que o provider deve chamar.
func (cfg WebhookConfig) CallbackOrDefault(baseURL string) string {
	if cfg.CallbackURL != "" {
		return cfg.CallbackURL
	}
	return baseURL + "/webhook"
}

type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load carrega as configurações da aplicação. Um arquivo .env é opcional.
func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: não foi possível carregar variáveis: %v", err)
	}
	return cfg
}
