package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	AI        AIConfig        `mapstructure:"ai"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	NodeID   int64  `mapstructure:"node_id"`
	LogLevel string `mapstructure:"log_level"`
}

type JWTConfig struct {
	SecretKey     string        `mapstructure:"secret_key"`
	AccessExpire  time.Duration `mapstructure:"access_expire"`
	RefreshExpire time.Duration `mapstructure:"refresh_expire"`
}

// DatabaseConfig selects the persistence backend.
// Driver "postgres" uses pgxpool, "sqlite" uses sqlx with modernc sqlite at Path.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// GatewayConfig controls the realtime gateway.
type GatewayConfig struct {
	SendBuffer             int                `mapstructure:"send_buffer"`
	MaxFrameSize           int64              `mapstructure:"max_frame_size"`
	HeartbeatTimeout       time.Duration      `mapstructure:"heartbeat_timeout"`
	HeartbeatCheckInterval time.Duration      `mapstructure:"heartbeat_check_interval"`
	WebTransport           WebTransportConfig `mapstructure:"webtransport"`
}

type WebTransportConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	CertFile        string        `mapstructure:"cert_file"`
	KeyFile         string        `mapstructure:"key_file"`
	MaxIdleTimeout  time.Duration `mapstructure:"max_idle_timeout"`
	KeepAlivePeriod time.Duration `mapstructure:"keep_alive_period"`
}

// DispatchConfig sizes the detached fan-out worker pool.
type DispatchConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// AIConfig configures automated replies. An empty APIKey disables the feature.
type AIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int64         `mapstructure:"max_tokens"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	FallbackDelay  time.Duration `mapstructure:"fallback_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CatalogPath    string        `mapstructure:"catalog_path"`
	Queue          string        `mapstructure:"queue"`
	Workers        int           `mapstructure:"workers"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
}

// Enabled reports whether provider credentials are present.
func (c AIConfig) Enabled() bool {
	return c.APIKey != ""
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "scrapbook-chat")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.mode", "release")
	v.SetDefault("app.node_id", 1)
	v.SetDefault("app.log_level", "info")

	v.SetDefault("jwt.access_expire", "2h")
	v.SetDefault("jwt.refresh_expire", "720h")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "scrapbook.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("gateway.send_buffer", 128)
	v.SetDefault("gateway.max_frame_size", 64*1024)
	v.SetDefault("gateway.heartbeat_timeout", "90s")
	v.SetDefault("gateway.heartbeat_check_interval", "30s")
	v.SetDefault("gateway.webtransport.addr", ":4433")
	v.SetDefault("gateway.webtransport.max_idle_timeout", "60s")
	v.SetDefault("gateway.webtransport.keep_alive_period", "15s")

	v.SetDefault("dispatch.workers", 8)
	v.SetDefault("dispatch.queue_size", 1024)
	v.SetDefault("dispatch.task_timeout", "2m")

	v.SetDefault("ai.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.max_tokens", 512)
	v.SetDefault("ai.history_limit", 20)
	v.SetDefault("ai.fallback_delay", "15s")
	v.SetDefault("ai.max_delay", "60s")
	v.SetDefault("ai.request_timeout", "45s")
	v.SetDefault("ai.queue", "pool")
	v.SetDefault("ai.workers", 4)
	v.SetDefault("ai.task_timeout", "3m")

	v.SetDefault("telemetry.service_name", "scrapbook-chat")
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	// App
	c.App.Port = GetEnvInt("CHAT_PORT", c.App.Port)
	c.App.Mode = GetEnv("GIN_MODE", c.App.Mode)
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)

	// JWT
	c.JWT.SecretKey = GetEnv("JWT_SECRET", c.JWT.SecretKey)
	c.JWT.AccessExpire = GetEnvDuration("JWT_ACCESS_EXPIRE", c.JWT.AccessExpire)

	// Database
	c.Database.Driver = GetEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.Path = GetEnv("SQLITE_PATH", c.Database.Path)
	c.Database.Host = GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("POSTGRES_DB", c.Database.Name)

	// Redis
	c.Redis.Enabled = GetEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)

	// NATS
	c.NATS.Enabled = GetEnvBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)

	// AI
	c.AI.APIKey = GetEnv("ANTHROPIC_API_KEY", c.AI.APIKey)
	c.AI.Model = GetEnv("AI_MODEL", c.AI.Model)
	c.AI.FallbackDelay = GetEnvDuration("AI_FALLBACK_DELAY", c.AI.FallbackDelay)
	c.AI.CatalogPath = GetEnv("AI_CATALOG_PATH", c.AI.CatalogPath)
	c.AI.Queue = GetEnv("AI_QUEUE", c.AI.Queue)

	// Telemetry
	c.Telemetry.OTLPEndpoint = GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
}
