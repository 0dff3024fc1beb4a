package config

import (
	"time"

	"github.com/flipmyera/credit-ledger/pkg/config"
	"github.com/flipmyera/credit-ledger/pkg/logger"
	"go.uber.org/zap"
)

// ServiceName is used as the config file name and the environment variable prefix (LEDGER_).
const ServiceName = "ledger"

type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
	Redis    RedisConfig
}

var defaults = map[string]interface{}{
	"service.name":                   "credit-ledger",
	"service.environment":            "development",
	"service.products_path":          "configs/products.yaml",
	"service.webhook_max_body_bytes": 1 << 20,
	"database.host":                  "localhost",
	"database.port":                  5432,
	"database.sslmode":               "disable",
	"database.max_open_conns":        25,
	"database.max_idle_conns":        5,
	"database.conn_max_lifetime":     "5m",
	"database.conn_max_idle_time":    "5m",
	"database.slow_query_threshold":  "200ms",
	"server.http.host":               "0.0.0.0",
	"server.http.port":               8080,
	"server.http.shutdown_timeout":   "15s",
	"server.grpc.host":               "0.0.0.0",
	"server.grpc.port":               9090,
	"log.level":                      "info",
	"log.format":                     "json",
	"log.output":                     "stdout",
	"redis.channel":                  "ledger.events",
	"replay.batch_size":              50,
	"replay.max_attempts":            8,
	"replay.stale_after":             "15m",
}

// LoadConfig reads configs/ledger.yaml (or CONFIG_PATH) with LEDGER_* environment overrides.
func LoadConfig() (*Config, error) {
	cfg, err := config.Load(ServiceName, config.Options{Defaults: defaults, AllowMissingFile: true})
	if err != nil {
		return nil, err
	}
	return fromSource(cfg), nil
}

func fromSource(cfg config.Config) *Config {
	c := &Config{}

	c.Service.Name = cfg.GetString("service.name")
	c.Service.Environment = cfg.GetString("service.environment")
	c.Service.Version = cfg.GetString("service.version")
	c.Service.ClientURL = cfg.GetString("service.client_url")
	c.Service.StripeSecretKey = cfg.GetString("service.stripe_secret_key")
	c.Service.StripeWebhookSecret = cfg.GetString("service.stripe_webhook_secret")
	c.Service.JWTSecret = cfg.GetString("service.jwt_secret")
	c.Service.AdminEmails = cfg.GetStringSlice("service.admin_emails")
	c.Service.ProductsPath = cfg.GetString("service.products_path")
	c.Service.WebhookMaxBodyBytes = cfg.GetInt64("service.webhook_max_body_bytes")
	c.Service.Replay.BatchSize = cfg.GetInt("replay.batch_size")
	c.Service.Replay.MaxAttempts = cfg.GetInt("replay.max_attempts")
	c.Service.Replay.StaleAfter = cfg.GetDuration("replay.stale_after")

	c.Database.Host = cfg.GetString("database.host")
	c.Database.Port = cfg.GetInt("database.port")
	c.Database.Name = cfg.GetString("database.name")
	c.Database.User = cfg.GetString("database.user")
	c.Database.Password = cfg.GetString("database.password")
	c.Database.SSLMode = cfg.GetString("database.sslmode")
	c.Database.URL = cfg.GetString("database.url")
	c.Database.MaxOpenConns = cfg.GetInt("database.max_open_conns")
	c.Database.MaxIdleConns = cfg.GetInt("database.max_idle_conns")
	c.Database.ConnMaxLifetime = cfg.GetDuration("database.conn_max_lifetime")
	c.Database.ConnMaxIdleTime = cfg.GetDuration("database.conn_max_idle_time")
	c.Database.SlowQueryThreshold = cfg.GetDuration("database.slow_query_threshold")

	c.Server.HTTP.Host = cfg.GetString("server.http.host")
	c.Server.HTTP.Port = cfg.GetInt("server.http.port")
	c.Server.HTTP.ShutdownTimeout = cfg.GetDuration("server.http.shutdown_timeout")
	c.Server.HTTP.AllowedOrigins = cfg.GetStringSlice("server.http.allowed_origins")
	c.Server.GRPC.Host = cfg.GetString("server.grpc.host")
	c.Server.GRPC.Port = cfg.GetInt("server.grpc.port")

	c.Log.Level = cfg.GetString("log.level")
	c.Log.Format = cfg.GetString("log.format")
	c.Log.Output = cfg.GetString("log.output")
	c.Log.FilePath = cfg.GetString("log.file_path")
	c.Log.Development = cfg.GetBool("log.development")

	c.Redis.Enabled = cfg.GetBool("redis.enabled")
	c.Redis.Addr = cfg.GetString("redis.addr")
	c.Redis.Password = cfg.GetString("redis.password")
	c.Redis.DB = cfg.GetInt("redis.db")
	c.Redis.Channel = cfg.GetString("redis.channel")

	return c
}

// NewLogger builds the service logger from the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	log, err := logger.NewZapLogger(logger.Config{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		Output:      c.Log.Output,
		FilePath:    c.Log.FilePath,
		Development: c.Log.Development,
	})
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("service", c.Service.Name), zap.String("env", c.Service.Environment)), nil
}

type LogConfig struct {
	Level       string
	Format      string
	Output      string
	FilePath    string
	Development bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// Channel receives ledger events after commit.
	Channel string
}

// ReplayConfig drives cmd/replay-webhooks.
type ReplayConfig struct {
	BatchSize   int
	MaxAttempts int
	// StaleAfter is how long a pending or processing event may sit before replay takes it.
	StaleAfter time.Duration
}
