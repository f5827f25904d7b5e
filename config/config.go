// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Cronanaut/veronagrow/ledger"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	App    AppConfig
	Server ServerConfig
	Store  StoreConfig
	Auth   AuthConfig
	Redis  RedisConfig
	Ledger LedgerConfig
	HTTP   HTTPConfig
	Log    LogConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// StoreConfig selects and configures the persistence driver.
type StoreConfig struct {
	Driver      string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/veronagrow.db"`
	PostgresDSN string `envconfig:"PG_DSN" default:""`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET" default:""`
	// Issuer, when set, must match the token's iss claim.
	Issuer string `envconfig:"AUTH_ISSUER" default:""`
}

// RedisConfig configures the idempotency key store. An empty Addr keeps
// keys in process memory.
type RedisConfig struct {
	Addr           string        `envconfig:"REDIS_ADDR" default:""`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

// LedgerConfig holds stock policy and conflict retry settings.
type LedgerConfig struct {
	AllowNegativeStock bool          `envconfig:"LEDGER_ALLOW_NEGATIVE_STOCK" default:"false"`
	RetryAttempts      int           `envconfig:"LEDGER_RETRY_ATTEMPTS" default:"3"`
	RetryInitialDelay  time.Duration `envconfig:"LEDGER_RETRY_INITIAL_DELAY" default:"50ms"`
	RetryMaxDelay      time.Duration `envconfig:"LEDGER_RETRY_MAX_DELAY" default:"1s"`
}

// HTTPConfig holds middleware settings.
type HTTPConfig struct {
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `envconfig:"LOG_FORMAT" default:"text"`
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that cannot be expressed as defaults.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("config: PG_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET must be provided")
	}
	if c.Ledger.RetryAttempts < 1 {
		return fmt.Errorf("config: LEDGER_RETRY_ATTEMPTS must be >= 1, got %d", c.Ledger.RetryAttempts)
	}
	if c.HTTP.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must be >= 0, got %d", c.HTTP.RateLimitPerMinute)
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Retry converts the retry settings for the ledger service.
func (l LedgerConfig) Retry() ledger.RetryConfig {
	return ledger.RetryConfig{
		MaxAttempts:   l.RetryAttempts,
		InitialDelay:  l.RetryInitialDelay,
		MaxDelay:      l.RetryMaxDelay,
		BackoffFactor: ledger.DefaultRetryBackoffFactor,
	}
}

// NewLogger returns a slog.Logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
