package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.False(t, cfg.Ledger.AllowNegativeStock)
	assert.Equal(t, 3, cfg.Ledger.RetryAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Ledger.RetryInitialDelay)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("PG_DSN", "postgres://localhost/veronagrow")
	t.Setenv("LEDGER_ALLOW_NEGATIVE_STOCK", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.True(t, cfg.Ledger.AllowNegativeStock)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSAllowedOrigins)

	retry := cfg.Ledger.Retry()
	assert.Equal(t, 3, retry.MaxAttempts)
	assert.Equal(t, time.Second, retry.MaxDelay)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"AUTH_JWT_SECRET": ""}},
		{"unknown driver", map[string]string{"AUTH_JWT_SECRET": "s", "STORE_DRIVER": "mysql"}},
		{"postgres without dsn", map[string]string{"AUTH_JWT_SECRET": "s", "STORE_DRIVER": "postgres", "PG_DSN": ""}},
		{"zero retry attempts", map[string]string{"AUTH_JWT_SECRET": "s", "LEDGER_RETRY_ATTEMPTS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Format: "json", Level: "warn"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
