/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the veronagrow ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, .env) and parse flags
  2. Open the store selected by STORE_DRIVER
  3. Connect the idempotency store (Redis, or in-process memory)
  4. Create the ledger service, metrics and API handler
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  Flags override the matching environment settings.
  -port    HTTP server port (SERVER_ADDR)
  -db      SQLite database path (SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SERVER_SHUTDOWN_TIMEOUT)
  3. Close store and Redis connections
  4. Exit

EXAMPLES:
  # Run with file database
  AUTH_JWT_SECRET=dev ./server -db="./data/veronagrow.db"

  # Run against Postgres with shared idempotency keys
  STORE_DRIVER=postgres PG_DSN=postgres://... REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Database implementations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Cronanaut/veronagrow/api"
	"github.com/Cronanaut/veronagrow/config"
	"github.com/Cronanaut/veronagrow/idempotency"
	"github.com/Cronanaut/veronagrow/ledger"
	"github.com/Cronanaut/veronagrow/ledger/store"
	"github.com/Cronanaut/veronagrow/metrics"
	"github.com/Cronanaut/veronagrow/store/postgres"
	"github.com/Cronanaut/veronagrow/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides SERVER_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides SQLITE_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Addr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.Store.SQLitePath = *dbPath
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	txStore, health, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	// Idempotency keys
	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.Redis.IdempotencyTTL)
	if cfg.Redis.Addr != "" {
		client, err := idempotency.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		idem = idempotency.NewRedisStore(client, cfg.Redis.IdempotencyTTL)
	}

	m := metrics.New()
	svc := ledger.NewService(txStore, ledger.Options{
		AllowNegativeStock: cfg.Ledger.AllowNegativeStock,
		Retry:              cfg.Ledger.Retry(),
		Logger:             logger,
		Metrics:            m,
	})

	router := api.NewRouter(api.NewHandler(svc, logger), api.RouterConfig{
		Auth:               api.Authenticator{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer},
		AllowedOrigins:     cfg.HTTP.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		Production:         cfg.App.IsProduction(),
		Metrics:            m,
		Idempotency:        idem,
		Health:             health,
		Logger:             logger,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Server.Addr), slog.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore opens the configured driver and returns it with its health
// check and close function.
func openStore(ctx context.Context, cfg config.StoreConfig) (ledger.TxStore, func(context.Context) error, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.Ping, func() { s.Close() }, nil
	case config.DriverMemory:
		return store.NewMemory(), nil, func() {}, nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.Ping, func() { s.Close() }, nil
	}
}
