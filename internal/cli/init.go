// Package cli provides common initialization shared by the binaries under
// cmd/.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sxledger/internal/adapters"
	"sxledger/internal/amqp"
	"sxledger/internal/backend"
	"sxledger/internal/cache"
	"sxledger/internal/config"
	"sxledger/internal/log"
	"sxledger/internal/services"
	"sxledger/internal/sheets"
	"sxledger/internal/storage"
)

// SetupLogger builds the logger for component from the environment and
// installs it as the slog default. It runs before configuration is
// validated so that validation failures are logged in the right format.
func SetupLogger(component string) *log.Logger {
	logger := config.Load().Logger(component)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// NewLedger wraps repo with a cached account resolver. The returned
// cleaner is meant for cache.RunCleanup.
func NewLedger(repo *storage.SQLiteRepository, ttl time.Duration) (*adapters.LedgerAdapter, cache.Cleaner) {
	return adapters.NewLedgerAdapter(repo, 256, ttl)
}

// InitPublisher connects to the broker when AMQP_URL is set. Without one,
// or when the broker is unreachable, events are only logged.
func InitPublisher(ctx context.Context, cfg *config.Config) (*services.EventPublisher, *amqp.Client) {
	if cfg.AMQPURL == "" {
		slog.InfoContext(ctx, "AMQP not configured, events will only be logged")
		return services.NewEventPublisher(nil), nil
	}
	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		slog.WarnContext(ctx, "AMQP unavailable, events will only be logged", "error", err)
		return services.NewEventPublisher(nil), nil
	}
	return services.NewEventPublisher(client), client
}

// InitMirrorWriter returns the ledger mirror backend selected by
// MIRROR_BACKEND. Rows name accounts through ledger.
func InitMirrorWriter(ctx context.Context, cfg *config.Config, ledger *adapters.LedgerAdapter) (sheets.LedgerWriter, backend.CleanupFunc, error) {
	bcfg, err := backend.FromAppConfig(cfg, ledger.AccountName)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(slog.Default()).CreateWriter(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}
	return res.Writer, res.Cleanup, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
func GracefulShutdown(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}
