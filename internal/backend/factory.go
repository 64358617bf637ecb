package backend

import (
	"context"
	"fmt"
	"log/slog"

	"tesouraria/internal/amqp"
	"tesouraria/internal/store/memory"
	"tesouraria/internal/store/postgres"
	"tesouraria/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := sqlite.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return f.withChangeBridge(repo, config)
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := postgres.New(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")

	return f.withChangeBridge(repo, config)
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	st := memory.New()

	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Store:   st,
		Cleanup: st.Close,
	}, nil
}

// withChangeBridge optionally wraps a SQL-backed store so that other
// instances sharing the database see writes as they happen.
func (f *DefaultFactory) withChangeBridge(repo invalidatingStore, config Config) (*BackendResult, error) {
	if config.AMQPURL == "" {
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without change bridge", "error", err)
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
	}

	f.logger.Info("Initialized AMQP change bridge",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	bridged := newBridgedStore(repo, client, f.logger)
	return &BackendResult{Store: bridged, Cleanup: bridged.Close}, nil
}
