package backend

import (
	"context"
	"fmt"
	"log/slog"

	"gagyebu/internal/cache"
	"gagyebu/internal/ledger"
	"gagyebu/internal/ledger/memory"
	"gagyebu/internal/storage"
	"gagyebu/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	// Manager, when set, receives the marker cache for periodic cleanup.
	manager *cache.Manager
}

func NewFactory(logger *slog.Logger, manager *cache.Manager) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:  logger,
		manager: manager,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		res, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		res = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	res.Markers = f.markers(res.Store, config)
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &Result{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*Result, error) {
	repo, err := postgres.New(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")

	return &Result{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	f.logger.Info("Initialized memory backend; data is lost on exit")
	return &Result{
		Store:   memory.New(),
		Cleanup: func() error { return nil },
	}
}

// markers puts a device-local cache in front of the store's markers.
func (f *DefaultFactory) markers(store ledger.Store, config Config) ledger.MarkerStore {
	if config.MarkerCacheSize <= 0 || config.Type == MemoryBackend {
		return store
	}
	mc := cache.NewMarkerCache(config.MarkerCacheSize, config.MarkerCacheTTL)
	if f.manager != nil {
		f.manager.Register(mc)
	}
	f.logger.Info("Marker cache enabled",
		"size", config.MarkerCacheSize,
		"ttl", config.MarkerCacheTTL)
	return cache.NewLayeredMarkers(mc, store)
}
