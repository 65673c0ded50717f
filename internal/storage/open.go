package storage

import (
	"context"
	"fmt"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/sirupsen/logrus"
)

// Open builds the backend selected by STORAGE_BACKEND. The returned close
// function is never nil.
func Open(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageBackend {
	case "azure":
		blobs, err := NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize blob storage: %w", err)
		}
		logrus.Infof("Using Azure blob storage %s/%s", cfg.StorageAccount, cfg.StorageContainer)
		return NewBlobObservationStore(blobs), noop, nil

	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, noop, err
		}
		logrus.Info("Using PostgreSQL storage")
		return store, store.Close, nil

	case "memory", "":
		logrus.Warn("Using in-memory storage, observations are lost on restart")
		return NewMemoryStore(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
