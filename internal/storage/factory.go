package storage

import (
	"context"
	"fmt"

	"gatehouse-backend/internal/config"
)

// New builds the backend selected by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendLocal:
		return NewLocalBackend(cfg.Storage.Root)
	case config.StorageBackendS3:
		return NewS3Backend(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
