package commands

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gatehouse-backend/internal/config"
	"gatehouse-backend/internal/database"
	"gatehouse-backend/internal/logger"
	"gatehouse-backend/internal/metrics"
	"gatehouse-backend/internal/repositories"
	"gatehouse-backend/internal/services"
	"gatehouse-backend/internal/storage"
	"gatehouse-backend/migrations"
)

const serviceName = "gatehouse"

type Globals struct {
	ConfigDirs []string
	Version    string
}

// imageStack is everything the image storage engine needs, shared by
// every subcommand.
type imageStack struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	backend storage.Backend
	pool    *pgxpool.Pool
	images  *services.ImageStorageService
}

func (g *Globals) loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.ConfigDirs...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func buildImageStack(ctx context.Context, cfg *config.Config, log *zap.Logger) (*imageStack, error) {
	stack := &imageStack{cfg: cfg, logger: log, metrics: metrics.New()}

	backend, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	stack.backend = backend

	var metadata repositories.ImageMetadataRepository
	switch cfg.Metadata.Store {
	case config.MetadataStorePostgres:
		pool, err := database.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		stack.pool = pool
		if cfg.Database.AutoMigrate {
			if err := database.NewMigrator(pool, migrations.FS, ".", log).RunMigrations(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		metadata = repositories.NewPostgresImageMetadataRepository(pool)
	default:
		metadata = repositories.NewFileImageMetadataRepository(backend, log)
	}

	key, generated, err := services.ParseKey(cfg.EncryptionKey)
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("parse encryption key: %w", err)
	}
	if generated {
		log.Warn("ENCRYPTION_KEY not set, using a random key; images stored now are unreadable after restart")
	}
	cipher, err := services.NewImageCipher(key)
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("create image cipher: %w", err)
	}

	stack.images = services.NewImageStorageService(
		backend,
		metadata,
		services.NewImageProcessor(cfg.Image),
		cipher,
		cfg.Image.MaxSize,
		stack.metrics,
		log,
	)

	log.Info("image storage ready",
		zap.String("backend", backend.Name()),
		zap.String("metadata_store", cfg.Metadata.Store),
	)
	return stack, nil
}

func (s *imageStack) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	s.logger.Sync()
}
