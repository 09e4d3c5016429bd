package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"gatehouse-backend/internal/models"
	"gatehouse-backend/internal/storage"
)

var ErrImageMetadataNotFound = errors.New("image metadata not found")

// ImageMetadataRepository persists one immutable record per stored image.
type ImageMetadataRepository interface {
	Save(ctx context.Context, meta *models.ImageMetadata) error
	Get(ctx context.Context, id string) (*models.ImageMetadata, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.ImageMetadata, error)
	ListByResident(ctx context.Context, residentID string) ([]*models.ImageMetadata, error)
}

const metadataPrefix = "metadata"

// FileImageMetadataRepository stores each record as metadata/<id>.json on
// the same backend as the encrypted images.
type FileImageMetadataRepository struct {
	backend storage.Backend
	logger  *zap.Logger
}

func NewFileImageMetadataRepository(backend storage.Backend, logger *zap.Logger) *FileImageMetadataRepository {
	return &FileImageMetadataRepository{
		backend: backend,
		logger:  logger.With(zap.String("component", "metadata_store")),
	}
}

func metadataKey(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return "", fmt.Errorf("invalid image id %q", id)
	}
	return path.Join(metadataPrefix, id+".json"), nil
}

func (r *FileImageMetadataRepository) Save(ctx context.Context, meta *models.ImageMetadata) error {
	key, err := metadataKey(meta.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return r.backend.Put(ctx, key, data)
}

func (r *FileImageMetadataRepository) Get(ctx context.Context, id string) (*models.ImageMetadata, error) {
	key, err := metadataKey(id)
	if err != nil {
		return nil, ErrImageMetadataNotFound
	}
	data, err := r.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrImageMetadataNotFound
	}
	if err != nil {
		return nil, err
	}

	var meta models.ImageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (r *FileImageMetadataRepository) Delete(ctx context.Context, id string) error {
	key, err := metadataKey(id)
	if err != nil {
		return err
	}
	return r.backend.Delete(ctx, key)
}

// List reads every record. Unreadable records are logged and skipped so
// one corrupt file cannot hide the rest.
func (r *FileImageMetadataRepository) List(ctx context.Context) ([]*models.ImageMetadata, error) {
	objects, err := r.backend.List(ctx, metadataPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ImageMetadata, 0, len(objects))
	for _, obj := range objects {
		if obj.IsDir || !strings.HasSuffix(obj.Name, ".json") {
			continue
		}
		meta, err := r.Get(ctx, strings.TrimSuffix(obj.Name, ".json"))
		if err != nil {
			r.logger.Warn("skipping unreadable metadata record", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		records = append(records, meta)
	}
	return records, nil
}

func (r *FileImageMetadataRepository) ListByResident(ctx context.Context, residentID string) ([]*models.ImageMetadata, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*models.ImageMetadata
	for _, meta := range all {
		if meta.Resident.ID == residentID {
			matched = append(matched, meta)
		}
	}
	return matched, nil
}
