package services

import (
	"cmp"
	"context"
	"errors"
	"math"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/metrics"
	"gatehouse-backend/internal/models"
	"gatehouse-backend/internal/repositories"
	"gatehouse-backend/internal/storage"
)

const sealedExtension = ".enc"

var timestampSanitizer = strings.NewReplacer(":", "-", ".", "-")

// RetrievedImage is a decrypted image and its metadata record.
type RetrievedImage struct {
	Data     []byte
	Metadata *models.ImageMetadata
}

// ImageStorageService turns uploads into encrypted objects plus metadata
// records, and reverses the process on retrieval.
type ImageStorageService struct {
	backend   storage.Backend
	metadata  repositories.ImageMetadataRepository
	processor *ImageProcessor
	cipher    *ImageCipher
	maxSize   int64
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewImageStorageService(
	backend storage.Backend,
	metadata repositories.ImageMetadataRepository,
	processor *ImageProcessor,
	cipher *ImageCipher,
	maxSize int64,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ImageStorageService {
	return &ImageStorageService{
		backend:   backend,
		metadata:  metadata,
		processor: processor,
		cipher:    cipher,
		maxSize:   maxSize,
		metrics:   m,
		logger:    logger.With(zap.String("component", "image_storage")),
		now:       time.Now,
	}
}

func (s *ImageStorageService) BackendName() string { return s.backend.Name() }

// StoreImage processes, encrypts and persists one image. The encrypted
// object is written before the metadata record; if the record cannot be
// written the object is removed so nothing half-stored is addressable.
func (s *ImageStorageService) StoreImage(ctx context.Context, data []byte, req models.StoreImageRequest) (*models.StoreImageResult, error) {
	if len(data) == 0 {
		return nil, apperror.Validation("image data is required")
	}
	if int64(len(data)) > s.maxSize {
		return nil, apperror.Validation("image exceeds maximum size of %d bytes", s.maxSize)
	}
	if _, ok := models.ParseCaptureType(string(req.CaptureType)); !ok {
		return nil, apperror.Validation("invalid capture type")
	}
	if req.ResidentInfo.ID == "" {
		return nil, apperror.Validation("resident information is required")
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}
	timestamp = timestamp.UTC()

	processed, err := s.processor.Process(data)
	if err != nil {
		return nil, err
	}

	sealed, err := s.cipher.Seal(processed.Data)
	if err != nil {
		return nil, apperror.Storage("failed to encrypt image", err)
	}
	checksum := Checksum(sealed)

	id := uuid.NewString()
	filename := id + "_" + timestampSanitizer.Replace(timestamp.Format(time.RFC3339)) + sealedExtension
	key := path.Join(string(req.CaptureType), filename)

	if err := s.backend.Put(ctx, key, sealed); err != nil {
		s.logger.Error("image write failed", zap.String("key", key), zap.Error(err))
		return nil, apperror.Storage("failed to store image", err)
	}

	meta := &models.ImageMetadata{
		ID:               id,
		Filename:         filename,
		OriginalFilename: req.OriginalFilename,
		StoragePath:      key,
		CaptureType:      req.CaptureType,
		Timestamp:        timestamp,
		Resident:         req.ResidentInfo.Snapshot(),
		SessionID:        req.SessionID,
		OTP:              req.OTP,
		ContentType:      processed.ContentType,
		FileSize:         int64(len(sealed)),
		OriginalSize:     int64(len(data)),
		Width:            processed.Width,
		Height:           processed.Height,
		CompressionRatio: compressionRatio(int64(len(sealed)), int64(len(data))),
		Checksum:         checksum,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.metadata.Save(ctx, meta); err != nil {
		if delErr := s.backend.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Error("orphaned image after metadata failure",
				zap.String("key", key),
				zap.Error(delErr),
			)
		}
		return nil, apperror.Storage("failed to store image metadata", err)
	}

	s.metrics.AddStoredBytes(meta.FileSize)
	s.logger.Info("image stored",
		zap.String("image_id", id),
		zap.String("capture_type", string(req.CaptureType)),
		zap.String("session_id", req.SessionID),
		zap.Int64("original_size", meta.OriginalSize),
		zap.Int64("file_size", meta.FileSize),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
	)

	return &models.StoreImageResult{
		Success:  true,
		ImageID:  id,
		Filename: filename,
		Metadata: meta,
	}, nil
}

// RetrieveImage returns the decrypted image. Bytes that fail the checksum
// or AEAD authentication are never returned.
func (s *ImageStorageService) RetrieveImage(ctx context.Context, id string) (*RetrievedImage, error) {
	meta, err := s.getMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	sealed, err := s.backend.Get(ctx, meta.StoragePath)
	if err != nil {
		s.logger.Error("image data unavailable", zap.String("image_id", id), zap.Error(err))
		return nil, apperror.Storage("image data unavailable", err)
	}

	if Checksum(sealed) != meta.Checksum {
		s.metrics.IncIntegrityFailure()
		s.logger.Error("image checksum mismatch", zap.String("image_id", id))
		return nil, apperror.Integrity("image integrity check failed", nil)
	}

	plaintext, err := s.cipher.Open(sealed)
	if err != nil {
		s.metrics.IncIntegrityFailure()
		s.logger.Error("image authentication failed", zap.String("image_id", id), zap.Error(err))
		return nil, apperror.Integrity("image integrity check failed", err)
	}

	return &RetrievedImage{Data: plaintext, Metadata: meta}, nil
}

// GetImagesByResident returns the resident's images, newest first.
func (s *ImageStorageService) GetImagesByResident(ctx context.Context, residentID string) ([]*models.ImageMetadata, error) {
	if strings.TrimSpace(residentID) == "" {
		return nil, apperror.Validation("resident id is required")
	}
	records, err := s.metadata.ListByResident(ctx, residentID)
	if err != nil {
		return nil, apperror.Storage("failed to list images", err)
	}
	slices.SortStableFunc(records, func(a, b *models.ImageMetadata) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if records == nil {
		records = []*models.ImageMetadata{}
	}
	return records, nil
}

// GetStorageStats aggregates every metadata record.
func (s *ImageStorageService) GetStorageStats(ctx context.Context) (*models.StorageStats, error) {
	records, err := s.metadata.List(ctx)
	if err != nil {
		return nil, apperror.Storage("failed to list images", err)
	}

	stats := &models.StorageStats{
		ByType:  make(map[models.CaptureType]int, len(models.AllCaptureTypes)),
		Backend: s.backend.Name(),
	}
	for _, t := range models.AllCaptureTypes {
		stats.ByType[t] = 0
	}

	for _, meta := range records {
		stats.TotalImages++
		stats.TotalSize += meta.FileSize
		stats.ByType[meta.CaptureType]++

		ts := meta.Timestamp
		if stats.OldestImage == nil || ts.Before(*stats.OldestImage) {
			stats.OldestImage = &ts
		}
		if stats.NewestImage == nil || ts.After(*stats.NewestImage) {
			stats.NewestImage = &ts
		}
	}
	return stats, nil
}

// DeleteImage removes the metadata record, then the encrypted object. A
// failed object delete leaves an orphan for CollectOrphans; the image is
// no longer addressable either way.
func (s *ImageStorageService) DeleteImage(ctx context.Context, id string) error {
	meta, err := s.getMetadata(ctx, id)
	if err != nil {
		return err
	}

	if err := s.metadata.Delete(ctx, id); err != nil {
		return apperror.Storage("failed to delete image metadata", err)
	}
	if err := s.backend.Delete(ctx, meta.StoragePath); err != nil {
		s.logger.Warn("image object left behind after delete",
			zap.String("image_id", id),
			zap.String("key", meta.StoragePath),
			zap.Error(err),
		)
	}

	s.logger.Info("image deleted", zap.String("image_id", id))
	return nil
}

// CollectOrphans finds encrypted objects with no metadata record that are
// older than minAge and, unless dryRun, deletes them. It returns the
// orphan keys.
func (s *ImageStorageService) CollectOrphans(ctx context.Context, minAge time.Duration, dryRun bool) ([]string, error) {
	records, err := s.metadata.List(ctx)
	if err != nil {
		return nil, apperror.Storage("failed to list images", err)
	}
	known := make(map[string]struct{}, len(records))
	for _, meta := range records {
		known[meta.StoragePath] = struct{}{}
	}

	cutoff := s.now().Add(-minAge)
	var orphans []string
	for _, t := range models.AllCaptureTypes {
		objects, err := s.backend.List(ctx, string(t))
		if err != nil {
			return orphans, apperror.Storage("failed to list stored images", err)
		}
		for _, obj := range objects {
			if obj.IsDir || !strings.HasSuffix(obj.Name, sealedExtension) {
				continue
			}
			if _, ok := known[obj.Key]; ok {
				continue
			}
			if minAge > 0 && obj.ModTime.After(cutoff) {
				continue
			}
			orphans = append(orphans, obj.Key)
			if dryRun {
				continue
			}
			if err := s.backend.Delete(ctx, obj.Key); err != nil {
				return orphans, apperror.Storage("failed to delete orphan", err)
			}
			s.logger.Info("orphan removed", zap.String("key", obj.Key))
		}
	}
	return orphans, nil
}

func (s *ImageStorageService) getMetadata(ctx context.Context, id string) (*models.ImageMetadata, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.NotFound("image not found")
	}
	meta, err := s.metadata.Get(ctx, id)
	if errors.Is(err, repositories.ErrImageMetadataNotFound) {
		return nil, apperror.NotFound("image not found")
	}
	if err != nil {
		return nil, apperror.Storage("failed to read image metadata", err)
	}
	return meta, nil
}

// compressionRatio is the percentage saved, rounded to two decimals.
func compressionRatio(stored, original int64) float64 {
	if original <= 0 {
		return 0
	}
	ratio := (1 - float64(stored)/float64(original)) * 100
	return math.Round(ratio*100) / 100
}
