package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/metrics"
	"gatehouse-backend/internal/models"
	"gatehouse-backend/internal/repositories"
	"gatehouse-backend/internal/storage"
)

type failingMetadataRepo struct {
	repositories.ImageMetadataRepository
	saveErr error
}

func (r *failingMetadataRepo) Save(context.Context, *models.ImageMetadata) error { return r.saveErr }

type imageFixture struct {
	svc      *ImageStorageService
	backend  *storage.LocalBackend
	metadata repositories.ImageMetadataRepository
}

func newImageFixture(t *testing.T) *imageFixture {
	t.Helper()
	backend, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	metadata := repositories.NewFileImageMetadataRepository(backend, zap.NewNop())
	return &imageFixture{
		svc:      newImageService(t, backend, metadata),
		backend:  backend,
		metadata: metadata,
	}
}

func newImageService(t *testing.T, backend storage.Backend, metadata repositories.ImageMetadataRepository) *ImageStorageService {
	t.Helper()
	return NewImageStorageService(
		backend,
		metadata,
		NewImageProcessor(testImageConfig()),
		testCipher(t),
		5<<20,
		metrics.New(),
		zap.NewNop(),
	)
}

func storeRequest(residentID string, t models.CaptureType, ts time.Time) models.StoreImageRequest {
	return models.StoreImageRequest{
		ResidentInfo:     models.ResidentInfo{ID: residentID, Name: "Jane Doe", UnitNumber: "A1"},
		CaptureType:      t,
		Timestamp:        ts,
		SessionID:        "session-1",
		OTP:              "123456",
		OriginalFilename: "id-card.png",
	}
}

func TestImageStorageService_storeAndRetrieve(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	upload := pngBytes(t, 320, 240)

	res, err := f.svc.StoreImage(ctx, upload, storeRequest("res-1", models.CapturePerson, ts))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NoError(t, uuid.Validate(res.ImageID))
	require.Equal(t, res.ImageID+"_2025-03-01T10-30-00Z.enc", res.Filename)

	meta := res.Metadata
	require.Equal(t, "person/"+res.Filename, meta.StoragePath)
	require.Equal(t, "image/jpeg", meta.ContentType)
	require.Equal(t, int64(len(upload)), meta.OriginalSize)
	require.Equal(t, 320, meta.Width)
	require.Equal(t, "res-1", meta.Resident.ID)
	require.Equal(t, "id-card.png", meta.OriginalFilename)
	require.Len(t, meta.Checksum, 64)

	sealed, err := f.backend.Get(ctx, meta.StoragePath)
	require.NoError(t, err)
	require.Equal(t, meta.FileSize, int64(len(sealed)))
	require.Equal(t, Checksum(sealed), meta.Checksum)
	require.False(t, bytes.Contains(sealed, []byte("JFIF")), "stored bytes must be encrypted")

	got, err := f.svc.RetrieveImage(ctx, res.ImageID)
	require.NoError(t, err)
	require.Equal(t, meta.ID, got.Metadata.ID)
	img := decodeJPEG(t, got.Data)
	require.Equal(t, 320, img.Bounds().Dx())
	require.Equal(t, 240, img.Bounds().Dy())
}

func TestImageStorageService_storeValidation(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := f.svc.StoreImage(ctx, nil, storeRequest("res-1", models.CapturePerson, now))
	require.True(t, apperror.Is(err, apperror.KindValidation))
	require.Equal(t, "image data is required", apperror.Message(err))

	_, err = f.svc.StoreImage(ctx, make([]byte, 5<<20+1), storeRequest("res-1", models.CapturePerson, now))
	require.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.svc.StoreImage(ctx, pngBytes(t, 4, 4), storeRequest("res-1", "selfie", now))
	require.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.svc.StoreImage(ctx, []byte("not an image"), storeRequest("res-1", models.CapturePerson, now))
	require.True(t, apperror.Is(err, apperror.KindValidation))

	objects, err := f.backend.List(ctx, "person")
	require.NoError(t, err)
	require.Empty(t, objects)
}

func TestImageStorageService_metadataFailureLeavesNothing(t *testing.T) {
	backend, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	repo := &failingMetadataRepo{saveErr: errors.New("disk full")}
	svc := newImageService(t, backend, repo)

	_, err = svc.StoreImage(context.Background(), pngBytes(t, 8, 8), storeRequest("res-1", models.CapturePerson, time.Now()))
	require.True(t, apperror.Is(err, apperror.KindStorage))

	objects, err := backend.List(context.Background(), "person")
	require.NoError(t, err)
	require.Empty(t, objects)
}

func TestImageStorageService_retrieveErrors(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	_, err := f.svc.RetrieveImage(ctx, uuid.NewString())
	require.True(t, apperror.Is(err, apperror.KindNotFound))
	require.Equal(t, "image not found", apperror.Message(err))

	_, err = f.svc.RetrieveImage(ctx, "../../etc/passwd")
	require.True(t, apperror.Is(err, apperror.KindNotFound))

	res, err := f.svc.StoreImage(ctx, pngBytes(t, 16, 16), storeRequest("res-1", models.CapturePerson, time.Now()))
	require.NoError(t, err)
	key := res.Metadata.StoragePath

	t.Run("tampered bytes", func(t *testing.T) {
		sealed, err := f.backend.Get(ctx, key)
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0x01
		require.NoError(t, f.backend.Put(ctx, key, sealed))

		_, err = f.svc.RetrieveImage(ctx, res.ImageID)
		require.True(t, apperror.Is(err, apperror.KindIntegrity))
	})

	t.Run("missing bytes", func(t *testing.T) {
		require.NoError(t, f.backend.Delete(ctx, key))
		_, err := f.svc.RetrieveImage(ctx, res.ImageID)
		require.True(t, apperror.Is(err, apperror.KindStorage))
	})
}

func TestImageStorageService_retrieveRejectsForgedChecksum(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	res, err := f.svc.StoreImage(ctx, pngBytes(t, 16, 16), storeRequest("res-1", models.CapturePerson, time.Now()))
	require.NoError(t, err)

	// Replace the object with a validly sealed but different image, so the
	// AEAD passes and only the checksum catches it.
	other, err := f.svc.cipher.Seal([]byte("other image"))
	require.NoError(t, err)
	require.NoError(t, f.backend.Put(ctx, res.Metadata.StoragePath, other))

	_, err = f.svc.RetrieveImage(ctx, res.ImageID)
	require.True(t, apperror.Is(err, apperror.KindIntegrity))
}

func TestImageStorageService_byResidentAndStats(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	img := pngBytes(t, 8, 8)

	stats, err := f.svc.GetStorageStats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalImages)
	require.Nil(t, stats.OldestImage)
	require.Equal(t, map[models.CaptureType]int{models.CapturePerson: 0, models.CaptureVehicle: 0}, stats.ByType)

	var ids []string
	for i, tc := range []struct {
		resident string
		typ      models.CaptureType
	}{
		{"res-1", models.CapturePerson},
		{"res-1", models.CaptureVehicle},
		{"res-2", models.CapturePerson},
		{"res-1", models.CapturePerson},
	} {
		res, err := f.svc.StoreImage(ctx, img, storeRequest(tc.resident, tc.typ, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		ids = append(ids, res.ImageID)
	}

	mine, err := f.svc.GetImagesByResident(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, mine, 3)
	require.Equal(t, ids[3], mine[0].ID)
	require.Equal(t, ids[1], mine[1].ID)
	require.Equal(t, ids[0], mine[2].ID)

	none, err := f.svc.GetImagesByResident(ctx, "res-404")
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)

	_, err = f.svc.GetImagesByResident(ctx, " ")
	require.True(t, apperror.Is(err, apperror.KindValidation))

	stats, err = f.svc.GetStorageStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalImages)
	require.Equal(t, 3, stats.ByType[models.CapturePerson])
	require.Equal(t, 1, stats.ByType[models.CaptureVehicle])
	require.Equal(t, "local", stats.Backend)
	require.True(t, base.Equal(*stats.OldestImage))
	require.True(t, base.Add(3*time.Hour).Equal(*stats.NewestImage))
	require.Positive(t, stats.TotalSize)
}

func TestImageStorageService_delete(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	res, err := f.svc.StoreImage(ctx, pngBytes(t, 8, 8), storeRequest("res-1", models.CaptureVehicle, time.Now()))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteImage(ctx, res.ImageID))

	ok, err := f.backend.Exists(ctx, res.Metadata.StoragePath)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.svc.RetrieveImage(ctx, res.ImageID)
	require.True(t, apperror.Is(err, apperror.KindNotFound))

	err = f.svc.DeleteImage(ctx, res.ImageID)
	require.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestImageStorageService_collectOrphans(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	kept, err := f.svc.StoreImage(ctx, pngBytes(t, 8, 8), storeRequest("res-1", models.CapturePerson, time.Now()))
	require.NoError(t, err)
	orphanKey := "vehicle/" + uuid.NewString() + "_2025-01-01T00-00-00Z.enc"
	require.NoError(t, f.backend.Put(ctx, orphanKey, []byte("sealed bytes without metadata")))

	// Fresh objects are inside the grace period.
	orphans, err := f.svc.CollectOrphans(ctx, time.Hour, false)
	require.NoError(t, err)
	require.Empty(t, orphans)

	orphans, err = f.svc.CollectOrphans(ctx, 0, true)
	require.NoError(t, err)
	require.Equal(t, []string{orphanKey}, orphans)
	ok, _ := f.backend.Exists(ctx, orphanKey)
	require.True(t, ok, "dry run must not delete")

	orphans, err = f.svc.CollectOrphans(ctx, 0, false)
	require.NoError(t, err)
	require.Equal(t, []string{orphanKey}, orphans)
	ok, _ = f.backend.Exists(ctx, orphanKey)
	require.False(t, ok)

	ok, _ = f.backend.Exists(ctx, kept.Metadata.StoragePath)
	require.True(t, ok)
}

func TestCompressionRatio(t *testing.T) {
	require.Equal(t, 75.0, compressionRatio(250, 1000))
	require.Equal(t, 33.33, compressionRatio(2, 3))
	require.Equal(t, -50.0, compressionRatio(1500, 1000))
	require.Zero(t, compressionRatio(10, 0))
	require.True(t, strings.HasSuffix(sealedExtension, "enc"))
}
