package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatehouse-backend/internal/models"
)

// PostgresImageMetadataRepository stores records in capture_images.
type PostgresImageMetadataRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresImageMetadataRepository(pool *pgxpool.Pool) *PostgresImageMetadataRepository {
	return &PostgresImageMetadataRepository{pool: pool}
}

const imageMetadataFields = `filename, original_filename, storage_path, capture_type, captured_at,
	resident_id, resident_name, unit_number, session_id, otp, content_type,
	file_size, original_size, width, height, compression_ratio, checksum, created_at`

const (
	imageMetadataColumns = `id, ` + imageMetadataFields
	// ids come back as text so they compare equal to the file store's.
	imageMetadataSelect = `id::text, ` + imageMetadataFields

	// The parameter is cast, never the key column, so lookups hit the
	// primary key index.
	getImageMetadataQuery    = `SELECT ` + imageMetadataSelect + ` FROM capture_images WHERE id = $1::uuid`
	deleteImageMetadataQuery = `DELETE FROM capture_images WHERE id = $1::uuid`
)

func (r *PostgresImageMetadataRepository) Save(ctx context.Context, meta *models.ImageMetadata) error {
	query := `
		INSERT INTO capture_images (` + imageMetadataColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.pool.Exec(ctx, query,
		meta.ID,
		meta.Filename,
		meta.OriginalFilename,
		meta.StoragePath,
		string(meta.CaptureType),
		meta.Timestamp,
		meta.Resident.ID,
		meta.Resident.Name,
		meta.Resident.UnitNumber,
		meta.SessionID,
		meta.OTP,
		meta.ContentType,
		meta.FileSize,
		meta.OriginalSize,
		meta.Width,
		meta.Height,
		meta.CompressionRatio,
		meta.Checksum,
		meta.CreatedAt,
	)
	return err
}

func (r *PostgresImageMetadataRepository) Get(ctx context.Context, id string) (*models.ImageMetadata, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrImageMetadataNotFound
	}
	meta, err := scanImageMetadata(r.pool.QueryRow(ctx, getImageMetadataQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrImageMetadataNotFound
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *PostgresImageMetadataRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, deleteImageMetadataQuery, id)
	return err
}

func (r *PostgresImageMetadataRepository) List(ctx context.Context) ([]*models.ImageMetadata, error) {
	query := `SELECT ` + imageMetadataSelect + ` FROM capture_images ORDER BY captured_at DESC, id`
	return r.query(ctx, query)
}

func (r *PostgresImageMetadataRepository) ListByResident(ctx context.Context, residentID string) ([]*models.ImageMetadata, error) {
	query := `SELECT ` + imageMetadataSelect + ` FROM capture_images WHERE resident_id = $1 ORDER BY captured_at DESC, id`
	return r.query(ctx, query, residentID)
}

func (r *PostgresImageMetadataRepository) query(ctx context.Context, query string, args ...any) ([]*models.ImageMetadata, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ImageMetadata
	for rows.Next() {
		meta, err := scanImageMetadata(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, meta)
	}
	return records, rows.Err()
}

func scanImageMetadata(row pgx.Row) (*models.ImageMetadata, error) {
	var meta models.ImageMetadata
	var captureType string
	err := row.Scan(
		&meta.ID,
		&meta.Filename,
		&meta.OriginalFilename,
		&meta.StoragePath,
		&captureType,
		&meta.Timestamp,
		&meta.Resident.ID,
		&meta.Resident.Name,
		&meta.Resident.UnitNumber,
		&meta.SessionID,
		&meta.OTP,
		&meta.ContentType,
		&meta.FileSize,
		&meta.OriginalSize,
		&meta.Width,
		&meta.Height,
		&meta.CompressionRatio,
		&meta.Checksum,
		&meta.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	meta.CaptureType = models.CaptureType(captureType)
	return &meta, nil
}
