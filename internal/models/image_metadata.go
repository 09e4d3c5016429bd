package models

import "time"

// ImageMetadata is persisted once per stored image, separately from the
// encrypted bytes, and never modified afterwards.
type ImageMetadata struct {
	ID               string           `json:"id" db:"id"`
	Filename         string           `json:"filename" db:"filename"`
	OriginalFilename string           `json:"original_filename,omitempty" db:"original_filename"`
	StoragePath      string           `json:"storage_path" db:"storage_path"`
	CaptureType      CaptureType      `json:"capture_type" db:"capture_type"`
	Timestamp        time.Time        `json:"timestamp" db:"captured_at"`
	Resident         ResidentSnapshot `json:"resident_info"`
	SessionID        string           `json:"session_id,omitempty" db:"session_id"`
	OTP              string           `json:"otp,omitempty" db:"otp"`
	ContentType      string           `json:"content_type" db:"content_type"`
	FileSize         int64            `json:"file_size" db:"file_size"`         // encrypted bytes on disk
	OriginalSize     int64            `json:"original_size" db:"original_size"` // upload before processing
	Width            int              `json:"width" db:"width"`
	Height           int              `json:"height" db:"height"`
	CompressionRatio float64          `json:"compression_ratio" db:"compression_ratio"` // percent saved
	Checksum         string           `json:"checksum" db:"checksum"`                   // BLAKE3 hex of FileSize bytes
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// ImageSummary is the listing view of ImageMetadata; it omits storage
// internals.
type ImageSummary struct {
	ID               string      `json:"id"`
	Filename         string      `json:"filename"`
	CaptureType      CaptureType `json:"capture_type"`
	Timestamp        time.Time   `json:"timestamp"`
	SessionID        string      `json:"session_id,omitempty"`
	FileSize         int64       `json:"file_size"`
	CompressionRatio float64     `json:"compression_ratio"`
	DownloadURL      string      `json:"download_url"`
}

// Summary returns the listing view of m.
func (m *ImageMetadata) Summary() ImageSummary {
	return ImageSummary{
		ID:               m.ID,
		Filename:         m.Filename,
		CaptureType:      m.CaptureType,
		Timestamp:        m.Timestamp,
		SessionID:        m.SessionID,
		FileSize:         m.FileSize,
		CompressionRatio: m.CompressionRatio,
		DownloadURL:      "/api/image/" + m.ID,
	}
}

// StoreImageRequest carries the context recorded with a stored image.
type StoreImageRequest struct {
	ResidentInfo     ResidentInfo
	CaptureType      CaptureType
	Timestamp        time.Time
	SessionID        string
	OTP              string
	OriginalFilename string
}

type StoreImageResult struct {
	Success  bool           `json:"success"`
	ImageID  string         `json:"image_id"`
	Filename string         `json:"filename"`
	Metadata *ImageMetadata `json:"metadata"`
}

// StorageStats aggregates every metadata record. Recomputed per call.
type StorageStats struct {
	TotalImages int                 `json:"total_images"`
	TotalSize   int64               `json:"total_size"`
	ByType      map[CaptureType]int `json:"by_type"`
	OldestImage *time.Time          `json:"oldest_image,omitempty"`
	NewestImage *time.Time          `json:"newest_image,omitempty"`
	Backend     string              `json:"backend"`
}
