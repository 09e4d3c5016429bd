package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/config"
)

const outputContentType = "image/jpeg"

// DefaultMaxPixels applies when the config leaves the pixel cap unset.
const DefaultMaxPixels = 40_000_000

// ProcessedImage is the re-encoded JPEG and its final dimensions.
type ProcessedImage struct {
	Data         []byte
	Width        int
	Height       int
	ContentType  string
	SourceFormat string
}

// ImageProcessor decodes uploads, fits them inside the configured
// bounds and re-encodes them as JPEG.
type ImageProcessor struct {
	maxWidth  int
	maxHeight int
	maxPixels int64
	quality   int
}

func NewImageProcessor(cfg config.ImageConfig) *ImageProcessor {
	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &ImageProcessor{
		maxWidth:  cfg.MaxWidth,
		maxHeight: cfg.MaxHeight,
		maxPixels: int64(maxPixels),
		quality:   cfg.Quality,
	}
}

func (p *ImageProcessor) Process(data []byte) (*ProcessedImage, error) {
	// Decoders allocate the full bitmap from the header, so the declared
	// size is checked before any pixel data is read.
	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, corruptImage(err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, apperror.Validation("image has no pixels")
	}
	if int64(hdr.Width)*int64(hdr.Height) > p.maxPixels {
		return nil, apperror.Validation("image dimensions exceed %d pixels (%dx%d)",
			p.maxPixels, hdr.Width, hdr.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, corruptImage(err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), p.maxWidth, p.maxHeight)

	// JPEG has no alpha; flatten onto white so transparent regions do not
	// turn black.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, apperror.Storage("encode image", fmt.Errorf("jpeg: %w", err))
	}

	return &ProcessedImage{
		Data:         buf.Bytes(),
		Width:        w,
		Height:       h,
		ContentType:  outputContentType,
		SourceFormat: format,
	}, nil
}

func corruptImage(err error) error {
	return &apperror.Error{
		Kind:    apperror.KindValidation,
		Message: "unsupported or corrupt image",
		Err:     err,
	}
}

// fitWithin scales (w, h) down to fit inside (maxW, maxH) keeping the
// aspect ratio. It never scales up and never returns a zero dimension.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(int(float64(w)*scale+0.5), 1)
	nh := max(int(float64(h)*scale+0.5), 1)
	return min(nw, maxW), min(nh, maxH)
}
