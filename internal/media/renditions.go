// Package media derives renditions and EXIF metadata from photo files.
package media

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// Thumbnail prioritizes small file size.
	ThumbnailMaxSize = 100
	ThumbnailQuality = 60

	// Default view prioritizes quality.
	DefaultViewMaxSize = 2048
	DefaultViewQuality = 92
)

// Open decodes an image file with its EXIF orientation applied.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// Thumbnail renders the 100px JPEG rendition.
func Thumbnail(img image.Image) ([]byte, error) {
	return encodeResized(img, ThumbnailMaxSize, ThumbnailQuality)
}

// DefaultView renders the 2048px JPEG rendition.
func DefaultView(img image.Image) ([]byte, error) {
	return encodeResized(img, DefaultViewMaxSize, DefaultViewQuality)
}

// encodeResized scales the image to fit maxSize on its longer edge, never
// upscaling, and encodes it as JPEG.
func encodeResized(img image.Image, maxSize, quality int) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() > maxSize || b.Dy() > maxSize {
		img = imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
