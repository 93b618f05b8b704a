package media

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/your-org/photocat/internal/models"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// ExtractExif reads EXIF metadata and pixel dimensions from an image file.
// Missing or undecodable EXIF yields empty data, not an error; only failing
// to open the file is an error. Capture timestamps without an offset are
// interpreted in loc.
func ExtractExif(path string, loc *time.Location) (*models.ExifData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	result := &models.ExifData{}

	if cfg, _, err := image.DecodeConfig(f); err == nil {
		result.Width = cfg.Width
		result.Height = cfg.Height
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", path, err)
	}

	x, err := exif.Decode(f)
	if err != nil {
		return result, nil
	}

	result.CameraMake = getString(x, exif.Make)
	result.CameraModel = getString(x, exif.Model)
	result.Lens = getString(x, exif.LensModel)

	if fl := getRational(x, exif.FocalLength); fl != nil {
		s := fmt.Sprintf("%.0fmm", *fl)
		result.FocalLength = &s
	}
	if fn := getRational(x, exif.FNumber); fn != nil {
		s := fmt.Sprintf("f/%.1f", *fn)
		result.Aperture = &s
	}
	result.ShutterSpeed = getShutterSpeed(x)
	result.ISO = getInt(x, exif.ISOSpeedRatings)
	result.TakenAt = getTakenAt(x, loc)

	if lat, lon, err := x.LatLong(); err == nil {
		result.GPSLat = &lat
		result.GPSLon = &lon
	}

	// Archive the decoded tag set alongside the typed fields.
	if raw, err := json.Marshal(x); err == nil {
		result.RawTags = raw
	}

	return result, nil
}

// getTakenAt prefers DateTimeOriginal over DateTime, both naive values.
func getTakenAt(x *exif.Exif, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil || tag == nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(s), loc)
		if err != nil {
			continue
		}
		return &t
	}
	return nil
}

func getString(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	s, err := tag.StringVal()
	if err != nil {
		return nil
	}
	s = strings.TrimRight(strings.TrimSpace(s), "\x00")
	if s == "" {
		return nil
	}
	return &s
}

func getRational(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		if v, err := tag.Int(0); err == nil {
			f := float64(v)
			return &f
		}
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}

func getInt(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &v
}

func getShutterSpeed(x *exif.Exif) *string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 || num == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	var s string
	if v < 1 {
		s = fmt.Sprintf("1/%d", int(float64(den)/float64(num)+0.5))
	} else {
		s = fmt.Sprintf("%.1fs", v)
	}
	return &s
}
