package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Photo is a catalog row. The ID is the SHA-256 of the file contents and
// never changes; re-ingesting identical bytes updates the same row.
type Photo struct {
	ID               string     `json:"id" db:"id"`
	OriginalFilename string     `json:"original_filename" db:"original_filename"`
	// Closed interval bounding the true capture instant. Equal bounds mean
	// the source is considered exact.
	DateNotEarlierThan *time.Time `json:"date_not_earlier_than" db:"date_not_earlier_than"`
	DateNotLaterThan   *time.Time `json:"date_not_later_than" db:"date_not_later_than"`
	DateSource         *string    `json:"date_source,omitempty" db:"date_source"`
	PlaceID            *uuid.UUID `json:"place_id,omitempty" db:"place_id"`
	Width              *int       `json:"width,omitempty" db:"width"`
	Height             *int       `json:"height,omitempty" db:"height"`
	IsLowQuality       bool       `json:"is_low_quality" db:"is_low_quality"`
	// When face detection was last attempted, including zero-face outcomes.
	// Nil means detection has never run for this photo.
	FacesCheckedAt *time.Time `json:"faces_checked_at,omitempty" db:"faces_checked_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// FieldType identifies a manually editable metadata field group.
type FieldType string

const (
	FieldDate  FieldType = "date"
	FieldPlace FieldType = "place"
)

// ExifData is the metadata extracted from an image file. All fields are
// optional; an image without EXIF yields the zero value.
type ExifData struct {
	CameraMake   *string         `json:"camera_make,omitempty" db:"camera_make"`
	CameraModel  *string         `json:"camera_model,omitempty" db:"camera_model"`
	Lens         *string         `json:"lens,omitempty" db:"lens"`
	FocalLength  *string         `json:"focal_length,omitempty" db:"focal_length"`
	Aperture     *string         `json:"aperture,omitempty" db:"aperture"`
	ShutterSpeed *string         `json:"shutter_speed,omitempty" db:"shutter_speed"`
	ISO          *int            `json:"iso,omitempty" db:"iso"`
	TakenAt      *time.Time      `json:"taken_at,omitempty" db:"taken_at"`
	GPSLat       *float64        `json:"gps_lat,omitempty" db:"-"`
	GPSLon       *float64        `json:"gps_lon,omitempty" db:"-"`
	Width        int             `json:"width,omitempty" db:"-"`
	Height       int             `json:"height,omitempty" db:"-"`
	RawTags      json.RawMessage `json:"raw_tags,omitempty" db:"raw_tags"`
}

// HasCameraInfo reports whether the data is worth persisting: a camera tag
// or a capture timestamp was actually present.
func (e *ExifData) HasCameraInfo() bool {
	return e.CameraMake != nil || e.CameraModel != nil || e.TakenAt != nil
}

// HasGPS reports whether both coordinates were extracted.
func (e *ExifData) HasGPS() bool {
	return e.GPSLat != nil && e.GPSLon != nil
}
