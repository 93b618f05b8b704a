package ingest

import (
	"context"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/photocat/internal/models"
	"github.com/your-org/photocat/internal/storage"
)

// Catalog is the relational store the pipeline writes to. Every operation
// is an idempotent upsert or a set-returning snapshot query.
type Catalog interface {
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	UpsertPhoto(ctx context.Context, p storage.UpsertPhotoParams) error
	GetEditLocks(ctx context.Context, photoID string) (map[models.FieldType]bool, error)
	GetOrCreatePlace(ctx context.Context, nameEn, nameSv string, placeType models.PlaceType, parentID *uuid.UUID) (uuid.UUID, error)
	UpsertExif(ctx context.Context, photoID string, e *models.ExifData) error
	UpsertEmbedding(ctx context.Context, photoID string, embedding []float32) error
	HasEmbedding(ctx context.Context, photoID string) (bool, error)
	ReplaceFaces(ctx context.Context, photoID string, faces []models.Face) error
	SetFacesChecked(ctx context.Context, photoID string, at time.Time) error

	AllPhotoIDs(ctx context.Context) (map[string]struct{}, error)
	PhotoIDsWithEmbedding(ctx context.Context) (map[string]struct{}, error)
	PhotoIDsWithFacesChecked(ctx context.Context) (map[string]struct{}, error)
	PhotoPlaceIDs(ctx context.Context) (map[string]uuid.UUID, error)
}

// Blobs is the object store holding the three rendition buckets.
type Blobs interface {
	UploadOriginal(ctx context.Context, key, path string) error
	UploadThumbnail(ctx context.Context, key string, data []byte) error
	UploadDefaultView(ctx context.Context, key string, data []byte) error

	ExistsOriginal(ctx context.Context, key string) (bool, error)
	ExistsThumbnail(ctx context.Context, key string) (bool, error)
	ExistsDefaultView(ctx context.Context, key string) (bool, error)

	ListOriginals(ctx context.Context) (map[string]struct{}, error)
	ListThumbnails(ctx context.Context) (map[string]struct{}, error)
	ListDefaultViews(ctx context.Context) (map[string]struct{}, error)
}

// Embedder produces the photo similarity vector.
type Embedder interface {
	Embed(img image.Image) ([]float32, error)
}

// FaceDetector finds faces and embeds each crop. Identity fields of the
// returned faces are left for the caller to fill.
type FaceDetector interface {
	Detect(img image.Image) ([]models.Face, error)
}
