package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceEmbeddingDim is the length of every face embedding vector.
const FaceEmbeddingDim = 512

// PhotoEmbeddingDim is the length of every photo similarity embedding.
const PhotoEmbeddingDim = 768

// Face is a detected face in a photo. Rows are immutable after insertion
// except for ClusterID, which the clustering pass rewrites wholesale.
type Face struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PhotoID   string    `json:"photo_id" db:"photo_id"`
	X         int       `json:"x" db:"bbox_x"`
	Y         int       `json:"y" db:"bbox_y"`
	Width     int       `json:"width" db:"bbox_width"`
	Height    int       `json:"height" db:"bbox_height"`
	Embedding []float32 `json:"-" db:"embedding"`
	ClusterID *string   `json:"cluster_id,omitempty" db:"cluster_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
