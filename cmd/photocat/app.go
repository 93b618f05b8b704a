package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/photocat/internal/config"
	"github.com/your-org/photocat/internal/geocode"
	"github.com/your-org/photocat/internal/ingest"
	"github.com/your-org/photocat/internal/storage"
	"github.com/your-org/photocat/internal/vision"
)

// app bundles the ingestion collaborators for one invocation. Close tears
// everything down in reverse construction order.
type app struct {
	cfg      *config.Config
	db       *storage.PostgresStore
	blobs    *storage.BlobStore
	embedder *vision.PhotoEmbedder
	faces    *vision.FaceEngine
	ortReady bool
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blobs, err := storage.NewBlobStore(cfg.MinIO)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to minio: %w", err)
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure buckets: %w", err)
	}

	a := &app{cfg: cfg, db: db, blobs: blobs}

	if cfg.Vision.EmbeddingEnabled || cfg.Vision.FacesEnabled {
		if cfg.Vision.ONNXLibrary != "" {
			ort.SetSharedLibraryPath(cfg.Vision.ONNXLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			a.Close()
			return nil, fmt.Errorf("init onnx runtime: %w", err)
		}
		a.ortReady = true

		if cfg.Vision.EmbeddingEnabled {
			a.embedder, err = vision.NewPhotoEmbedder(filepath.Join(cfg.Vision.ModelsDir, "dinov2.onnx"))
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("load photo embedder: %w", err)
			}
		}
		if cfg.Vision.FacesEnabled {
			a.faces, err = vision.NewFaceEngine(cfg.Vision.ModelsDir, float32(cfg.Vision.DetectionThreshold))
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("load face engine: %w", err)
			}
		}
	}

	return a, nil
}

// pipeline builds the ingestion pipeline over the app's collaborators.
// Optional stages stay nil in the options when disabled, so the pipeline
// skips them entirely.
func (a *app) pipeline() (*ingest.Pipeline, error) {
	loc, err := time.LoadLocation(a.cfg.Vision.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.cfg.Vision.DefaultTimezone, err)
	}

	opts := ingest.Options{
		Catalog:     a.db,
		Blobs:       a.blobs,
		Timezone:    loc,
		SidecarRoot: a.cfg.Ingest.SidecarRoot,
	}
	if a.embedder != nil {
		opts.Embedder = a.embedder
	}
	if a.faces != nil {
		opts.FaceDetector = a.faces
	}
	if a.cfg.Geocoding.Enabled {
		opts.Geocoder = geocode.NewClient(a.cfg.Geocoding)
	}
	return ingest.New(opts), nil
}

func (a *app) Close() {
	if a.faces != nil {
		a.faces.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
	if a.ortReady {
		ort.DestroyEnvironment()
	}
	a.db.Close()
}
