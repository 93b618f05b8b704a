// Package ingest drives the idempotent photo ingestion pipeline: for each
// file it determines exactly which artifacts are missing and produces only
// those, converging to a fully processed catalog no matter how often or
// where a run is interrupted.
package ingest

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/photocat/internal/hash"
	"github.com/your-org/photocat/internal/media"
	"github.com/your-org/photocat/internal/models"
	"github.com/your-org/photocat/internal/observability"
	"github.com/your-org/photocat/internal/resolve"
	"github.com/your-org/photocat/internal/sidecar"
	"github.com/your-org/photocat/internal/storage"
)

// Options wires the pipeline's collaborators. Embedder, FaceDetector and
// Geocoder are optional; nil disables the corresponding stage. The caller
// owns collaborator lifecycle: construct once per run, release at the end.
type Options struct {
	Catalog      Catalog
	Blobs        Blobs
	Embedder     Embedder
	FaceDetector FaceDetector
	Geocoder     resolve.Geocoder

	// Timezone for naive EXIF capture timestamps; nil means UTC.
	Timezone *time.Location
	// SidecarRoot bounds the folder.yaml walk (inclusive); empty walks to
	// the filesystem root.
	SidecarRoot string
}

type Pipeline struct {
	catalog     Catalog
	blobs       Blobs
	embedder    Embedder
	detector    FaceDetector
	geocoder    resolve.Geocoder
	loc         *time.Location
	sidecarRoot string

	snap  *snapshot
	hints map[string]*sidecar.Hint // merged sidecar hint per directory
}

func New(opts Options) *Pipeline {
	loc := opts.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		catalog:     opts.Catalog,
		blobs:       opts.Blobs,
		embedder:    opts.Embedder,
		detector:    opts.FaceDetector,
		geocoder:    opts.Geocoder,
		loc:         loc,
		sidecarRoot: opts.SidecarRoot,
		hints:       make(map[string]*sidecar.Hint),
	}
}

// Outcome of one file.
type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeSkipped
)

// Tally is the final report of a batch run.
type Tally struct {
	Processed int
	Skipped   int
	Errors    int
}

// ProcessFile ingests a single file. Every step is independently
// idempotent and re-checked, so a half-completed file from an interrupted
// run self-heals here.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (Outcome, error) {
	id, err := hash.SumFile(path)
	if err != nil {
		return 0, err
	}

	st, err := p.fileState(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("existence checks for %s: %w", id, err)
	}

	embedSatisfied := p.embedder == nil || st.hasEmbedding
	facesSatisfied := p.detector == nil || st.facesChecked
	placeSatisfied := p.geocoder == nil || st.hasPlace
	if st.hasPhoto && embedSatisfied && facesSatisfied && placeSatisfied {
		slog.Debug("photo fully processed, skipping", "id", id, "file", filepath.Base(path))
		return OutcomeSkipped, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	// Derive only as much as the missing artifacts require: EXIF when any
	// blob or the place is missing, decoded pixels only for the renditions
	// that are actually absent.
	var (
		img      image.Image
		exifData *models.ExifData
	)
	loadImage := func() (image.Image, error) {
		if img == nil {
			var err error
			start := time.Now()
			img, err = media.Open(path)
			observability.StageDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
			if err != nil {
				return nil, err
			}
		}
		return img, nil
	}

	if !st.hasOriginal || !st.hasThumbnail || !st.hasDefaultView || !st.hasPlace {
		if exifData, err = media.ExtractExif(path, p.loc); err != nil {
			return 0, err
		}
	} else {
		exifData = &models.ExifData{}
	}

	if !st.hasOriginal {
		if err := p.blobs.UploadOriginal(ctx, id, path); err != nil {
			return 0, err
		}
		p.markOriginal(id)
		observability.BlobsUploaded.WithLabelValues("originals").Inc()
	}
	if !st.hasThumbnail {
		if _, err := loadImage(); err != nil {
			return 0, err
		}
		start := time.Now()
		thumb, err := media.Thumbnail(img)
		observability.StageDuration.WithLabelValues("renditions").Observe(time.Since(start).Seconds())
		if err != nil {
			return 0, err
		}
		if err := p.blobs.UploadThumbnail(ctx, id, thumb); err != nil {
			return 0, err
		}
		p.markThumbnail(id)
		observability.BlobsUploaded.WithLabelValues("thumbnails").Inc()
	}
	if !st.hasDefaultView {
		if _, err := loadImage(); err != nil {
			return 0, err
		}
		start := time.Now()
		view, err := media.DefaultView(img)
		observability.StageDuration.WithLabelValues("renditions").Observe(time.Since(start).Seconds())
		if err != nil {
			return 0, err
		}
		if err := p.blobs.UploadDefaultView(ctx, id, view); err != nil {
			return 0, err
		}
		p.markDefaultView(id)
		observability.BlobsUploaded.WithLabelValues("default_views").Inc()
	}

	hint, err := p.folderHint(path)
	if err != nil {
		return 0, err
	}

	dateRes := resolve.ResolveDate(hint, exifData.TakenAt, info.ModTime())

	var placeID *uuid.UUID
	if !st.hasPlace {
		placeRes, err := resolve.ResolvePlace(ctx, p.catalog, p.geocoder, hint, exifData.GPSLat, exifData.GPSLon)
		if err != nil {
			return 0, fmt.Errorf("resolve place for %s: %w", id, err)
		}
		placeID = placeRes.PlaceID
	}

	params := storage.UpsertPhotoParams{
		ID:               id,
		OriginalFilename: filepath.Base(path),
		NotEarlierThan:   &dateRes.NotEarlierThan,
		NotLaterThan:     &dateRes.NotLaterThan,
		DateSource:       &dateRes.Source,
		PlaceID:          placeID,
	}
	params.Width, params.Height = photoDimensions(exifData, img)

	// Manual edits lock a field type forever; suppressed fields are passed
	// as absent so the upsert leaves the stored values untouched. Locks
	// can only exist once a row does.
	if st.hasPhoto {
		locks, err := p.catalog.GetEditLocks(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("edit locks for %s: %w", id, err)
		}
		if locks[models.FieldDate] {
			params.NotEarlierThan = nil
			params.NotLaterThan = nil
			params.DateSource = nil
		}
		if locks[models.FieldPlace] {
			params.PlaceID = nil
		}
	}

	if err := p.catalog.UpsertPhoto(ctx, params); err != nil {
		return 0, err
	}
	p.markPhoto(id)
	if params.PlaceID != nil {
		p.markPlace(id, *params.PlaceID)
	}

	if exifData.HasCameraInfo() {
		if err := p.catalog.UpsertExif(ctx, id, exifData); err != nil {
			return 0, err
		}
	}

	if p.embedder != nil && !st.hasEmbedding {
		if _, err := loadImage(); err != nil {
			return 0, err
		}
		start := time.Now()
		embedding, err := p.embedder.Embed(img)
		observability.StageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		if err != nil {
			return 0, fmt.Errorf("embed %s: %w", id, err)
		}
		if err := p.catalog.UpsertEmbedding(ctx, id, embedding); err != nil {
			return 0, err
		}
		p.markEmbedding(id)
	}

	// "No faces found" is terminal: the checked marker, not the face
	// count, decides whether detection runs again.
	if p.detector != nil && !st.facesChecked {
		if _, err := loadImage(); err != nil {
			return 0, err
		}
		start := time.Now()
		faces, err := p.detector.Detect(img)
		observability.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
		if err != nil {
			return 0, fmt.Errorf("detect faces in %s: %w", id, err)
		}
		for i := range faces {
			faces[i].ID = uuid.New()
			faces[i].PhotoID = id
		}
		if err := p.catalog.ReplaceFaces(ctx, id, faces); err != nil {
			return 0, err
		}
		if err := p.catalog.SetFacesChecked(ctx, id, time.Now().UTC()); err != nil {
			return 0, err
		}
		p.markFacesChecked(id)
		observability.FacesDetected.Add(float64(len(faces)))
	}

	return OutcomeProcessed, nil
}

// RunBatch pre-fetches existence snapshots, then processes every matching
// file under dir sequentially. A failure in one file is counted and logged
// and the run continues; partial work self-heals on the next run.
func (p *Pipeline) RunBatch(ctx context.Context, dir string, extensions []string) (Tally, error) {
	var tally Tally

	files, err := collectFiles(dir, extensions)
	if err != nil {
		return tally, err
	}
	slog.Info("starting batch run", "dir", dir, "files", len(files))

	if err := p.LoadSnapshot(ctx); err != nil {
		return tally, err
	}

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return tally, err
		}

		slog.Info("processing file", "n", i+1, "total", len(files), "file", filepath.Base(path))
		outcome, err := p.ProcessFile(ctx, path)
		switch {
		case err != nil:
			tally.Errors++
			observability.PhotosProcessed.WithLabelValues("error").Inc()
			slog.Error("file failed", "file", path, "error", err)
		case outcome == OutcomeSkipped:
			tally.Skipped++
			observability.PhotosProcessed.WithLabelValues("skipped").Inc()
		default:
			tally.Processed++
			observability.PhotosProcessed.WithLabelValues("processed").Inc()
		}
	}

	slog.Info("batch run complete",
		"processed", tally.Processed, "skipped", tally.Skipped, "errors", tally.Errors)
	return tally, nil
}

// photoDimensions prefers the decoded image's bounds: EXIF dimension tags
// predate orientation, so rotated photos would otherwise store swapped
// width and height.
func photoDimensions(e *models.ExifData, img image.Image) (*int, *int) {
	if img != nil {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		return &w, &h
	}
	if e.Width > 0 && e.Height > 0 {
		return &e.Width, &e.Height
	}
	return nil, nil
}

// folderHint resolves and caches the merged sidecar hint per directory.
func (p *Pipeline) folderHint(path string) (*sidecar.Hint, error) {
	dir := filepath.Dir(filepath.Clean(path))
	if hint, ok := p.hints[dir]; ok {
		return hint, nil
	}
	hint, err := sidecar.Resolve(path, p.sidecarRoot)
	if err != nil {
		return nil, err
	}
	p.hints[dir] = hint
	return hint, nil
}

func collectFiles(dir string, extensions []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
