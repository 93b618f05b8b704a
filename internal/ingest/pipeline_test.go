package ingest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/photocat/internal/geocode"
	"github.com/your-org/photocat/internal/hash"
	"github.com/your-org/photocat/internal/models"
	"github.com/your-org/photocat/internal/storage"
)

// fakeCatalog mirrors the store's coalescing upsert: absent params leave
// stored values untouched.
type fakeCatalog struct {
	photos     map[string]*models.Photo
	locks      map[string]map[models.FieldType]bool
	exif       map[string]*models.ExifData
	embeddings map[string][]float32
	faces      map[string][]models.Face
	placeIDs   map[string]uuid.UUID

	upserts       int
	getPhotoCalls int

	// Returned once by SetFacesChecked, then cleared.
	facesCheckedErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		photos:     map[string]*models.Photo{},
		locks:      map[string]map[models.FieldType]bool{},
		exif:       map[string]*models.ExifData{},
		embeddings: map[string][]float32{},
		faces:      map[string][]models.Face{},
		placeIDs:   map[string]uuid.UUID{},
	}
}

func (c *fakeCatalog) GetPhoto(_ context.Context, id string) (*models.Photo, error) {
	c.getPhotoCalls++
	p, ok := c.photos[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (c *fakeCatalog) UpsertPhoto(_ context.Context, p storage.UpsertPhotoParams) error {
	c.upserts++
	row, ok := c.photos[p.ID]
	if !ok {
		row = &models.Photo{ID: p.ID}
		c.photos[p.ID] = row
	}
	row.OriginalFilename = p.OriginalFilename
	if p.NotEarlierThan != nil {
		row.DateNotEarlierThan = p.NotEarlierThan
	}
	if p.NotLaterThan != nil {
		row.DateNotLaterThan = p.NotLaterThan
	}
	if p.DateSource != nil {
		row.DateSource = p.DateSource
	}
	if p.PlaceID != nil {
		row.PlaceID = p.PlaceID
	}
	if p.Width != nil {
		row.Width = p.Width
	}
	if p.Height != nil {
		row.Height = p.Height
	}
	return nil
}

func (c *fakeCatalog) GetEditLocks(_ context.Context, photoID string) (map[models.FieldType]bool, error) {
	return c.locks[photoID], nil
}

func (c *fakeCatalog) GetOrCreatePlace(_ context.Context, nameEn, _ string, _ models.PlaceType, parentID *uuid.UUID) (uuid.UUID, error) {
	key := nameEn
	if parentID != nil {
		key += "/" + parentID.String()
	}
	if id, ok := c.placeIDs[key]; ok {
		return id, nil
	}
	id := uuid.New()
	c.placeIDs[key] = id
	return id, nil
}

func (c *fakeCatalog) UpsertExif(_ context.Context, photoID string, e *models.ExifData) error {
	c.exif[photoID] = e
	return nil
}

func (c *fakeCatalog) UpsertEmbedding(_ context.Context, photoID string, embedding []float32) error {
	c.embeddings[photoID] = embedding
	return nil
}

func (c *fakeCatalog) HasEmbedding(_ context.Context, photoID string) (bool, error) {
	_, ok := c.embeddings[photoID]
	return ok, nil
}

func (c *fakeCatalog) ReplaceFaces(_ context.Context, photoID string, faces []models.Face) error {
	c.faces[photoID] = faces
	return nil
}

func (c *fakeCatalog) SetFacesChecked(_ context.Context, photoID string, at time.Time) error {
	if err := c.facesCheckedErr; err != nil {
		c.facesCheckedErr = nil
		return err
	}
	if row, ok := c.photos[photoID]; ok {
		row.FacesCheckedAt = &at
	}
	return nil
}

func (c *fakeCatalog) AllPhotoIDs(context.Context) (map[string]struct{}, error) {
	ids := map[string]struct{}{}
	for id := range c.photos {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (c *fakeCatalog) PhotoIDsWithEmbedding(context.Context) (map[string]struct{}, error) {
	ids := map[string]struct{}{}
	for id := range c.embeddings {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (c *fakeCatalog) PhotoIDsWithFacesChecked(context.Context) (map[string]struct{}, error) {
	ids := map[string]struct{}{}
	for id, p := range c.photos {
		if p.FacesCheckedAt != nil {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

func (c *fakeCatalog) PhotoPlaceIDs(context.Context) (map[string]uuid.UUID, error) {
	ids := map[string]uuid.UUID{}
	for id, p := range c.photos {
		if p.PlaceID != nil {
			ids[id] = *p.PlaceID
		}
	}
	return ids, nil
}

type fakeBlobs struct {
	originals    map[string][]byte
	thumbnails   map[string][]byte
	defaultViews map[string][]byte
	uploads      int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		originals:    map[string][]byte{},
		thumbnails:   map[string][]byte{},
		defaultViews: map[string][]byte{},
	}
}

func (b *fakeBlobs) UploadOriginal(_ context.Context, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	b.originals[key] = data
	b.uploads++
	return nil
}

func (b *fakeBlobs) UploadThumbnail(_ context.Context, key string, data []byte) error {
	b.thumbnails[key] = data
	b.uploads++
	return nil
}

func (b *fakeBlobs) UploadDefaultView(_ context.Context, key string, data []byte) error {
	b.defaultViews[key] = data
	b.uploads++
	return nil
}

func (b *fakeBlobs) ExistsOriginal(_ context.Context, key string) (bool, error) {
	_, ok := b.originals[key]
	return ok, nil
}

func (b *fakeBlobs) ExistsThumbnail(_ context.Context, key string) (bool, error) {
	_, ok := b.thumbnails[key]
	return ok, nil
}

func (b *fakeBlobs) ExistsDefaultView(_ context.Context, key string) (bool, error) {
	_, ok := b.defaultViews[key]
	return ok, nil
}

func (b *fakeBlobs) ListOriginals(context.Context) (map[string]struct{}, error) {
	return keys(b.originals), nil
}

func (b *fakeBlobs) ListThumbnails(context.Context) (map[string]struct{}, error) {
	return keys(b.thumbnails), nil
}

func (b *fakeBlobs) ListDefaultViews(context.Context) (map[string]struct{}, error) {
	return keys(b.defaultViews), nil
}

func keys(m map[string][]byte) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

type fakeEmbedder struct {
	calls int
}

func (e *fakeEmbedder) Embed(image.Image) ([]float32, error) {
	e.calls++
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

type fakeDetector struct {
	faces []models.Face
	calls int
}

func (d *fakeDetector) Detect(image.Image) ([]models.Face, error) {
	d.calls++
	out := make([]models.Face, len(d.faces))
	copy(out, d.faces)
	return out, nil
}

type stubGeocoder struct {
	place   *geocode.Place
	lookups int
}

func (g *stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (*geocode.Place, error) {
	g.lookups++
	return g.place, nil
}

func writeJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(imaging.New(w, h, color.NRGBA{R: 180, G: 90, B: 30, A: 255}), path))
	return path
}

func mustHash(t *testing.T, path string) string {
	t.Helper()
	id, err := hash.SumFile(path)
	require.NoError(t, err)
	return id
}

func TestProcessFileCreatesAllArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJPEG(t, dir, "photo.jpg", 320, 240)
	id := mustHash(t, path)

	cat := newFakeCatalog()
	blobs := newFakeBlobs()
	emb := &fakeEmbedder{}
	det := &fakeDetector{faces: []models.Face{
		{X: 10, Y: 20, Width: 40, Height: 50, Embedding: []float32{1, 0}},
	}}

	p := New(Options{Catalog: cat, Blobs: blobs, Embedder: emb, FaceDetector: det, SidecarRoot: dir})

	outcome, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	row := cat.photos[id]
	require.NotNil(t, row)
	assert.Equal(t, "photo.jpg", row.OriginalFilename)
	assert.Equal(t, 320, *row.Width)
	assert.Equal(t, 240, *row.Height)
	assert.Equal(t, "file_mtime", *row.DateSource)
	assert.Equal(t, *row.DateNotEarlierThan, *row.DateNotLaterThan)
	assert.Nil(t, row.PlaceID)
	require.NotNil(t, row.FacesCheckedAt)

	assert.Contains(t, blobs.originals, id)
	assert.Contains(t, blobs.thumbnails, id)
	assert.Contains(t, blobs.defaultViews, id)

	assert.Contains(t, cat.embeddings, id)
	require.Len(t, cat.faces[id], 1)
	face := cat.faces[id][0]
	assert.Equal(t, id, face.PhotoID)
	assert.NotEqual(t, uuid.Nil, face.ID)

	// A camera-less file stores no EXIF row.
	assert.Empty(t, cat.exif)
}

func TestProcessFileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJPEG(t, dir, "photo.jpg", 160, 120)

	cat := newFakeCatalog()
	blobs := newFakeBlobs()
	emb := &fakeEmbedder{}
	det := &fakeDetector{}

	p := New(Options{Catalog: cat, Blobs: blobs, Embedder: emb, FaceDetector: det, SidecarRoot: dir})

	first, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, first)

	uploadsAfterFirst := blobs.uploads

	second, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second)

	assert.Equal(t, uploadsAfterFirst, blobs.uploads)
	assert.Equal(t, 1, cat.upserts)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, 1, det.calls)
}

func TestZeroFacesIsTerminal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJPEG(t, dir, "landscape.jpg", 200, 100)
	id := mustHash(t, path)

	cat := newFakeCatalog()
	det := &fakeDetector{} // finds nothing

	p := New(Options{Catalog: cat, Blobs: newFakeBlobs(), FaceDetector: det, SidecarRoot: dir})

	_, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, cat.faces[id])
	require.NotNil(t, cat.photos[id].FacesCheckedAt)

	outcome, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 1, det.calls)
}

func TestFaceRedetectionDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJPEG(t, dir, "group.jpg", 150, 100)
	id := mustHash(t, path)

	cat := newFakeCatalog()
	cat.facesCheckedErr = errors.New("connection reset")
	det := &fakeDetector{faces: []models.Face{
		{X: 5, Y: 5, Width: 30, Height: 30, Embedding: []float32{1, 0}},
	}}

	p := New(Options{Catalog: cat, Blobs: newFakeBlobs(), FaceDetector: det, SidecarRoot: dir})

	// Faces are written but the checked marker fails to stick.
	_, err := p.ProcessFile(ctx, path)
	require.Error(t, err)
	require.Len(t, cat.faces[id], 1)
	require.Nil(t, cat.photos[id].FacesCheckedAt)

	// The retry re-detects and must replace the rows, not append to them.
	outcome, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, 2, det.calls)
	assert.Len(t, cat.faces[id], 1)
	require.NotNil(t, cat.photos[id].FacesCheckedAt)
}

func TestPhotoDimensionsPreferOrientedBounds(t *testing.T) {
	// Dimension tags predate the orientation transform, so a rotated photo
	// reports them swapped relative to the decoded pixels.
	tagged := &models.ExifData{Width: 240, Height: 320}
	oriented := imaging.New(320, 240, color.NRGBA{A: 255})

	w, h := photoDimensions(tagged, oriented)
	assert.Equal(t, 320, *w)
	assert.Equal(t, 240, *h)

	w, h = photoDimensions(tagged, nil)
	assert.Equal(t, 240, *w)
	assert.Equal(t, 320, *h)

	w, h = photoDimensions(&models.ExifData{}, nil)
	assert.Nil(t, w)
	assert.Nil(t, h)
}

func TestOnlyMissingRenditionsAreUploaded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJPEG(t, dir, "partial.jpg", 130, 70)
	id := mustHash(t, path)

	// A run that died between uploads left the original and thumbnail
	// behind but no catalog row.
	cat := newFakeCatalog()
	blobs := newFakeBlobs()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	blobs.originals[id] = data
	sentinel := []byte("existing thumbnail")
	blobs.thumbnails[id] = sentinel

	p := New(Options{Catalog: cat, Blobs: blobs, SidecarRoot: dir})

	outcome, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	assert.Equal(t, sentinel, blobs.thumbnails[id])
	assert.Contains(t, blobs.defaultViews, id)
	assert.Equal(t, 1, blobs.uploads)
	require.NotNil(t, cat.photos[id])
}

func TestSidecarDateAndPlace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "folder.yaml"), []byte(
		"date:\n  not_earlier_than: 2019-06-01\n  not_later_than: 2019-06-30\nplace:\n  country: Sweden\n  city: Stockholm\n"), 0o644))
	path := writeJPEG(t, dir, "midsummer.jpg", 120, 80)
	id := mustHash(t, path)

	cat := newFakeCatalog()
	p := New(Options{Catalog: cat, Blobs: newFakeBlobs(), SidecarRoot: dir})

	_, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)

	row := cat.photos[id]
	require.NotNil(t, row)
	assert.Equal(t, "config", *row.DateSource)
	assert.Equal(t, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), *row.DateNotEarlierThan)
	assert.Equal(t, time.Date(2019, 6, 30, 0, 0, 0, 0, time.UTC), *row.DateNotLaterThan)
	require.NotNil(t, row.PlaceID)
	assert.Len(t, cat.placeIDs, 2)
}

func TestManualEditLockSuppressesResolution(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "folder.yaml"), []byte(
		"date:\n  not_earlier_than: 2019-06-01\nplace:\n  lat: 59.3165\n  lon: 18.056\n"), 0o644))
	path := writeJPEG(t, dir, "locked.jpg", 100, 100)
	id := mustHash(t, path)

	cat := newFakeCatalog()
	blobs := newFakeBlobs()

	// First run: no geocoder, so the photo stays placeless.
	p := New(Options{Catalog: cat, Blobs: blobs, SidecarRoot: dir})
	_, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	require.Nil(t, cat.photos[id].PlaceID)

	// A user corrects the date by hand, locking the date field group.
	manual := time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)
	manualSource := "manual"
	cat.photos[id].DateNotEarlierThan = &manual
	cat.photos[id].DateNotLaterThan = &manual
	cat.photos[id].DateSource = &manualSource
	cat.locks[id] = map[models.FieldType]bool{models.FieldDate: true}

	// Second run with geocoding enabled: the missing place is resolved from
	// the sidecar coordinates while the locked date survives untouched.
	geo := &stubGeocoder{place: &geocode.Place{Country: &geocode.LocalizedName{En: "Sweden"}}}
	p = New(Options{Catalog: cat, Blobs: blobs, Geocoder: geo, SidecarRoot: dir})

	outcome, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, 1, geo.lookups)

	row := cat.photos[id]
	require.NotNil(t, row.PlaceID)
	assert.Equal(t, manual, *row.DateNotEarlierThan)
	assert.Equal(t, manual, *row.DateNotLaterThan)
	assert.Equal(t, "manual", *row.DateSource)
}

func TestRunBatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	good := writeJPEG(t, dir, "good.jpg", 90, 60)
	data, err := os.ReadFile(good)
	require.NoError(t, err)
	// Identical bytes under a different name share the content identity.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "duplicate.jpg"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.jpg"), []byte("not an image"), 0o644))

	cat := newFakeCatalog()
	blobs := newFakeBlobs()
	p := New(Options{Catalog: cat, Blobs: blobs, SidecarRoot: dir})

	tally, err := p.RunBatch(ctx, dir, []string{".jpg"})
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Processed)
	assert.Equal(t, 1, tally.Skipped)
	assert.Equal(t, 1, tally.Errors)
	assert.Len(t, cat.photos, 1)
	assert.Len(t, blobs.originals, 1)

	// Batch mode runs entirely on the pre-fetched snapshot.
	assert.Equal(t, 0, cat.getPhotoCalls)

	// A rerun converges: everything ingested is skipped, the broken file
	// keeps failing without stopping the run.
	p = New(Options{Catalog: cat, Blobs: blobs, SidecarRoot: dir})
	tally, err = p.RunBatch(ctx, dir, []string{".jpg"})
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Processed)
	assert.Equal(t, 2, tally.Skipped)
	assert.Equal(t, 1, tally.Errors)
	assert.Equal(t, 1, cat.upserts)
}

func TestRunBatchHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "one.jpg", 50, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Options{Catalog: newFakeCatalog(), Blobs: newFakeBlobs(), SidecarRoot: dir})
	_, err := p.RunBatch(ctx, dir, []string{".jpg"})
	assert.ErrorIs(t, err, context.Canceled)
}
