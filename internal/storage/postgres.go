package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/photocat/internal/config"
	"github.com/your-org/photocat/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS places (
		id uuid PRIMARY KEY,
		name_en text NOT NULL,
		name_sv text NOT NULL,
		place_type text NOT NULL,
		parent_id uuid REFERENCES places(id),
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS places_dedup
		ON places (name_en, parent_id) WHERE parent_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS places_dedup_root
		ON places (name_en) WHERE parent_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS photos (
		id text PRIMARY KEY,
		original_filename text NOT NULL,
		date_not_earlier_than timestamptz,
		date_not_later_than timestamptz,
		date_source text,
		place_id uuid REFERENCES places(id),
		width integer,
		height integer,
		is_low_quality boolean NOT NULL DEFAULT false,
		faces_checked_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS edit_history (
		id bigserial PRIMARY KEY,
		photo_id text NOT NULL REFERENCES photos(id),
		field_type text NOT NULL,
		edited_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS edit_history_photo
		ON edit_history (photo_id, field_type)`,
	`CREATE TABLE IF NOT EXISTS photo_exif (
		photo_id text PRIMARY KEY REFERENCES photos(id),
		camera_make text,
		camera_model text,
		lens text,
		focal_length text,
		aperture text,
		shutter_speed text,
		iso integer,
		taken_at timestamptz,
		raw_tags jsonb,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS photo_embeddings (
		photo_id text PRIMARY KEY REFERENCES photos(id),
		embedding vector(768) NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS faces (
		id uuid PRIMARY KEY,
		photo_id text NOT NULL REFERENCES photos(id),
		bbox_x integer NOT NULL,
		bbox_y integer NOT NULL,
		bbox_width integer NOT NULL,
		bbox_height integer NOT NULL,
		embedding vector(512) NOT NULL,
		cluster_id text,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS faces_photo ON faces (photo_id)`,
}

// EnsureSchema creates all tables and indexes. Every statement is
// idempotent, so this is safe to run on every startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Photos ---

// UpsertPhotoParams carries the fields of one catalog upsert. Nil pointer
// fields leave the stored value untouched on conflict, which is how
// manual-edit suppression and partial recomputes are expressed.
type UpsertPhotoParams struct {
	ID               string
	OriginalFilename string
	NotEarlierThan   *time.Time
	NotLaterThan     *time.Time
	DateSource       *string
	PlaceID          *uuid.UUID
	Width            *int
	Height           *int
}

// UpsertPhoto inserts or updates a photo by content hash. Re-ingesting the
// same bytes never duplicates a row; is_low_quality is user-owned and never
// written here.
func (s *PostgresStore) UpsertPhoto(ctx context.Context, p UpsertPhotoParams) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO photos (id, original_filename, date_not_earlier_than, date_not_later_than,
			date_source, place_id, width, height, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			original_filename     = EXCLUDED.original_filename,
			date_not_earlier_than = COALESCE(EXCLUDED.date_not_earlier_than, photos.date_not_earlier_than),
			date_not_later_than   = COALESCE(EXCLUDED.date_not_later_than, photos.date_not_later_than),
			date_source           = COALESCE(EXCLUDED.date_source, photos.date_source),
			place_id              = COALESCE(EXCLUDED.place_id, photos.place_id),
			width                 = COALESCE(EXCLUDED.width, photos.width),
			height                = COALESCE(EXCLUDED.height, photos.height),
			updated_at            = now()`,
		p.ID, p.OriginalFilename, p.NotEarlierThan, p.NotLaterThan,
		p.DateSource, p.PlaceID, p.Width, p.Height)
	if err != nil {
		return fmt.Errorf("upsert photo %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, original_filename, date_not_earlier_than, date_not_later_than,
			date_source, place_id, width, height, is_low_quality, faces_checked_at,
			created_at, updated_at
		FROM photos WHERE id = $1`, id,
	).Scan(&p.ID, &p.OriginalFilename, &p.DateNotEarlierThan, &p.DateNotLaterThan,
		&p.DateSource, &p.PlaceID, &p.Width, &p.Height, &p.IsLowQuality, &p.FacesCheckedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) SetFacesChecked(ctx context.Context, photoID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE photos SET faces_checked_at = $1, updated_at = now() WHERE id = $2`,
		at, photoID)
	if err != nil {
		return fmt.Errorf("set faces checked %s: %w", photoID, err)
	}
	return nil
}

// --- Edit history ---

// RecordEdit appends a manual-edit lock. Locks are monotonic: once any row
// exists for (photo, field type), the pipeline never writes that field
// type again.
func (s *PostgresStore) RecordEdit(ctx context.Context, photoID string, field models.FieldType) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO edit_history (photo_id, field_type) VALUES ($1, $2)`,
		photoID, field)
	if err != nil {
		return fmt.Errorf("record edit %s/%s: %w", photoID, field, err)
	}
	return nil
}

func (s *PostgresStore) GetEditLocks(ctx context.Context, photoID string) (map[models.FieldType]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT field_type FROM edit_history WHERE photo_id = $1`, photoID)
	if err != nil {
		return nil, fmt.Errorf("get edit locks %s: %w", photoID, err)
	}
	defer rows.Close()

	locks := make(map[models.FieldType]bool)
	for rows.Next() {
		var ft models.FieldType
		if err := rows.Scan(&ft); err != nil {
			return nil, fmt.Errorf("scan edit lock: %w", err)
		}
		locks[ft] = true
	}
	return locks, rows.Err()
}

// --- Places ---

// GetOrCreatePlace looks up a place node by (name_en, parent) and creates
// it with a fresh id on miss. The type is not part of the lookup key.
func (s *PostgresStore) GetOrCreatePlace(ctx context.Context, nameEn, nameSv string, placeType models.PlaceType, parentID *uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM places WHERE name_en = $1 AND parent_id IS NOT DISTINCT FROM $2`,
		nameEn, parentID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return uuid.Nil, fmt.Errorf("lookup place %q: %w", nameEn, err)
	}

	id = uuid.New()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO places (id, name_en, name_sv, place_type, parent_id) VALUES ($1, $2, $3, $4, $5)`,
		id, nameEn, nameSv, placeType, parentID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create place %q: %w", nameEn, err)
	}
	return id, nil
}

// --- EXIF ---

// UpsertExif fully overwrites the EXIF record. This artifact is derived,
// not user-owned, so there is no edit lock for it.
func (s *PostgresStore) UpsertExif(ctx context.Context, photoID string, e *models.ExifData) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO photo_exif (photo_id, camera_make, camera_model, lens, focal_length,
			aperture, shutter_speed, iso, taken_at, raw_tags, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (photo_id) DO UPDATE SET
			camera_make   = EXCLUDED.camera_make,
			camera_model  = EXCLUDED.camera_model,
			lens          = EXCLUDED.lens,
			focal_length  = EXCLUDED.focal_length,
			aperture      = EXCLUDED.aperture,
			shutter_speed = EXCLUDED.shutter_speed,
			iso           = EXCLUDED.iso,
			taken_at      = EXCLUDED.taken_at,
			raw_tags      = EXCLUDED.raw_tags,
			updated_at    = now()`,
		photoID, e.CameraMake, e.CameraModel, e.Lens, e.FocalLength,
		e.Aperture, e.ShutterSpeed, e.ISO, e.TakenAt, e.RawTags)
	if err != nil {
		return fmt.Errorf("upsert exif %s: %w", photoID, err)
	}
	return nil
}

// --- Embeddings ---

func (s *PostgresStore) UpsertEmbedding(ctx context.Context, photoID string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO photo_embeddings (photo_id, embedding, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (photo_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`,
		photoID, vec)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", photoID, err)
	}
	return nil
}

func (s *PostgresStore) HasEmbedding(ctx context.Context, photoID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM photo_embeddings WHERE photo_id = $1)`, photoID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embedding %s: %w", photoID, err)
	}
	return exists, nil
}

// --- Faces ---

// ReplaceFaces atomically rewrites the photo's face rows. Replacing instead
// of appending keeps a re-detection after a partial failure from leaving
// duplicate rows behind.
func (s *PostgresStore) ReplaceFaces(ctx context.Context, photoID string, faces []models.Face) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace faces: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM faces WHERE photo_id = $1`, photoID); err != nil {
		return fmt.Errorf("clear faces %s: %w", photoID, err)
	}
	for _, f := range faces {
		_, err := tx.Exec(ctx, `
			INSERT INTO faces (id, photo_id, bbox_x, bbox_y, bbox_width, bbox_height, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, f.PhotoID, f.X, f.Y, f.Width, f.Height, pgvector.NewVector(f.Embedding))
		if err != nil {
			return fmt.Errorf("insert face %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace faces %s: %w", photoID, err)
	}
	return nil
}

// FaceEmbedding is one row of the clustering input.
type FaceEmbedding struct {
	ID        uuid.UUID
	Embedding []float32
}

func (s *PostgresStore) AllFaceEmbeddings(ctx context.Context) ([]FaceEmbedding, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, embedding FROM faces ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load face embeddings: %w", err)
	}
	defer rows.Close()

	var result []FaceEmbedding
	for rows.Next() {
		var fe FaceEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&fe.ID, &vec); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		fe.Embedding = vec.Slice()
		result = append(result, fe)
	}
	return result, rows.Err()
}

// FaceClusterLabel assigns one face its new cluster label; nil clears it.
type FaceClusterLabel struct {
	FaceID    uuid.UUID
	ClusterID *string
}

// UpdateFaceClusters rewrites cluster labels in one batch. The caller
// passes a label for every face, so stale labels cannot survive a run.
func (s *PostgresStore) UpdateFaceClusters(ctx context.Context, labels []FaceClusterLabel) error {
	if len(labels) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range labels {
		batch.Queue(`UPDATE faces SET cluster_id = $1 WHERE id = $2`, l.ClusterID, l.FaceID)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range labels {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("update face clusters: %w", err)
		}
	}
	return nil
}

// --- Existence snapshots ---

func (s *PostgresStore) AllPhotoIDs(ctx context.Context) (map[string]struct{}, error) {
	return s.idSet(ctx, `SELECT id FROM photos`)
}

func (s *PostgresStore) PhotoIDsWithEmbedding(ctx context.Context) (map[string]struct{}, error) {
	return s.idSet(ctx, `SELECT photo_id FROM photo_embeddings`)
}

func (s *PostgresStore) PhotoIDsWithFacesChecked(ctx context.Context) (map[string]struct{}, error) {
	return s.idSet(ctx, `SELECT id FROM photos WHERE faces_checked_at IS NOT NULL`)
}

func (s *PostgresStore) PhotoPlaceIDs(ctx context.Context) (map[string]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, place_id FROM photos WHERE place_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load photo places: %w", err)
	}
	defer rows.Close()

	result := make(map[string]uuid.UUID)
	for rows.Next() {
		var id string
		var placeID uuid.UUID
		if err := rows.Scan(&id, &placeID); err != nil {
			return nil, fmt.Errorf("scan photo place: %w", err)
		}
		result[id] = placeID
	}
	return result, rows.Err()
}

func (s *PostgresStore) idSet(ctx context.Context, query string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load id set: %w", err)
	}
	defer rows.Close()

	result := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = struct{}{}
	}
	return result, rows.Err()
}
