package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "originals", cfg.MinIO.Buckets.Originals)
	assert.Equal(t, "thumbnails", cfg.MinIO.Buckets.Thumbnails)
	assert.Equal(t, "default-views", cfg.MinIO.Buckets.DefaultViews)
	assert.Equal(t, time.Second, cfg.Geocoding.MinInterval)
	assert.Equal(t, 24*time.Hour, cfg.Geocoding.CacheTTL)
	assert.Equal(t, 0.5, cfg.Vision.DetectionThreshold)
	assert.Equal(t, "Europe/Stockholm", cfg.Vision.DefaultTimezone)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png"}, cfg.Ingest.Extensions)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	t.Run("values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: db.internal
  name: photocat
  user: photocat
  password: secret
minio:
  endpoint: minio.internal:9000
  buckets:
    originals: photos-raw
geocoding:
  enabled: true
  user_agent: my-app/2.0
ingest:
  extensions: [".JPG", " .png "]
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "photos-raw", cfg.MinIO.Buckets.Originals)
		assert.Equal(t, "thumbnails", cfg.MinIO.Buckets.Thumbnails)
		assert.True(t, cfg.Geocoding.Enabled)
		assert.Equal(t, "my-app/2.0", cfg.Geocoding.UserAgent)
		assert.Equal(t, time.Second, cfg.Geocoding.MinInterval)
		assert.Equal(t, []string{".jpg", ".png"}, cfg.Ingest.Extensions)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDSN(t *testing.T) {
	dsn := DatabaseConfig{
		Host: "localhost", Port: 5432, Name: "photocat", User: "app", Password: "pw",
	}.DSN()
	assert.Equal(t, "postgres://app:pw@localhost:5432/photocat?sslmode=disable", dsn)
}
