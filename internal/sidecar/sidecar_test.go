package sidecar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSidecar(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Run("missing document", func(t *testing.T) {
		h, err := Load(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, h)
	})

	t.Run("empty document", func(t *testing.T) {
		dir := t.TempDir()
		writeSidecar(t, dir, "")
		h, err := Load(dir)
		require.NoError(t, err)
		assert.Nil(t, h)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		dir := t.TempDir()
		writeSidecar(t, dir, "date: [")
		_, err := Load(dir)
		assert.Error(t, err)
	})

	t.Run("unparseable date is an error", func(t *testing.T) {
		dir := t.TempDir()
		writeSidecar(t, dir, "date:\n  not_earlier_than: sometime\n")
		_, err := Load(dir)
		assert.Error(t, err)
	})

	t.Run("dates parse as midnight utc", func(t *testing.T) {
		dir := t.TempDir()
		writeSidecar(t, dir, "date:\n  not_earlier_than: 2019-06-01\n  not_later_than: 2019-06-30\n")
		h, err := Load(dir)
		require.NoError(t, err)
		require.NotNil(t, h)
		require.True(t, h.HasDate())
		assert.Equal(t, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), *h.NotEarlierThan)
		assert.Equal(t, time.Date(2019, 6, 30, 0, 0, 0, 0, time.UTC), *h.NotLaterThan)
	})

	t.Run("place section", func(t *testing.T) {
		dir := t.TempDir()
		writeSidecar(t, dir, "place:\n  country: Sweden\n  city: Stockholm\n  lat: 59.3293\n  lon: 18.0686\n")
		h, err := Load(dir)
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.True(t, h.HasNamedPlace())
		assert.True(t, h.HasCoordinates())
		assert.Equal(t, "Sweden", *h.Country)
		assert.Equal(t, "Stockholm", *h.City)
		assert.Nil(t, h.State)
		assert.Nil(t, h.Street)
	})
}

func TestResolve(t *testing.T) {
	t.Run("closest ancestor wins per field", func(t *testing.T) {
		root := t.TempDir()
		sub := filepath.Join(root, "stockholm")
		deep := filepath.Join(sub, "sodermalm")

		writeSidecar(t, root,
			"date:\n  not_earlier_than: 2019-06-01\n  not_later_than: 2019-06-30\nplace:\n  country: Sweden\n  city: Uppsala\n")
		writeSidecar(t, sub, "place:\n  city: Stockholm\n")
		writeSidecar(t, deep, "place:\n  street: Hornsgatan\n  lat: 59.3165\n  lon: 18.056\n")

		hint, err := Resolve(filepath.Join(deep, "photo.jpg"), root)
		require.NoError(t, err)

		assert.Equal(t, "Sweden", *hint.Country)
		assert.Equal(t, "Stockholm", *hint.City)
		assert.Equal(t, "Hornsgatan", *hint.Street)
		assert.True(t, hint.HasCoordinates())

		require.True(t, hint.HasDate())
		assert.Equal(t, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), *hint.NotEarlierThan)
		assert.Equal(t, root, hint.DateSourcePath)
	})

	t.Run("deeper date bound moves the provenance", func(t *testing.T) {
		root := t.TempDir()
		sub := filepath.Join(root, "midsummer")

		writeSidecar(t, root, "date:\n  not_earlier_than: 2019-01-01\n  not_later_than: 2019-12-31\n")
		writeSidecar(t, sub, "date:\n  not_earlier_than: 2019-06-21\n")

		hint, err := Resolve(filepath.Join(sub, "photo.jpg"), root)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2019, 6, 21, 0, 0, 0, 0, time.UTC), *hint.NotEarlierThan)
		assert.Equal(t, time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC), *hint.NotLaterThan)
		assert.Equal(t, sub, hint.DateSourcePath)
	})

	t.Run("walk stops at the root", func(t *testing.T) {
		base := t.TempDir()
		root := filepath.Join(base, "library")
		sub := filepath.Join(root, "trip")

		writeSidecar(t, base, "place:\n  state: Ignored\n")
		writeSidecar(t, root, "place:\n  country: Sweden\n")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		hint, err := Resolve(filepath.Join(sub, "photo.jpg"), root)
		require.NoError(t, err)

		assert.Equal(t, "Sweden", *hint.Country)
		assert.Nil(t, hint.State)
	})

	t.Run("no documents anywhere yields an empty hint", func(t *testing.T) {
		root := t.TempDir()
		sub := filepath.Join(root, "empty")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		hint, err := Resolve(filepath.Join(sub, "photo.jpg"), root)
		require.NoError(t, err)
		require.NotNil(t, hint)
		assert.False(t, hint.HasDate())
		assert.False(t, hint.HasNamedPlace())
		assert.False(t, hint.HasCoordinates())
	})

	t.Run("malformed document on the chain is an error", func(t *testing.T) {
		root := t.TempDir()
		sub := filepath.Join(root, "bad")
		writeSidecar(t, sub, "place: {{")

		_, err := Resolve(filepath.Join(sub, "photo.jpg"), root)
		assert.Error(t, err)
	})
}
