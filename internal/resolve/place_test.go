package resolve

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/photocat/internal/geocode"
	"github.com/your-org/photocat/internal/models"
	"github.com/your-org/photocat/internal/sidecar"
)

// fakePlaceStore deduplicates on (name_en, parent), mirroring the catalog's
// partial unique indexes.
type fakePlaceStore struct {
	ids   map[string]uuid.UUID
	types map[uuid.UUID]models.PlaceType
	calls int
}

func newFakePlaceStore() *fakePlaceStore {
	return &fakePlaceStore{
		ids:   map[string]uuid.UUID{},
		types: map[uuid.UUID]models.PlaceType{},
	}
}

func (f *fakePlaceStore) GetOrCreatePlace(_ context.Context, nameEn, _ string, placeType models.PlaceType, parentID *uuid.UUID) (uuid.UUID, error) {
	f.calls++
	key := nameEn
	if parentID != nil {
		key += "/" + parentID.String()
	}
	if id, ok := f.ids[key]; ok {
		return id, nil
	}
	id := uuid.New()
	f.ids[key] = id
	f.types[id] = placeType
	return id, nil
}

type fakeGeocoder struct {
	place   *geocode.Place
	lastLat float64
	lastLon float64
	lookups int
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (*geocode.Place, error) {
	f.lookups++
	f.lastLat, f.lastLon = lat, lon
	return f.place, nil
}

func strPtr(s string) *string     { return &s }
func floatPtr(v float64) *float64 { return &v }

func TestResolvePlace(t *testing.T) {
	ctx := context.Background()

	t.Run("named hint skips geocoding", func(t *testing.T) {
		store := newFakePlaceStore()
		geo := &fakeGeocoder{}
		hint := &sidecar.Hint{
			Country: strPtr("Sweden"),
			City:    strPtr("Stockholm"),
			Lat:     floatPtr(59.3293),
			Lon:     floatPtr(18.0686),
		}

		res, err := ResolvePlace(ctx, store, geo, hint, nil, nil)
		require.NoError(t, err)
		require.NotNil(t, res.PlaceID)
		assert.Equal(t, SourceConfig, res.Source)
		assert.Equal(t, 0, geo.lookups)
		assert.Equal(t, 2, store.calls)
		assert.Equal(t, models.PlaceCity, store.types[*res.PlaceID])
	})

	t.Run("hierarchy chains parents and deduplicates", func(t *testing.T) {
		store := newFakePlaceStore()
		hint := &sidecar.Hint{Country: strPtr("Sweden"), City: strPtr("Stockholm")}

		first, err := ResolvePlace(ctx, store, nil, hint, nil, nil)
		require.NoError(t, err)
		second, err := ResolvePlace(ctx, store, nil, hint, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, *first.PlaceID, *second.PlaceID)
		assert.Len(t, store.ids, 2)

		// The same city name under another country is a distinct node.
		other := &sidecar.Hint{Country: strPtr("Norway"), City: strPtr("Stockholm")}
		third, err := ResolvePlace(ctx, store, nil, other, nil, nil)
		require.NoError(t, err)
		assert.NotEqual(t, *first.PlaceID, *third.PlaceID)
	})

	t.Run("gps coordinates are geocoded", func(t *testing.T) {
		store := newFakePlaceStore()
		geo := &fakeGeocoder{place: &geocode.Place{
			Country: &geocode.LocalizedName{En: "Sweden", Sv: "Sverige"},
			City:    &geocode.LocalizedName{En: "Stockholm", Sv: "Stockholm"},
			Street:  &geocode.LocalizedName{En: "Hornsgatan", Sv: "Hornsgatan"},
		}}

		res, err := ResolvePlace(ctx, store, geo, nil, floatPtr(59.3165), floatPtr(18.056))
		require.NoError(t, err)
		require.NotNil(t, res.PlaceID)
		assert.Equal(t, SourceGPS, res.Source)
		assert.Equal(t, 1, geo.lookups)
		assert.Equal(t, models.PlaceStreet, store.types[*res.PlaceID])
	})

	t.Run("hint coordinates outrank exif gps", func(t *testing.T) {
		store := newFakePlaceStore()
		geo := &fakeGeocoder{place: &geocode.Place{Country: &geocode.LocalizedName{En: "Sweden"}}}
		hint := &sidecar.Hint{Lat: floatPtr(59.0), Lon: floatPtr(18.0)}

		_, err := ResolvePlace(ctx, store, geo, hint, floatPtr(40.0), floatPtr(-70.0))
		require.NoError(t, err)
		assert.Equal(t, 59.0, geo.lastLat)
		assert.Equal(t, 18.0, geo.lastLon)
	})

	t.Run("geocoder no-result leaves the photo placeless", func(t *testing.T) {
		store := newFakePlaceStore()
		geo := &fakeGeocoder{place: nil}

		res, err := ResolvePlace(ctx, store, geo, nil, floatPtr(0), floatPtr(0))
		require.NoError(t, err)
		assert.Nil(t, res.PlaceID)
		assert.Equal(t, SourceNone, res.Source)
		assert.Equal(t, 0, store.calls)
	})

	t.Run("nil geocoder never resolves from coordinates", func(t *testing.T) {
		store := newFakePlaceStore()

		res, err := ResolvePlace(ctx, store, nil, nil, floatPtr(59.0), floatPtr(18.0))
		require.NoError(t, err)
		assert.Nil(t, res.PlaceID)
		assert.Equal(t, SourceNone, res.Source)
	})
}
