package resolve

import (
	"context"

	"github.com/google/uuid"

	"github.com/your-org/photocat/internal/geocode"
	"github.com/your-org/photocat/internal/models"
	"github.com/your-org/photocat/internal/sidecar"
)

// PlaceStore is the catalog's get-or-create operation for place nodes.
type PlaceStore interface {
	GetOrCreatePlace(ctx context.Context, nameEn, nameSv string, placeType models.PlaceType, parentID *uuid.UUID) (uuid.UUID, error)
}

// Geocoder resolves coordinates to a localized place breakdown. A definite
// "no result" is (nil, nil).
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*geocode.Place, error)
}

// PlaceResult is the resolved place reference, nil when nothing applies.
type PlaceResult struct {
	PlaceID *uuid.UUID
	Source  string
}

// ResolvePlace picks the place by priority: a sidecar hint with at least
// one named level (no geocoding call), then reverse-geocoded coordinates
// (sidecar coordinates over EXIF GPS) when a geocoder is supplied, then
// no place.
func ResolvePlace(ctx context.Context, store PlaceStore, geocoder Geocoder, hint *sidecar.Hint, gpsLat, gpsLon *float64) (PlaceResult, error) {
	if hint != nil && hint.HasNamedPlace() {
		id, err := resolveNamedHierarchy(ctx, store, hint)
		if err != nil {
			return PlaceResult{}, err
		}
		return PlaceResult{PlaceID: id, Source: SourceConfig}, nil
	}

	if geocoder != nil {
		lat, lon := gpsLat, gpsLon
		if hint != nil && hint.HasCoordinates() {
			lat, lon = hint.Lat, hint.Lon
		}
		if lat != nil && lon != nil {
			place, err := geocoder.ReverseGeocode(ctx, *lat, *lon)
			if err != nil {
				return PlaceResult{}, err
			}
			if place != nil {
				id, err := resolveGeocodedHierarchy(ctx, store, place)
				if err != nil {
					return PlaceResult{}, err
				}
				if id != nil {
					return PlaceResult{PlaceID: id, Source: SourceGPS}, nil
				}
			}
		}
	}

	return PlaceResult{Source: SourceNone}, nil
}

type level struct {
	nameEn    string
	nameSv    string
	placeType models.PlaceType
}

// walkHierarchy gets or creates each present level in country→street order,
// chaining parents. The result is the most specific level's id.
func walkHierarchy(ctx context.Context, store PlaceStore, levels []level) (*uuid.UUID, error) {
	var parent *uuid.UUID
	for _, l := range levels {
		if l.nameEn == "" && l.nameSv == "" {
			continue
		}
		nameEn, nameSv := l.nameEn, l.nameSv
		if nameEn == "" {
			nameEn = nameSv
		}
		if nameSv == "" {
			nameSv = nameEn
		}
		id, err := store.GetOrCreatePlace(ctx, nameEn, nameSv, l.placeType, parent)
		if err != nil {
			return nil, err
		}
		parent = &id
	}
	return parent, nil
}

func resolveNamedHierarchy(ctx context.Context, store PlaceStore, hint *sidecar.Hint) (*uuid.UUID, error) {
	return walkHierarchy(ctx, store, []level{
		{nameEn: deref(hint.Country), nameSv: deref(hint.Country), placeType: models.PlaceCountry},
		{nameEn: deref(hint.State), nameSv: deref(hint.State), placeType: models.PlaceState},
		{nameEn: deref(hint.City), nameSv: deref(hint.City), placeType: models.PlaceCity},
		{nameEn: deref(hint.Street), nameSv: deref(hint.Street), placeType: models.PlaceStreet},
	})
}

func resolveGeocodedHierarchy(ctx context.Context, store PlaceStore, place *geocode.Place) (*uuid.UUID, error) {
	return walkHierarchy(ctx, store, []level{
		localizedLevel(place.Country, models.PlaceCountry),
		localizedLevel(place.State, models.PlaceState),
		localizedLevel(place.City, models.PlaceCity),
		localizedLevel(place.Street, models.PlaceStreet),
	})
}

func localizedLevel(name *geocode.LocalizedName, t models.PlaceType) level {
	if name == nil {
		return level{placeType: t}
	}
	return level{nameEn: name.En, nameSv: name.Sv, placeType: t}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
