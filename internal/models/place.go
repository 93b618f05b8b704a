package models

import (
	"time"

	"github.com/google/uuid"
)

// PlaceType orders the place hierarchy from broadest to narrowest.
type PlaceType string

const (
	PlaceCountry PlaceType = "country"
	PlaceState   PlaceType = "state"
	PlaceCity    PlaceType = "city"
	PlaceStreet  PlaceType = "street"
)

// Place is one node in the place forest. Ancestors are strictly broader
// types. Two places are the same node iff they share name_en and parent;
// the type is not part of the dedup key.
type Place struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	NameEn    string     `json:"name_en" db:"name_en"`
	NameSv    string     `json:"name_sv" db:"name_sv"`
	Type      PlaceType  `json:"place_type" db:"place_type"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
