// Package locations turns a typed address into coordinates so customers and
// volunteers can pick a location without device GPS.
package locations

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/maps"
)

const defaultLimit = 5

type geocoder interface {
	SearchText(ctx context.Context, req maps.TextSearchRequest) ([]maps.Place, error)
	ResolvePlace(ctx context.Context, placeID string) (*maps.Place, error)
}

type Service interface {
	Lookup(ctx context.Context, query Query) ([]Location, error)
}

// Query is either free text (address and/or city, optionally state) or a
// place id returned by an earlier lookup.
type Query struct {
	Address string
	City    string
	State   string
	PlaceID string
}

type Location struct {
	PlaceID     string  `json:"place_id,omitempty"`
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	Country     string  `json:"country,omitempty"`
}

type Settings struct {
	RegionCode   string
	LanguageCode string
	Limit        int
}

type service struct {
	maps     geocoder
	settings Settings
	logg     *logger.Logger
}

// NewService accepts a nil geocoder; lookups then fail as a dependency error
// so the rest of the API keeps serving without a maps key.
func NewService(client geocoder, settings Settings, logg *logger.Logger) Service {
	if settings.Limit <= 0 {
		settings.Limit = defaultLimit
	}
	return &service{maps: client, settings: settings, logg: logg}
}

func (s *service) Lookup(ctx context.Context, query Query) ([]Location, error) {
	query.Address = strings.TrimSpace(query.Address)
	query.City = strings.TrimSpace(query.City)
	query.State = strings.TrimSpace(query.State)
	query.PlaceID = strings.TrimSpace(query.PlaceID)
	if query.PlaceID == "" && query.Address == "" && query.City == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address or city is required")
	}
	if s.maps == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "geocoding is unavailable")
	}

	var places []maps.Place
	if query.PlaceID != "" {
		place, err := s.maps.ResolvePlace(ctx, query.PlaceID)
		if err != nil {
			return nil, s.upstream(ctx, err)
		}
		places = []maps.Place{*place}
	} else {
		found, err := s.maps.SearchText(ctx, maps.TextSearchRequest{
			Query:        joinNonEmpty(query.Address, query.City, query.State),
			RegionCode:   s.settings.RegionCode,
			LanguageCode: s.settings.LanguageCode,
			PageSize:     s.settings.Limit,
		})
		if err != nil {
			return nil, s.upstream(ctx, err)
		}
		places = found
	}

	out := make([]Location, 0, len(places))
	for _, place := range places {
		loc, ok := toLocation(place)
		if !ok {
			continue
		}
		out = append(out, loc)
		if len(out) == s.settings.Limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
	}
	return out, nil
}

// upstream keeps not-found and validation answers and reports everything
// else as a retryable dependency failure.
func (s *service) upstream(ctx context.Context, err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return err
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "locations.geocode_failed")
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "geocoding is unavailable")
}

func toLocation(place maps.Place) (Location, bool) {
	coord := geo.Coordinate{Latitude: place.Location.Latitude, Longitude: place.Location.Longitude}
	if coord.Validate() != nil || (coord.Latitude == 0 && coord.Longitude == 0) {
		return Location{}, false
	}
	city := place.Component("locality")
	if city == "" {
		city = place.Component("administrative_area_level_2")
	}
	return Location{
		PlaceID:     place.PlaceID,
		DisplayName: place.FormattedAddress,
		Latitude:    coord.Latitude,
		Longitude:   coord.Longitude,
		City:        city,
		State:       place.Component("administrative_area_level_1"),
		Country:     place.Component("country"),
	}, true
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ", ")
}
