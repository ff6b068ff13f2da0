package validators

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
)

// ParseQueryInt reads an optional bounded integer query parameter.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryNotNumeric(key)
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryFloat reads an optional float query parameter. A nil result means
// the parameter was absent.
func ParseQueryFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, queryNotNumeric(key)
	}
	return &value, nil
}

// ParseQueryCoordinate reads a required lat/lng pair and checks its range.
func ParseQueryCoordinate(r *http.Request, latKey, lngKey string) (geo.Coordinate, error) {
	lat, err := ParseQueryFloat(r, latKey)
	if err != nil {
		return geo.Coordinate{}, err
	}
	lng, err := ParseQueryFloat(r, lngKey)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if lat == nil || lng == nil {
		return geo.Coordinate{}, pkgerrors.New(pkgerrors.CodeValidation, latKey+" and "+lngKey+" are required")
	}
	point := geo.Coordinate{Latitude: *lat, Longitude: *lng}
	if err := point.Validate(); err != nil {
		return geo.Coordinate{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "coordinates out of range").WithDetails(map[string]any{"fields": []string{latKey, lngKey}})
	}
	return point, nil
}

func queryNotNumeric(key string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
}
