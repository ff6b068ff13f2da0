package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/medidrop-backend/internal/locations"
	"github.com/angelmondragon/medidrop-backend/internal/matching"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
)

type stubMatching struct {
	origin geo.Coordinate
	term   string
	radius float64
	calls  int
}

func (s *stubMatching) FindPharmaciesWithMedicine(_ context.Context, origin geo.Coordinate, medicineName string, radiusKm float64) (*matching.SearchResult, error) {
	s.calls++
	s.origin, s.term, s.radius = origin, medicineName, radiusKm
	return &matching.SearchResult{
		Mode:     enums.SearchModeWithinRadius,
		RadiusKm: 3,
		Origin:   origin,
		Results:  []matching.PharmacyMatch{{PharmacyID: uuid.New(), Name: "Near", DistanceKm: 1.11}},
	}, nil
}

func (s *stubMatching) FindOrdersForVolunteer(context.Context, uuid.UUID) ([]matching.OrderSummary, error) {
	return nil, nil
}

func TestPharmaciesPassesQueryThrough(t *testing.T) {
	svc := &stubMatching{}
	req := httptest.NewRequest(http.MethodGet, "/api/public/pharmacies/search?lat=12.97&lng=77.59&medicineName=%20paracetamol%20&radius=5", nil)
	rec := httptest.NewRecorder()
	Pharmacies(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, geo.Coordinate{Latitude: 12.97, Longitude: 77.59}, svc.origin)
	require.Equal(t, "paracetamol", svc.term)
	require.Equal(t, 5.0, svc.radius)

	var payload struct {
		Data matching.SearchResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Equal(t, enums.SearchModeWithinRadius, payload.Data.Mode)
	require.Len(t, payload.Data.Results, 1)
}

func TestPharmaciesValidation(t *testing.T) {
	cases := map[string]string{
		"missing lat":      "/api/public/pharmacies/search?lng=77.59&medicineName=x",
		"bad lng":          "/api/public/pharmacies/search?lat=12&lng=east&medicineName=x",
		"missing medicine": "/api/public/pharmacies/search?lat=12&lng=77",
		"negative radius":  "/api/public/pharmacies/search?lat=12&lng=77&medicineName=x&radius=-1",
	}
	for name, url := range cases {
		svc := &stubMatching{}
		rec := httptest.NewRecorder()
		Pharmacies(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
		require.Zero(t, svc.calls, name)
	}
}

type stubLocations struct {
	query locations.Query
	err   error
}

func (s *stubLocations) Lookup(_ context.Context, query locations.Query) ([]locations.Location, error) {
	s.query = query
	if s.err != nil {
		return nil, s.err
	}
	return []locations.Location{{DisplayName: "Indiranagar, Bengaluru", Latitude: 12.97, Longitude: 77.64}}, nil
}

func TestLocationsPassesQueryThrough(t *testing.T) {
	svc := &stubLocations{}
	req := httptest.NewRequest(http.MethodGet, "/api/public/locations?address=100%20Feet%20Rd&city=Bengaluru&state=KA", nil)
	rec := httptest.NewRecorder()
	Locations(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, locations.Query{Address: "100 Feet Rd", City: "Bengaluru", State: "KA"}, svc.query)

	var payload struct {
		Data struct {
			Locations []locations.Location `json:"locations"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Len(t, payload.Data.Locations, 1)
	require.Equal(t, 12.97, payload.Data.Locations[0].Latitude)
}

func TestLocationsMapsGeocodingOutage(t *testing.T) {
	svc := &stubLocations{err: pkgerrors.New(pkgerrors.CodeDependency, "geocoding is unavailable")}
	rec := httptest.NewRecorder()
	Locations(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/locations?city=Bengaluru", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
