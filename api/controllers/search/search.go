package search

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	"github.com/angelmondragon/medidrop-backend/internal/matching"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

// Pharmacies finds approved pharmacies stocking ?medicineName= around ?lat=&lng=.
// ?radius= is optional and falls back to the configured default.
func Pharmacies(svc matching.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "search unavailable"))
			return
		}

		origin, err := validators.ParseQueryCoordinate(r, "lat", "lng")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		radius, err := validators.ParseQueryFloat(r, "radius")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var radiusKm float64
		if radius != nil {
			radiusKm = *radius
			if radiusKm <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "radius must be positive").WithDetails(map[string]any{"field": "radius"}))
				return
			}
		}

		term := validators.SanitizeString(r.URL.Query().Get("medicineName"), 120)
		if strings.TrimSpace(term) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "medicineName is required"))
			return
		}

		result, err := svc.FindPharmaciesWithMedicine(r.Context(), origin, term, radiusKm)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
