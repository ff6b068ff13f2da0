package search

import (
	"net/http"

	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	"github.com/angelmondragon/medidrop-backend/internal/locations"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

// Locations geocodes ?address=&city=&state= (or ?placeId=) into candidate
// coordinates for manual location selection.
func Locations(svc locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "location lookup unavailable"))
			return
		}
		q := r.URL.Query()
		found, err := svc.Lookup(ctx, locations.Query{
			Address: validators.SanitizeString(q.Get("address"), 300),
			City:    validators.SanitizeString(q.Get("city"), 120),
			State:   validators.SanitizeString(q.Get("state"), 120),
			PlaceID: validators.SanitizeString(q.Get("placeId"), 300),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"locations": found})
	}
}
