package volunteers

import (
	"net/http"

	"github.com/angelmondragon/medidrop-backend/api/controllers/requestctx"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	internalvolunteers "github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

type registerRequest struct {
	VehicleType    string   `json:"vehicleType" validate:"required,oneof=bicycle motorcycle car auto"`
	VehicleNumber  string   `json:"vehicleNumber" validate:"max=20"`
	DrivingLicense string   `json:"drivingLicense" validate:"max=32"`
	Age            int      `json:"age" validate:"required,gt=0"`
	City           string   `json:"city" validate:"required,max=80"`
	RadiusKm       *float64 `json:"radiusKm"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

type availabilityRequest struct {
	Online *bool `json:"isOnline" validate:"required"`
}

// Register creates the caller's volunteer profile, pending admin review.
func Register(svc internalvolunteers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "volunteers unavailable"))
			return
		}
		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalvolunteers.RegisterInput{
			VehicleType:    enums.VehicleType(body.VehicleType),
			VehicleNumber:  validators.SanitizeString(body.VehicleNumber, 20),
			DrivingLicense: validators.SanitizeString(body.DrivingLicense, 32),
			Age:            body.Age,
			City:           validators.SanitizeString(body.City, 80),
			RadiusKm:       body.RadiusKm,
		}
		if body.Latitude != nil && body.Longitude != nil {
			input.Location = &geo.Coordinate{Latitude: *body.Latitude, Longitude: *body.Longitude}
		}

		profile, err := svc.Register(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, profile)
	}
}

// Profile returns the caller's volunteer profile.
func Profile(svc internalvolunteers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "volunteers unavailable"))
			return
		}
		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.Profile(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// UpdateLocation stores the caller's current position.
func UpdateLocation(svc internalvolunteers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "volunteers unavailable"))
			return
		}
		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body locationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.UpdateLocation(r.Context(), userID, geo.Coordinate{Latitude: *body.Latitude, Longitude: *body.Longitude})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// SetAvailability toggles the caller online or offline.
func SetAvailability(svc internalvolunteers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "volunteers unavailable"))
			return
		}
		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body availabilityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.SetAvailability(r.Context(), userID, *body.Online)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
