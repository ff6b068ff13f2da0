package pharmacies

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medidrop-backend/api/controllers/requestctx"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	internalpharmacies "github.com/angelmondragon/medidrop-backend/internal/pharmacies"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

type registerRequest struct {
	Name          string  `json:"name" validate:"required,min=2,max=120"`
	Address       string  `json:"address" validate:"required,max=500"`
	ContactNumber string  `json:"contactNumber" validate:"required,phone"`
	LicenseNumber string  `json:"licenseNumber" validate:"required,max=64"`
	Latitude      float64 `json:"latitude" validate:"latitude"`
	Longitude     float64 `json:"longitude" validate:"longitude"`
}

type inventoryRequest struct {
	MedicineName  string          `json:"medicineName" validate:"required,max=120"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	Stock         int             `json:"stock" validate:"gte=0"`
}

// Register creates a pharmacy owned by the calling vendor, pending admin review.
func Register(svc internalpharmacies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pharmacies unavailable"))
			return
		}
		vendorID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Register(r.Context(), vendorID, internalpharmacies.RegisterInput{
			Name:          validators.SanitizeString(body.Name, 120),
			Address:       validators.SanitizeString(body.Address, 500),
			ContactNumber: validators.SanitizeString(body.ContactNumber, 20),
			LicenseNumber: validators.SanitizeString(body.LicenseNumber, 64),
			Location:      geo.Coordinate{Latitude: body.Latitude, Longitude: body.Longitude},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// ListMine returns the vendor's pharmacies with their inventory.
func ListMine(svc internalpharmacies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pharmacies unavailable"))
			return
		}
		vendorID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMine(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"pharmacies": list})
	}
}

// UpsertInventory adds a medicine or updates its price and stock.
func UpsertInventory(svc internalpharmacies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pharmacies unavailable"))
			return
		}
		vendorID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pharmacyID, err := requestctx.PathUUID(r, "pharmacyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body inventoryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.UpsertInventory(r.Context(), vendorID, pharmacyID, inventory.UpsertInput{
			MedicineName:  validators.SanitizeString(body.MedicineName, 120),
			SellingPrice:  body.SellingPrice,
			PurchasePrice: body.PurchasePrice,
			Stock:         body.Stock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// Dashboard returns order and sales totals for one of the vendor's pharmacies.
func Dashboard(svc internalpharmacies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pharmacies unavailable"))
			return
		}
		vendorID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pharmacyID, err := requestctx.PathUUID(r, "pharmacyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dashboard, err := svc.Dashboard(r.Context(), vendorID, pharmacyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dashboard)
	}
}
