package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/api/controllers/requestctx"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	internalorders "github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

type vendorStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ready_for_pickup cancelled"`
}

type prescriptionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Note     string `json:"note" validate:"max=500"`
}

type pickupCodeRequest struct {
	PickupCode string `json:"pickupCode" validate:"required,len=6,alphanum"`
}

// VendorList returns orders placed at the vendor's pharmacies.
func VendorList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		vendorID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := requestctx.StatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := requestctx.Page(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListVendorOrders(r.Context(), vendorID, status, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// VendorUpdateStatus lets a vendor move an order to ready_for_pickup or cancelled.
func VendorUpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return vendorAction(svc, logg, func(r *http.Request, vendorID, orderID uuid.UUID) (*internalorders.OrderView, error) {
		var body vendorStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.UpdateStatusByVendor(r.Context(), vendorID, orderID, enums.OrderStatus(body.Status))
	})
}

// VendorReviewPrescription approves or rejects an order's prescription.
func VendorReviewPrescription(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return vendorAction(svc, logg, func(r *http.Request, vendorID, orderID uuid.UUID) (*internalorders.OrderView, error) {
		var body prescriptionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		decision, err := enums.ParsePrescriptionDecision(body.Decision)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision")
		}
		return svc.ReviewPrescription(r.Context(), vendorID, orderID, decision, validators.SanitizeString(body.Note, 500))
	})
}

// VendorReadyForPickup marks a confirmed pickup order ready for collection.
func VendorReadyForPickup(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return vendorAction(svc, logg, func(r *http.Request, vendorID, orderID uuid.UUID) (*internalorders.OrderView, error) {
		return svc.MarkReadyForPickup(r.Context(), vendorID, orderID)
	})
}

// VendorConfirmPickup completes a pickup order when the customer's code matches.
func VendorConfirmPickup(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return vendorAction(svc, logg, func(r *http.Request, vendorID, orderID uuid.UUID) (*internalorders.OrderView, error) {
		var body pickupCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.ConfirmPickup(r.Context(), vendorID, orderID, strings.TrimSpace(body.PickupCode))
	})
}

type vendorOrderAction func(r *http.Request, vendorID, orderID uuid.UUID) (*internalorders.OrderView, error)

// vendorAction resolves the vendor and path order before running action.
func vendorAction(svc internalorders.Service, logg *logger.Logger, action vendorOrderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		vendorID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := requestctx.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := action(r, vendorID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
