package volunteers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/api/controllers/requestctx"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/internal/assignment"
	"github.com/angelmondragon/medidrop-backend/internal/matching"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

type orderStep func(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error)

// AvailableOrders lists paid delivery orders within the caller's service radius.
func AvailableOrders(svc matching.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "matching unavailable"))
			return
		}
		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summaries, err := svc.FindOrdersForVolunteer(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": summaries})
	}
}

// Accept claims an available order for the caller.
func Accept(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return missing(logg)
	}
	return step(svc.Accept, logg)
}

// PickedUp records collection from the pharmacy.
func PickedUp(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return missing(logg)
	}
	return step(svc.MarkPickedUp, logg)
}

// OutForDelivery records departure towards the customer.
func OutForDelivery(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return missing(logg)
	}
	return step(svc.MarkOutForDelivery, logg)
}

// Delivered records handover to the customer.
func Delivered(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return missing(logg)
	}
	return step(svc.MarkDelivered, logg)
}

// Deliveries pages through orders assigned to the caller, filtered by ?status=.
func Deliveries(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return missing(logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestctx.UserID(r)
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

		list, err := svc.ListMyDeliveries(r.Context(), userID, status, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func step(run orderStep, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := requestctx.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := run(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func missing(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment unavailable"))
	}
}
