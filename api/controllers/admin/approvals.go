package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/api/controllers/requestctx"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	"github.com/angelmondragon/medidrop-backend/internal/pharmacies"
	"github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

type approvalRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
	Reason string `json:"reason" validate:"max=500"`
}

type approvalFunc func(ctx context.Context, id uuid.UUID, status enums.ApprovalStatus, reason string) (any, error)

// PharmacyApproval sets a pharmacy's approval status.
func PharmacyApproval(svc pharmacies.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return missing("pharmacies", logg)
	}
	return approval("pharmacyId", logg, func(ctx context.Context, id uuid.UUID, status enums.ApprovalStatus, reason string) (any, error) {
		return svc.SetApprovalStatus(ctx, id, status, reason)
	})
}

// VolunteerApproval sets a volunteer's approval status.
func VolunteerApproval(svc volunteers.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return missing("volunteers", logg)
	}
	return approval("volunteerId", logg, func(ctx context.Context, id uuid.UUID, status enums.ApprovalStatus, reason string) (any, error) {
		return svc.SetApprovalStatus(ctx, id, status, reason)
	})
}

func approval(param string, logg *logger.Logger, apply approvalFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requestctx.PathUUID(r, param)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body approvalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseApprovalStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid approval status"))
			return
		}

		result, err := apply(r.Context(), id, status, validators.SanitizeString(body.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{param: id.String(), "approval_status": string(status)})
			logg.Info(ctx, "admin.approval_updated")
		}
		responses.WriteSuccess(w, result)
	}
}

func missing(name string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
	}
}
