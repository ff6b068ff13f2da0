package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/api/controllers/requestctx"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	internalpayments "github.com/angelmondragon/medidrop-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

const statusFailed = "failed"

// Coordinator is the payment surface the HTTP layer drives.
type Coordinator interface {
	CreateIntent(ctx context.Context, orderID, customerID uuid.UUID) (*orders.PaymentIntent, error)
	Verify(ctx context.Context, input internalpayments.VerifyInput) (*orders.OrderView, error)
	MarkFailed(ctx context.Context, orderRef, reason string) error
}

type verifyRequest struct {
	OrderRef   string `json:"razorpay_order_id" validate:"required"`
	PaymentRef string `json:"razorpay_payment_id" validate:"required"`
	Signature  string `json:"razorpay_signature" validate:"required"`
}

type callbackRequest struct {
	verifyRequest
	Status string `json:"status" validate:"omitempty,oneof=captured failed"`
	Reason string `json:"error_reason"`
}

// Intent opens (or reopens) a processor payment for the customer's pending order.
func Intent(svc Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}
		customerID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := requestctx.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateIntent(r.Context(), orderID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// Verify confirms a payment reported by the customer's checkout client. The
// order must belong to the caller.
func Verify(svc Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}
		customerID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body verifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Verify(r.Context(), internalpayments.VerifyInput{
			OrderRef:   strings.TrimSpace(body.OrderRef),
			PaymentRef: strings.TrimSpace(body.PaymentRef),
			Signature:  strings.TrimSpace(body.Signature),
			CustomerID: &customerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Callback handles the processor's server-side notification. Captured
// payments go through the same signed verification as Verify; failures are
// accepted only with a valid signature over the failed payment reference.
func Callback(svc Coordinator, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}

		var body callbackRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderRef := strings.TrimSpace(body.OrderRef)
		paymentRef := strings.TrimSpace(body.PaymentRef)
		signature := strings.TrimSpace(body.Signature)

		if body.Status == statusFailed {
			if !internalpayments.SignatureValid(secret, orderRef, paymentRef, signature) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIntegrity, "payment signature mismatch"))
				return
			}
			if err := svc.MarkFailed(r.Context(), orderRef, body.Reason); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]string{"status": statusFailed})
			return
		}

		view, err := svc.Verify(r.Context(), internalpayments.VerifyInput{
			OrderRef:   orderRef,
			PaymentRef: paymentRef,
			Signature:  signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order_id":       view.ID,
			"order_status":   view.OrderStatus,
			"payment_status": view.PaymentStatus,
		})
	}
}
