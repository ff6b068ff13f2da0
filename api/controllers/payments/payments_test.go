package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/medidrop-backend/api/middleware"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	internalpayments "github.com/angelmondragon/medidrop-backend/internal/payments"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

const secret = "test-secret"

type stubCoordinator struct {
	verified  []internalpayments.VerifyInput
	failed    []string
	intentFor uuid.UUID
	err       error
}

func (s *stubCoordinator) CreateIntent(_ context.Context, orderID, _ uuid.UUID) (*orders.PaymentIntent, error) {
	s.intentFor = orderID
	if s.err != nil {
		return nil, s.err
	}
	return &orders.PaymentIntent{Provider: "razorpay", OrderRef: "order_1", Currency: "INR"}, nil
}

func (s *stubCoordinator) Verify(_ context.Context, input internalpayments.VerifyInput) (*orders.OrderView, error) {
	s.verified = append(s.verified, input)
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderView{ID: uuid.New(), OrderStatus: enums.OrderStatusConfirmed, PaymentStatus: enums.PaymentStatusCompleted}, nil
}

func (s *stubCoordinator) MarkFailed(_ context.Context, orderRef, reason string) error {
	s.failed = append(s.failed, orderRef+":"+reason)
	return s.err
}

func customerRequest(method, url, body string, customerID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUserID(req.Context(), customerID.String()))
}

func TestVerifyScopesToCustomer(t *testing.T) {
	svc := &stubCoordinator{}
	customerID := uuid.New()
	body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}`

	rec := httptest.NewRecorder()
	Verify(svc, nil).ServeHTTP(rec, customerRequest(http.MethodPost, "/api/orders/verify-payment", body, customerID))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.verified, 1)
	require.Equal(t, "order_1", svc.verified[0].OrderRef)
	require.Equal(t, customerID, *svc.verified[0].CustomerID)
}

func TestVerifyRequiresAllRefs(t *testing.T) {
	svc := &stubCoordinator{}
	rec := httptest.NewRecorder()
	Verify(svc, nil).ServeHTTP(rec, customerRequest(http.MethodPost, "/api/orders/verify-payment", `{"razorpay_order_id":"order_1"}`, uuid.New()))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.verified)
}

func TestVerifyMapsIntegrityFailure(t *testing.T) {
	svc := &stubCoordinator{err: pkgerrors.New(pkgerrors.CodeIntegrity, "payment signature mismatch")}
	body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"forged"}`
	rec := httptest.NewRecorder()
	Verify(svc, nil).ServeHTTP(rec, customerRequest(http.MethodPost, "/api/orders/verify-payment", body, uuid.New()))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), string(pkgerrors.CodeIntegrity))
}

func TestCallbackCapturedVerifiesWithoutCustomer(t *testing.T) {
	svc := &stubCoordinator{}
	body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig","status":"captured"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", strings.NewReader(body))
	rec := httptest.NewRecorder()
	Callback(svc, secret, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.verified, 1)
	require.Nil(t, svc.verified[0].CustomerID)
	require.NotContains(t, rec.Body.String(), "contact_number")
}

func TestCallbackFailureNeedsSignature(t *testing.T) {
	svc := &stubCoordinator{}
	forged := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"forged","status":"failed","error_reason":"declined"}`
	rec := httptest.NewRecorder()
	Callback(svc, secret, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payments/callback", strings.NewReader(forged)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.failed)

	signed := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"` +
		internalpayments.Sign(secret, "order_1", "pay_1") + `","status":"failed","error_reason":"declined"}`
	rec = httptest.NewRecorder()
	Callback(svc, secret, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payments/callback", strings.NewReader(signed)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"order_1:declined"}, svc.failed)
}

func TestIntentUsesPathOrder(t *testing.T) {
	svc := &stubCoordinator{}
	orderID := uuid.New()
	router := chi.NewRouter()
	router.Post("/api/orders/{orderId}/payment-intent", Intent(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, customerRequest(http.MethodPost, "/api/orders/"+orderID.String()+"/payment-intent", "", uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, orderID, svc.intentFor)
}
