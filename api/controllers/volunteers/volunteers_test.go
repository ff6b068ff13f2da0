package volunteers

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
	"github.com/angelmondragon/medidrop-backend/internal/matching"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	internalvolunteers "github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/pagination"
)

type stubProfiles struct {
	registered *internalvolunteers.RegisterInput
	location   geo.Coordinate
	online     *bool
	err        error
}

func (s *stubProfiles) Register(_ context.Context, userID uuid.UUID, input internalvolunteers.RegisterInput) (*internalvolunteers.Profile, error) {
	s.registered = &input
	return &internalvolunteers.Profile{UserID: userID, ApprovalStatus: enums.ApprovalStatusPending}, s.err
}

func (s *stubProfiles) Profile(_ context.Context, userID uuid.UUID) (*internalvolunteers.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &internalvolunteers.Profile{UserID: userID}, nil
}

func (s *stubProfiles) UpdateLocation(_ context.Context, _ uuid.UUID, location geo.Coordinate) (*internalvolunteers.Profile, error) {
	s.location = location
	return &internalvolunteers.Profile{Location: &location}, s.err
}

func (s *stubProfiles) SetAvailability(_ context.Context, _ uuid.UUID, online bool) (*internalvolunteers.Profile, error) {
	s.online = &online
	if s.err != nil {
		return nil, s.err
	}
	return &internalvolunteers.Profile{IsOnline: online}, nil
}

func (s *stubProfiles) SetApprovalStatus(context.Context, uuid.UUID, enums.ApprovalStatus, string) (*internalvolunteers.Profile, error) {
	return nil, nil
}

type stubMatching struct {
	asked uuid.UUID
	err   error
}

func (s *stubMatching) FindPharmaciesWithMedicine(context.Context, geo.Coordinate, string, float64) (*matching.SearchResult, error) {
	return nil, nil
}

func (s *stubMatching) FindOrdersForVolunteer(_ context.Context, userID uuid.UUID) ([]matching.OrderSummary, error) {
	s.asked = userID
	if s.err != nil {
		return nil, s.err
	}
	return []matching.OrderSummary{{OrderID: uuid.New(), PharmacyName: "Apollo"}}, nil
}

type stubAssignment struct {
	steps      []string
	orderID    uuid.UUID
	userID     uuid.UUID
	listStatus *enums.OrderStatus
	err        error
}

func (s *stubAssignment) record(name string, orderID, userID uuid.UUID) (*orders.OrderView, error) {
	s.steps = append(s.steps, name)
	s.orderID, s.userID = orderID, userID
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderView{ID: orderID}, nil
}

func (s *stubAssignment) Accept(_ context.Context, orderID, userID uuid.UUID) (*orders.OrderView, error) {
	return s.record("accept", orderID, userID)
}

func (s *stubAssignment) MarkPickedUp(_ context.Context, orderID, userID uuid.UUID) (*orders.OrderView, error) {
	return s.record("picked_up", orderID, userID)
}

func (s *stubAssignment) MarkOutForDelivery(_ context.Context, orderID, userID uuid.UUID) (*orders.OrderView, error) {
	return s.record("out_for_delivery", orderID, userID)
}

func (s *stubAssignment) MarkDelivered(_ context.Context, orderID, userID uuid.UUID) (*orders.OrderView, error) {
	return s.record("delivered", orderID, userID)
}

func (s *stubAssignment) ListMyDeliveries(_ context.Context, _ uuid.UUID, status *enums.OrderStatus, _ pagination.Params) (*orders.OrderList, error) {
	s.listStatus = status
	return &orders.OrderList{}, nil
}

func newRouter(profiles internalvolunteers.Service, match matching.Service, assign *stubAssignment) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/volunteer/profile", Register(profiles, nil))
	r.Get("/api/volunteer/profile", Profile(profiles, nil))
	r.Put("/api/volunteer/location", UpdateLocation(profiles, nil))
	r.Put("/api/volunteer/availability", SetAvailability(profiles, nil))
	r.Get("/api/volunteer/orders/available", AvailableOrders(match, nil))
	r.Post("/api/volunteer/orders/{orderId}/accept", Accept(assign, nil))
	r.Post("/api/volunteer/orders/{orderId}/picked-up", PickedUp(assign, nil))
	r.Post("/api/volunteer/orders/{orderId}/out-for-delivery", OutForDelivery(assign, nil))
	r.Post("/api/volunteer/orders/{orderId}/delivered", Delivered(assign, nil))
	r.Get("/api/volunteer/deliveries", Deliveries(assign, nil))
	return r
}

func do(r http.Handler, userID uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRegisterProfile(t *testing.T) {
	profiles := &stubProfiles{}
	r := newRouter(profiles, &stubMatching{}, &stubAssignment{})

	rec := do(r, uuid.New(), http.MethodPost, "/api/volunteer/profile",
		`{"vehicleType":"motorcycle","vehicleNumber":"ka01ab1234","drivingLicense":"DL-1","age":24,"city":"Bengaluru","radiusKm":7.5,"latitude":12.97,"longitude":77.59}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, enums.VehicleTypeMotorcycle, profiles.registered.VehicleType)
	require.Equal(t, 7.5, *profiles.registered.RadiusKm)
	require.NotNil(t, profiles.registered.Location)

	rec = do(r, uuid.New(), http.MethodPost, "/api/volunteer/profile", `{"vehicleType":"rocket","age":24,"city":"Bengaluru"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileNotFound(t *testing.T) {
	profiles := &stubProfiles{err: pkgerrors.New(pkgerrors.CodeNotFound, "volunteer profile not found")}
	rec := do(newRouter(profiles, &stubMatching{}, &stubAssignment{}), uuid.New(), http.MethodGet, "/api/volunteer/profile", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocationAndAvailability(t *testing.T) {
	profiles := &stubProfiles{}
	r := newRouter(profiles, &stubMatching{}, &stubAssignment{})

	rec := do(r, uuid.New(), http.MethodPut, "/api/volunteer/location", `{"latitude":12.5,"longitude":77.1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, geo.Coordinate{Latitude: 12.5, Longitude: 77.1}, profiles.location)

	rec = do(r, uuid.New(), http.MethodPut, "/api/volunteer/location", `{"latitude":12.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, uuid.New(), http.MethodPut, "/api/volunteer/availability", `{"isOnline":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, *profiles.online)

	rec = do(r, uuid.New(), http.MethodPut, "/api/volunteer/availability", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoingOfflineWithActiveOrderConflicts(t *testing.T) {
	profiles := &stubProfiles{err: pkgerrors.New(pkgerrors.CodeConflict, "finish active deliveries before going offline")}
	rec := do(newRouter(profiles, &stubMatching{}, &stubAssignment{}), uuid.New(), http.MethodPut, "/api/volunteer/availability", `{"isOnline":false}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAvailableOrders(t *testing.T) {
	match := &stubMatching{}
	userID := uuid.New()
	rec := do(newRouter(&stubProfiles{}, match, &stubAssignment{}), userID, http.MethodGet, "/api/volunteer/orders/available", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID, match.asked)
	require.Contains(t, rec.Body.String(), "Apollo")

	match.err = pkgerrors.New(pkgerrors.CodeForbidden, "volunteer is not approved and available")
	rec = do(newRouter(&stubProfiles{}, match, &stubAssignment{}), userID, http.MethodGet, "/api/volunteer/orders/available", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeliverySteps(t *testing.T) {
	assign := &stubAssignment{}
	r := newRouter(&stubProfiles{}, &stubMatching{}, assign)
	userID := uuid.New()
	orderID := uuid.New()

	for _, suffix := range []string{"accept", "picked-up", "out-for-delivery", "delivered"} {
		rec := do(r, userID, http.MethodPost, "/api/volunteer/orders/"+orderID.String()+"/"+suffix, "")
		require.Equal(t, http.StatusOK, rec.Code, suffix)
	}
	require.Equal(t, []string{"accept", "picked_up", "out_for_delivery", "delivered"}, assign.steps)
	require.Equal(t, orderID, assign.orderID)
	require.Equal(t, userID, assign.userID)
}

func TestAcceptLostRace(t *testing.T) {
	assign := &stubAssignment{err: pkgerrors.New(pkgerrors.CodeConflict, "order already assigned")}
	rec := do(newRouter(&stubProfiles{}, &stubMatching{}, assign), uuid.New(), http.MethodPost, "/api/volunteer/orders/"+uuid.NewString()+"/accept", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeliveriesFilter(t *testing.T) {
	assign := &stubAssignment{}
	rec := do(newRouter(&stubProfiles{}, &stubMatching{}, assign), uuid.New(), http.MethodGet, "/api/volunteer/deliveries?status=delivered", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, enums.OrderStatusDelivered, *assign.listStatus)
}
