package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/medidrop-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/medidrop-backend/api/controllers/admin"
	authcontrollers "github.com/angelmondragon/medidrop-backend/api/controllers/auth"
	ordercontrollers "github.com/angelmondragon/medidrop-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/medidrop-backend/api/controllers/payments"
	pharmacycontrollers "github.com/angelmondragon/medidrop-backend/api/controllers/pharmacies"
	searchcontrollers "github.com/angelmondragon/medidrop-backend/api/controllers/search"
	volunteercontrollers "github.com/angelmondragon/medidrop-backend/api/controllers/volunteers"
	"github.com/angelmondragon/medidrop-backend/api/middleware"
	"github.com/angelmondragon/medidrop-backend/internal/assignment"
	"github.com/angelmondragon/medidrop-backend/internal/locations"
	"github.com/angelmondragon/medidrop-backend/internal/matching"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/internal/pharmacies"
	"github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/auth/session"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/medidrop-backend/pkg/redis"
)

// SessionManager checks and revokes access tokens.
type SessionManager interface {
	session.AccessSessionChecker
	Revoke(ctx context.Context, accessID string, expiresAt time.Time) error
}

// RedisStore is the Redis surface used by rate limiting and idempotency.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type requestObserver interface {
	Observe(route, method string, status int, duration time.Duration)
}

// Deps groups everything the HTTP surface is wired to.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Store    RedisStore
	Sessions SessionManager

	Orders     orders.Service
	Payments   paymentcontrollers.Coordinator
	Matching   matching.Service
	Locations  locations.Service
	Assignment assignment.Service
	Volunteers volunteers.Service
	Pharmacies pharmacies.Service

	Gatherer    prometheus.Gatherer
	HTTPMetrics requestObserver
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App),
		middleware.Logging(logg),
	)
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}, logg))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	searchPolicy := middleware.NewRateLimitPolicy("search", cfg.Search.RateLimitWindow, cfg.Search.RateLimitPerWindow)

	r.Route("/api/public", func(r chi.Router) {
		r.With(middleware.RateLimit(searchPolicy, deps.Store, logg)).
			Get("/pharmacies/search", searchcontrollers.Pharmacies(deps.Matching, logg))
		r.With(middleware.RateLimit(searchPolicy, deps.Store, logg)).
			Get("/locations", searchcontrollers.Locations(deps.Locations, logg))
	})

	r.Post("/api/payments/callback", paymentcontrollers.Callback(deps.Payments, cfg.Payments.KeySecret, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Post("/api/auth/logout", authcontrollers.Logout(deps.Sessions, logg))

		r.Route("/api/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleCustomer))
			r.Post("/", ordercontrollers.Place(deps.Orders, int64(cfg.Orders.MaxPrescriptionMB)<<20, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Post("/verify-payment", paymentcontrollers.Verify(deps.Payments, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Get("/{orderId}/track", ordercontrollers.Track(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/{orderId}/payment-intent", paymentcontrollers.Intent(deps.Payments, logg))
		})

		r.Route("/api/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor))
			r.Get("/orders", ordercontrollers.VendorList(deps.Orders, logg))
			r.Put("/orders/{orderId}/status", ordercontrollers.VendorUpdateStatus(deps.Orders, logg))
			r.Put("/orders/{orderId}/prescription", ordercontrollers.VendorReviewPrescription(deps.Orders, logg))
			r.Post("/orders/{orderId}/ready-for-pickup", ordercontrollers.VendorReadyForPickup(deps.Orders, logg))
			r.Post("/orders/{orderId}/confirm-pickup", ordercontrollers.VendorConfirmPickup(deps.Orders, logg))
			r.Post("/pharmacies", pharmacycontrollers.Register(deps.Pharmacies, logg))
			r.Get("/pharmacies", pharmacycontrollers.ListMine(deps.Pharmacies, logg))
			r.Put("/pharmacies/{pharmacyId}/inventory", pharmacycontrollers.UpsertInventory(deps.Pharmacies, logg))
			r.Get("/pharmacies/{pharmacyId}/dashboard", pharmacycontrollers.Dashboard(deps.Pharmacies, logg))
		})

		r.Route("/api/volunteer", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVolunteer))
			r.Post("/profile", volunteercontrollers.Register(deps.Volunteers, logg))
			r.Get("/profile", volunteercontrollers.Profile(deps.Volunteers, logg))
			r.Put("/location", volunteercontrollers.UpdateLocation(deps.Volunteers, logg))
			r.Put("/availability", volunteercontrollers.SetAvailability(deps.Volunteers, logg))
			r.Get("/orders/available", volunteercontrollers.AvailableOrders(deps.Matching, logg))
			r.Post("/orders/{orderId}/accept", volunteercontrollers.Accept(deps.Assignment, logg))
			r.Post("/orders/{orderId}/picked-up", volunteercontrollers.PickedUp(deps.Assignment, logg))
			r.Post("/orders/{orderId}/out-for-delivery", volunteercontrollers.OutForDelivery(deps.Assignment, logg))
			r.Post("/orders/{orderId}/delivered", volunteercontrollers.Delivered(deps.Assignment, logg))
			r.Get("/deliveries", volunteercontrollers.Deliveries(deps.Assignment, logg))
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Put("/pharmacies/{pharmacyId}/approval", admincontrollers.PharmacyApproval(deps.Pharmacies, logg))
			r.Put("/volunteers/{volunteerId}/approval", admincontrollers.VolunteerApproval(deps.Volunteers, logg))
		})
	})

	return r
}
