package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/medidrop-backend/api/routes"
	"github.com/angelmondragon/medidrop-backend/internal/assignment"
	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	"github.com/angelmondragon/medidrop-backend/internal/locations"
	"github.com/angelmondragon/medidrop-backend/internal/matching"
	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/internal/payments"
	"github.com/angelmondragon/medidrop-backend/internal/pharmacies"
	"github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/auth/session"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db"
	"github.com/angelmondragon/medidrop-backend/pkg/env"
	"github.com/angelmondragon/medidrop-backend/pkg/idempotency"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/maps"
	"github.com/angelmondragon/medidrop-backend/pkg/metrics"
	"github.com/angelmondragon/medidrop-backend/pkg/migrate"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
	"github.com/angelmondragon/medidrop-backend/pkg/redis"
	"github.com/angelmondragon/medidrop-backend/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	domainMetrics := metrics.NewDomainMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	gormDB := dbClient.DB()

	ledger, err := inventory.NewLedger(gormDB, logg)
	if err != nil {
		return err
	}

	notifier, err := notifications.NewNotifier(outbox.NewService(outbox.NewRepository(gormDB), logg), domainMetrics, logg)
	if err != nil {
		return err
	}

	ordersRepo := orders.NewRepository(gormDB)
	confirmer, err := orders.NewConfirmer(ordersRepo, ledger, notifier, domainMetrics)
	if err != nil {
		return err
	}

	processor, err := payments.NewProcessor(ctx, cfg.Payments, logg)
	if err != nil {
		return err
	}
	dedupe, err := idempotency.NewManager(redisClient, cfg.Payments.CallbackDedupeTTL)
	if err != nil {
		return err
	}
	coordinator, err := payments.NewCoordinator(payments.Deps{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Confirmer: confirmer,
		Processor: processor,
		Dedupe:    dedupe,
		Notifier:  notifier,
		Metrics:   domainMetrics,
		Logger:    logg,
		Settings:  payments.SettingsFromConfig(cfg.Payments, cfg.Orders),
	})
	if err != nil {
		return err
	}

	storage, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs client", err)
		}
	}()

	ordersService, err := orders.NewService(orders.Deps{
		Repo:         ordersRepo,
		Tx:           dbClient,
		Stock:        ledger,
		Confirmer:    confirmer,
		Payments:     coordinator,
		Prescription: storage,
		Notifier:     notifier,
		Metrics:      domainMetrics,
		Logger:       logg,
		Settings:     orders.SettingsFromConfig(cfg.Orders, cfg.GCS),
	})
	if err != nil {
		return err
	}

	volunteersRepo := volunteers.NewRepository(gormDB)
	matchingService, err := matching.NewService(matching.NewRepository(gormDB), volunteersRepo, cfg.Search, logg)
	if err != nil {
		return err
	}

	locationsService := newLocationsService(ctx, cfg.GoogleMaps, logg)

	assignmentService, err := assignment.NewService(assignment.Deps{
		Repo:       assignment.NewRepository(gormDB),
		Orders:     ordersRepo,
		Volunteers: volunteersRepo,
		Tx:         dbClient,
		Notifier:   notifier,
		Metrics:    domainMetrics,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	volunteersService, err := volunteers.NewService(volunteersRepo, dbClient, notifier, logg)
	if err != nil {
		return err
	}

	pharmaciesService, err := pharmacies.NewService(pharmacies.NewRepository(gormDB), ledger, dbClient, notifier, logg)
	if err != nil {
		return err
	}

	sessionManager, err := session.NewManager(redisClient)
	if err != nil {
		return err
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Store:       redisClient,
			Sessions:    sessionManager,
			Orders:      ordersService,
			Payments:    coordinator,
			Matching:    matchingService,
			Locations:   locationsService,
			Assignment:  assignmentService,
			Volunteers:  volunteersService,
			Pharmacies:  pharmaciesService,
			Gatherer:    registry,
			HTTPMetrics: httpMetrics,
		}),
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":               cfg.App.Env,
		"addr":              addr,
		"payment_provider":  processor.Name(),
		"prescription_gate": cfg.Orders.PrescriptionGate,
	})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newLocationsService wires geocoding when a maps key is configured. Without
// one, lookups answer as an unavailable dependency.
func newLocationsService(ctx context.Context, cfg config.GoogleMapsConfig, logg *logger.Logger) locations.Service {
	settings := locations.Settings{RegionCode: cfg.RegionCode, LanguageCode: cfg.LanguageCode, Limit: cfg.ResultLimit}
	client, err := maps.NewClient(cfg.APIKey, maps.WithBaseURL(cfg.BaseURL), maps.WithTimeout(cfg.Timeout))
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "geocoding disabled")
		return locations.NewService(nil, settings, logg)
	}
	return locations.NewService(client, settings, logg)
}
