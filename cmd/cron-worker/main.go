package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/medidrop-backend/internal/cron"
	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/metrics"
	"github.com/angelmondragon/medidrop-backend/pkg/migrate"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
	"github.com/angelmondragon/medidrop-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
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
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind, lockEnv(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	notifier, err := notifications.NewNotifier(outbox.NewService(outboxRepo, logg), metrics.NewDomainMetrics(reg), logg)
	if err != nil {
		return err
	}

	jobs, err := buildJobs(cfg, logg, dbClient, outboxRepo, notifier)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"interval":    cfg.Cron.Interval.String(),
		"job_timeout": cfg.Cron.JobTimeout.String(),
		"jobs":        len(jobs),
	}), "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return metrics.Serve(groupCtx, cfg.App.MetricsAddr, reg, logg) })
	return group.Wait()
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, outboxRepo *outbox.Repository, notifier *notifications.Notifier) ([]cron.Job, error) {
	heldPayments, err := cron.NewHeldPaymentJob(cron.HeldPaymentJobParams{
		Logger:   logg,
		DB:       dbClient,
		Orders:   orders.NewRepository(dbClient.DB()),
		Outbox:   outboxRepo,
		Notifier: notifier,
		MaxAge:   cfg.Cron.HeldPaymentMaxAge,
	})
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Outbox:       outboxRepo,
		Retention:    cfg.Outbox.Retention,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		DLQ:          outbox.NewDLQRepository(dbClient.DB()),
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{heldPayments, retention}, nil
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
