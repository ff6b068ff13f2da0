package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultOutboxAttempts  = 10
	defaultDLQRetention    = 90 * 24 * time.Hour
	outboxPurgeEvery       = 24 * time.Hour
)

// OutboxRetentionJobParams configure notification outbox cleanup.
type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPurger
	// Retention is how long delivered notifications are kept.
	Retention time.Duration
	// MaxAttempts matches the publisher limit; undelivered rows at or past it
	// already live in the dead-letter table.
	MaxAttempts int
	// DLQ and DLQRetention are optional; dead letters are kept when DLQ is nil.
	DLQ          dlqPurger
	DLQRetention time.Duration
}

type dlqPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// NewOutboxRetentionJob purges delivered or dead-lettered notification rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultOutboxAttempts
	}
	dlqRetention := params.DLQRetention
	if dlqRetention <= 0 {
		dlqRetention = defaultDLQRetention
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		outbox:       params.Outbox,
		dlq:          params.DLQ,
		retention:    retention,
		dlqRetention: dlqRetention,
		maxAttempts:  attempts,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	outbox       outboxPurger
	dlq          dlqPurger
	retention    time.Duration
	dlqRetention time.Duration
	maxAttempts  int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "notification-outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return outboxPurgeEvery }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now()
	cutoff := now.Add(-j.retention)
	var purged, deadPurged int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.maxAttempts)
		if err != nil {
			return fmt.Errorf("purge notification outbox: %w", err)
		}
		purged = rows
		if j.dlq == nil {
			return nil
		}
		rows, err = j.dlq.DeleteFailedBefore(ctx, tx, now.Add(-j.dlqRetention))
		if err != nil {
			return fmt.Errorf("purge notification dead letters: %w", err)
		}
		deadPurged = rows
		return nil
	})
	if err != nil {
		return err
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"max_attempts":     j.maxAttempts,
		"rows_purged":      purged,
		"dead_rows_purged": deadPurged,
	})
	j.logg.Info(logCtx, "cron.outbox_retention.complete")
	return nil
}
