package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

type fakeOutboxPurger struct {
	cutoff   time.Time
	attempts int
	calls    int
	err      error
}

func (f *fakeOutboxPurger) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.attempts = minAttemptCount
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func newRetentionJob(t *testing.T, purger *fakeOutboxPurger, retention time.Duration, attempts int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		DB:          passthroughTx{},
		Outbox:      purger,
		Retention:   retention,
		MaxAttempts: attempts,
	})
	require.NoError(t, err)
	typed, ok := job.(*outboxRetentionJob)
	require.True(t, ok)
	return typed
}

func TestOutboxRetentionUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	purger := &fakeOutboxPurger{}
	job := newRetentionJob(t, purger, 72*time.Hour, 4)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, purger.calls)
	require.True(t, purger.cutoff.Equal(now.Add(-72*time.Hour)))
	require.Equal(t, 4, purger.attempts)
}

func TestOutboxRetentionDefaults(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	purger := &fakeOutboxPurger{}
	job := newRetentionJob(t, purger, 0, 0)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.True(t, purger.cutoff.Equal(now.Add(-defaultOutboxRetention)))
	require.Equal(t, defaultOutboxAttempts, purger.attempts)

	periodic, ok := Job(job).(Periodic)
	require.True(t, ok)
	require.Equal(t, 24*time.Hour, periodic.Every())
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	job := newRetentionJob(t, &fakeOutboxPurger{err: errors.New("boom")}, time.Hour, 1)

	err := job.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "purge notification outbox")
}

func TestOutboxRetentionRequiresRepository(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		DB:     passthroughTx{},
	})
	require.Error(t, err)
}

type fakeDLQPurger struct {
	cutoff time.Time
	err    error
}

func (f *fakeDLQPurger) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, f.err
}

func TestOutboxRetentionPurgesDeadLetters(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	dlq := &fakeDLQPurger{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		DB:     passthroughTx{},
		Outbox: &fakeOutboxPurger{},
		DLQ:    dlq,
	})
	require.NoError(t, err)
	typed := job.(*outboxRetentionJob)
	typed.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.True(t, dlq.cutoff.Equal(now.Add(-defaultDLQRetention)))

	dlq.err = errors.New("locked")
	err = job.Run(context.Background())
	require.ErrorContains(t, err, "purge notification dead letters")
}
