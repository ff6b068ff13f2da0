package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCountsOutcomesAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveOutcome("order_created", "published")
	m.ObserveOutcome("order_created", "published")
	m.ObserveOutcome("order_created", "dead_letter_max_attempts")
	m.ObservePublish("order_created", 120*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterWithLabels(mfs, "outbox_events_total", map[string]string{"event_type": "order_created", "outcome": "published"})
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = fetchCounterWithLabels(mfs, "outbox_events_total", map[string]string{"event_type": "order_created", "outcome": "dead_letter_max_attempts"})
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "outbox_publish_seconds", "event_type", "order_created")
	require.NoError(t, err)
	require.InDelta(t, 0.12, sum, 1e-9)
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var nilMetrics *OutboxMetrics
	require.NotPanics(t, func() {
		nilMetrics.ObserveOutcome("x", "published")
		nilMetrics.ObservePublish("x", time.Second)
		NewOutboxMetrics(nil).ObserveOutcome("x", "retried")
	})
}

func TestServeWithoutAddressReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, Serve(ctx, "", prometheus.NewRegistry(), nil))
}
