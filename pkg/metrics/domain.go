package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics records order lifecycle outcomes. A nil receiver or a
// metrics value built without a registerer is a no-op.
type DomainMetrics struct {
	transitions      *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	assignments      *prometheus.CounterVec
	notifyFailures   *prometheus.CounterVec
	processorLatency *prometheus.HistogramVec
}

// NewDomainMetrics registers the order, payment and assignment series.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions by source and target status.",
	}, []string{"from", "to"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment verification attempts by result.",
	}, []string{"result"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "volunteer_assignments_total",
		Help: "Volunteer accept attempts by result.",
	}, []string{"result"})
	notifyFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Notifications that could not be queued.",
	}, []string{"event_type"})
	processorLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_processor_request_seconds",
		Help:    "Latency of payment processor order creation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "result"})
	reg.MustRegister(transitions, verifications, assignments, notifyFailures, processorLatency)
	return &DomainMetrics{
		transitions:      transitions,
		verifications:    verifications,
		assignments:      assignments,
		notifyFailures:   notifyFailures,
		processorLatency: processorLatency,
	}
}

// IncTransition counts one order status move.
func (m *DomainMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncVerification counts a payment verification outcome.
func (m *DomainMetrics) IncVerification(result string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncAssignment counts a volunteer accept outcome.
func (m *DomainMetrics) IncAssignment(result string) {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncNotificationFailure counts a notification that was dropped.
func (m *DomainMetrics) IncNotificationFailure(eventType string) {
	if m == nil || m.notifyFailures == nil {
		return
	}
	m.notifyFailures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// ObserveProcessor records a processor round trip.
func (m *DomainMetrics) ObserveProcessor(provider, result string, duration time.Duration) {
	if m == nil || m.processorLatency == nil {
		return
	}
	m.processorLatency.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Observe(duration.Seconds())
}
