package enums

import "slices"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregatePharmacy  OutboxAggregateType = "pharmacy"
	AggregateVolunteer OutboxAggregateType = "volunteer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePharmacy,
	AggregateVolunteer,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return member(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", validAggregateTypes, value)
}

// OutboxEventType names a notification-worthy domain event.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order.created"
	EventOrderConfirmed        OutboxEventType = "order.confirmed"
	EventOrderStatusChanged    OutboxEventType = "order.status_changed"
	EventOrderReadyForPickup   OutboxEventType = "order.ready_for_pickup"
	EventOrderCancelled        OutboxEventType = "order.cancelled"
	EventPrescriptionReviewed  OutboxEventType = "prescription.reviewed"
	EventPaymentHeld           OutboxEventType = "payment.held"
	EventPaymentRefundRequired OutboxEventType = "payment.refund_required"
	EventPaymentFailed         OutboxEventType = "payment.failed"
	EventPaymentHoldStale      OutboxEventType = "payment.hold_stale"
	EventPharmacyReviewed      OutboxEventType = "pharmacy.reviewed"
	EventVolunteerReviewed     OutboxEventType = "volunteer.reviewed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderConfirmed,
	EventOrderStatusChanged,
	EventOrderReadyForPickup,
	EventOrderCancelled,
	EventPrescriptionReviewed,
	EventPaymentHeld,
	EventPaymentRefundRequired,
	EventPaymentFailed,
	EventPaymentHoldStale,
	EventPharmacyReviewed,
	EventVolunteerReviewed,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	return member(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", validOutboxEventTypes, value)
}

// OutboxEventTypes lists every known event type.
func OutboxEventTypes() []OutboxEventType {
	return slices.Clone(validOutboxEventTypes)
}
