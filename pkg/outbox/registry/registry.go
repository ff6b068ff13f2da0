// Package registry maps outbox event types to their Pub/Sub topic and payload
// schema, and decodes stored rows before they are published.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox/payloads"
)

// EventDescriptor is the routing entry for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry resolves rows against the fixed set of descriptors.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish, so the publisher
// dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func describe[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     event,
		AggregateType: aggregate,
		Topic:         topic,
		newPayload:    func() any { return new(T) },
	}
}

// NewEventRegistry routes order lifecycle events to the orders topic and
// everything a person should be told about to the notification topic. Every
// known event type must have a route.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing []error
	if cfg.OrdersTopic == "" {
		missing = append(missing, errors.New("orders topic is required"))
	}
	if cfg.NotificationTopic == "" {
		missing = append(missing, errors.New("notification topic is required"))
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}
	orders, notices := cfg.OrdersTopic, cfg.NotificationTopic

	descriptors := []EventDescriptor{
		describe[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, orders),
		describe[payloads.OrderConfirmedEvent](enums.EventOrderConfirmed, enums.AggregateOrder, orders),
		describe[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, orders),
		describe[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder, orders),

		describe[payloads.OrderReadyForPickupEvent](enums.EventOrderReadyForPickup, enums.AggregateOrder, notices),
		describe[payloads.PrescriptionReviewedEvent](enums.EventPrescriptionReviewed, enums.AggregateOrder, notices),
		describe[payloads.PaymentEvent](enums.EventPaymentHeld, enums.AggregateOrder, notices),
		describe[payloads.PaymentEvent](enums.EventPaymentRefundRequired, enums.AggregateOrder, notices),
		describe[payloads.PaymentEvent](enums.EventPaymentFailed, enums.AggregateOrder, notices),
		describe[payloads.PaymentEvent](enums.EventPaymentHoldStale, enums.AggregateOrder, notices),
		describe[payloads.ApprovalReviewedEvent](enums.EventPharmacyReviewed, enums.AggregatePharmacy, notices),
		describe[payloads.ApprovalReviewedEvent](enums.EventVolunteerReviewed, enums.AggregateVolunteer, notices),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	for _, eventType := range enums.OutboxEventTypes() {
		if _, ok := reg.entries[eventType]; !ok {
			return nil, fmt.Errorf("no route for event type %s", eventType)
		}
	}
	return reg, nil
}

// Describe returns the route for eventType.
func (r *EventRegistry) Describe(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its route and decodes the typed payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: %s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, err
	}
	if !envelope.HasData() {
		return nil, fmt.Errorf("payload missing for %s", event.EventType)
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
