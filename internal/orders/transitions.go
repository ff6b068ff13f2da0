package orders

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

// Event is something that happened to an order and may move its status.
type Event string

const (
	EventPaymentVerified      Event = "payment_verified"
	EventPrescriptionApproved Event = "prescription_approved"
	EventVolunteerAccepted    Event = "volunteer_accepted"
	EventCourierPickedUp      Event = "courier_picked_up"
	EventCourierDispatched    Event = "courier_dispatched"
	EventCourierDelivered     Event = "courier_delivered"
	EventVendorReady          Event = "vendor_ready"
	EventPickupConfirmed      Event = "pickup_confirmed"
	EventCancel               Event = "cancel"
)

// Actor is the authenticated caller driving a transition.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// SystemActor is used for transitions triggered by processor callbacks and jobs.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

type transitionKey struct {
	from  enums.OrderStatus
	event Event
}

type transitionRule struct {
	to           enums.OrderStatus
	deliveryType enums.DeliveryType
	roles        []enums.ActorRole
}

var (
	courierRoles = []enums.ActorRole{enums.ActorRoleVolunteer}
	vendorRoles  = []enums.ActorRole{enums.ActorRoleVendor}
	paymentRoles = []enums.ActorRole{enums.ActorRoleCustomer, enums.ActorRoleSystem}
	cancelRoles  = []enums.ActorRole{enums.ActorRoleCustomer, enums.ActorRoleVendor, enums.ActorRoleAdmin, enums.ActorRoleSystem}
)

var transitions = buildTransitions()

func buildTransitions() map[transitionKey]transitionRule {
	table := map[transitionKey]transitionRule{
		{enums.OrderStatusPending, EventPaymentVerified}:      {to: enums.OrderStatusConfirmed, roles: paymentRoles},
		{enums.OrderStatusPending, EventPrescriptionApproved}: {to: enums.OrderStatusConfirmed, roles: vendorRoles},

		{enums.OrderStatusConfirmed, EventVolunteerAccepted}:     {to: enums.OrderStatusAssigned, deliveryType: enums.DeliveryTypeDelivery, roles: courierRoles},
		{enums.OrderStatusAssigned, EventCourierPickedUp}:        {to: enums.OrderStatusPickedUp, deliveryType: enums.DeliveryTypeDelivery, roles: courierRoles},
		{enums.OrderStatusPickedUp, EventCourierDispatched}:      {to: enums.OrderStatusOutForDelivery, deliveryType: enums.DeliveryTypeDelivery, roles: courierRoles},
		{enums.OrderStatusOutForDelivery, EventCourierDelivered}: {to: enums.OrderStatusDelivered, deliveryType: enums.DeliveryTypeDelivery, roles: courierRoles},

		{enums.OrderStatusConfirmed, EventVendorReady}:          {to: enums.OrderStatusReadyForPickup, deliveryType: enums.DeliveryTypePickup, roles: vendorRoles},
		{enums.OrderStatusReadyForPickup, EventPickupConfirmed}: {to: enums.OrderStatusCompleted, deliveryType: enums.DeliveryTypePickup, roles: vendorRoles},
	}
	for _, status := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusConfirmed,
		enums.OrderStatusAssigned,
		enums.OrderStatusPickedUp,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusReadyForPickup,
	} {
		table[transitionKey{status, EventCancel}] = transitionRule{to: enums.OrderStatusCancelled, roles: cancelRoles}
	}
	return table
}

// Transition returns the status order moves to when event happens, or a
// state conflict when the combination is not allowed. It does not mutate order.
func Transition(order *models.Order, event Event, actor Actor) (enums.OrderStatus, error) {
	if order == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	from := order.OrderStatus
	if from.IsTerminal() {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is already %s", from)).
			WithDetails(map[string]any{"status": from, "event": event})
	}
	rule, ok := transitions[transitionKey{from, event}]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot apply %s to a %s order", event, from)).
			WithDetails(map[string]any{"status": from, "event": event})
	}
	if rule.deliveryType != "" && rule.deliveryType != order.DeliveryType {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s is not allowed for %s orders", event, order.DeliveryType))
	}
	if !roleAllowed(rule.roles, actor.Role) {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s cannot perform %s", actor.Role, event))
	}
	return rule.to, nil
}

func roleAllowed(roles []enums.ActorRole, role enums.ActorRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

var deliveryProgress = map[enums.OrderStatus]int{
	enums.OrderStatusPending:        10,
	enums.OrderStatusConfirmed:      25,
	enums.OrderStatusAssigned:       40,
	enums.OrderStatusPickedUp:       60,
	enums.OrderStatusOutForDelivery: 80,
	enums.OrderStatusDelivered:      100,
}

var pickupProgress = map[enums.OrderStatus]int{
	enums.OrderStatusPending:        10,
	enums.OrderStatusConfirmed:      33,
	enums.OrderStatusReadyForPickup: 66,
	enums.OrderStatusCompleted:      100,
}

// ProgressPercent maps a status onto the tracking bar shown to customers.
func ProgressPercent(status enums.OrderStatus, deliveryType enums.DeliveryType) int {
	table := deliveryProgress
	if deliveryType == enums.DeliveryTypePickup {
		table = pickupProgress
	}
	return table[status]
}

// TimelineEntry is one reached status and when it was reached.
type TimelineEntry struct {
	Status enums.OrderStatus `json:"status"`
	At     time.Time         `json:"at"`
}

// Timeline lists the statuses the order has passed through, oldest first.
func Timeline(order *models.Order) []TimelineEntry {
	if order == nil {
		return nil
	}
	entries := []TimelineEntry{{Status: enums.OrderStatusPending, At: order.PlacedAt}}
	add := func(status enums.OrderStatus, at *time.Time) {
		if at != nil {
			entries = append(entries, TimelineEntry{Status: status, At: *at})
		}
	}
	add(enums.OrderStatusConfirmed, order.ConfirmedAt)
	add(enums.OrderStatusAssigned, order.AssignedAt)
	add(enums.OrderStatusPickedUp, order.PickedUpAt)
	add(enums.OrderStatusOutForDelivery, order.OutForDeliveryAt)
	add(enums.OrderStatusDelivered, order.DeliveredAt)
	add(enums.OrderStatusReadyForPickup, order.ReadyForPickupAt)
	add(enums.OrderStatusCompleted, order.PickedUpByCustomerAt)
	add(enums.OrderStatusCancelled, order.CancelledAt)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries
}
