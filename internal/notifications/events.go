package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox/payloads"
)

// Actor builds the envelope actor for a user acting in role.
func Actor(userID uuid.UUID, role enums.ActorRole) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: role}
}

func orderEvent(eventType enums.OutboxEventType, order *models.Order, actor *outbox.ActorRef, data any) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data:          data,
	}
}

func OrderCreated(order *models.Order, actor *outbox.ActorRef) outbox.DomainEvent {
	return orderEvent(enums.EventOrderCreated, order, actor, payloads.OrderCreatedEvent{
		OrderID:           order.ID,
		CustomerID:        order.CustomerID,
		PharmacyID:        order.PharmacyID,
		VendorID:          order.VendorID,
		DeliveryType:      order.DeliveryType,
		TotalAmount:       order.TotalAmount.StringFixed(2),
		NeedsPrescription: order.NeedsPrescription,
	})
}

func OrderConfirmed(order *models.Order, actor *outbox.ActorRef) outbox.DomainEvent {
	return orderEvent(enums.EventOrderConfirmed, order, actor, payloads.OrderConfirmedEvent{
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		PharmacyID:      order.PharmacyID,
		VendorID:        order.VendorID,
		DeliveryType:    order.DeliveryType,
		ContactNumber:   order.ContactNumber,
		MedicineTotal:   order.MedicineTotal.StringFixed(2),
		DeliveryCharges: order.DeliveryCharges.StringFixed(2),
		TotalAmount:     order.TotalAmount.StringFixed(2),
	})
}

func OrderStatusChanged(order *models.Order, from enums.OrderStatus, progress int, actor *outbox.ActorRef) outbox.DomainEvent {
	return orderEvent(enums.EventOrderStatusChanged, order, actor, payloads.OrderStatusChangedEvent{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		VendorID:    order.VendorID,
		VolunteerID: order.VolunteerID,
		From:        from,
		To:          order.OrderStatus,
		Progress:    progress,
	})
}

func OrderReadyForPickup(order *models.Order, actor *outbox.ActorRef) outbox.DomainEvent {
	code := ""
	if order.PickupCode != nil {
		code = *order.PickupCode
	}
	return orderEvent(enums.EventOrderReadyForPickup, order, actor, payloads.OrderReadyForPickupEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		PharmacyID: order.PharmacyID,
		PickupCode: code,
	})
}

func OrderCancelled(order *models.Order, by enums.ActorRole, actor *outbox.ActorRef) outbox.DomainEvent {
	reason := ""
	if order.CancelReason != nil {
		reason = *order.CancelReason
	}
	cancelledAt := time.Now().UTC()
	if order.CancelledAt != nil {
		cancelledAt = *order.CancelledAt
	}
	return orderEvent(enums.EventOrderCancelled, order, actor, payloads.OrderCancelledEvent{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		VendorID:      order.VendorID,
		VolunteerID:   order.VolunteerID,
		CancelledBy:   by,
		Reason:        reason,
		PaymentStatus: order.PaymentStatus,
		CancelledAt:   cancelledAt,
	})
}

func PrescriptionReviewed(order *models.Order, actor *outbox.ActorRef) outbox.DomainEvent {
	status := enums.PrescriptionStatusPending
	if order.PrescriptionStatus != nil {
		status = *order.PrescriptionStatus
	}
	note := ""
	if order.PrescriptionNote != nil {
		note = *order.PrescriptionNote
	}
	return orderEvent(enums.EventPrescriptionReviewed, order, actor, payloads.PrescriptionReviewedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     status,
		Note:       note,
	})
}

// Payment builds one of the payment.* notices for order.
func Payment(eventType enums.OutboxEventType, order *models.Order, reason string, actor *outbox.ActorRef) outbox.DomainEvent {
	data := payloads.PaymentEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Amount:     order.TotalAmount.StringFixed(2),
		Reason:     reason,
	}
	if order.PaymentOrderRef != nil {
		data.PaymentOrderRef = *order.PaymentOrderRef
	}
	if order.PaymentRef != nil {
		data.PaymentRef = *order.PaymentRef
	}
	return orderEvent(eventType, order, actor, data)
}

// PharmacyReviewed notifies the owner of an admin approval decision.
func PharmacyReviewed(pharmacy *models.Pharmacy, reason string, actor *outbox.ActorRef) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventPharmacyReviewed,
		AggregateType: enums.AggregatePharmacy,
		AggregateID:   pharmacy.ID,
		Actor:         actor,
		Data: payloads.ApprovalReviewedEvent{
			SubjectID: pharmacy.ID,
			OwnerID:   pharmacy.OwnerID,
			Status:    pharmacy.ApprovalStatus,
			Reason:    reason,
		},
	}
}

// VolunteerReviewed notifies a courier of an admin approval decision.
func VolunteerReviewed(volunteer *models.Volunteer, actor *outbox.ActorRef) outbox.DomainEvent {
	reason := ""
	if volunteer.RejectionReason != nil {
		reason = *volunteer.RejectionReason
	}
	return outbox.DomainEvent{
		EventType:     enums.EventVolunteerReviewed,
		AggregateType: enums.AggregateVolunteer,
		AggregateID:   volunteer.ID,
		Actor:         actor,
		Data: payloads.ApprovalReviewedEvent{
			SubjectID: volunteer.ID,
			OwnerID:   volunteer.UserID,
			Status:    volunteer.ApprovalStatus,
			Reason:    reason,
		},
	}
}
