package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// OrderCreatedEvent tells the vendor a new order is waiting on payment.
type OrderCreatedEvent struct {
	OrderID           uuid.UUID          `json:"order_id"`
	CustomerID        uuid.UUID          `json:"customer_id"`
	PharmacyID        uuid.UUID          `json:"pharmacy_id"`
	VendorID          uuid.UUID          `json:"vendor_id"`
	DeliveryType      enums.DeliveryType `json:"delivery_type"`
	TotalAmount       string             `json:"total_amount"`
	NeedsPrescription bool               `json:"needs_prescription"`
}

// OrderConfirmedEvent is emitted once payment completes and stock is reserved.
type OrderConfirmedEvent struct {
	OrderID         uuid.UUID          `json:"order_id"`
	CustomerID      uuid.UUID          `json:"customer_id"`
	PharmacyID      uuid.UUID          `json:"pharmacy_id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	DeliveryType    enums.DeliveryType `json:"delivery_type"`
	ContactNumber   string             `json:"contact_number"`
	MedicineTotal   string             `json:"medicine_total"`
	DeliveryCharges string             `json:"delivery_charges"`
	TotalAmount     string             `json:"total_amount"`
}

// OrderStatusChangedEvent reports any courier or vendor driven status move.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	CustomerID  uuid.UUID         `json:"customer_id"`
	VendorID    uuid.UUID         `json:"vendor_id"`
	VolunteerID *uuid.UUID        `json:"volunteer_id,omitempty"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Progress    int               `json:"progress"`
}

// OrderReadyForPickupEvent carries the code the customer presents at the counter.
type OrderReadyForPickupEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	PharmacyID uuid.UUID `json:"pharmacy_id"`
	PickupCode string    `json:"pickup_code"`
}

// OrderCancelledEvent is emitted whenever an order reaches cancelled.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	VendorID      uuid.UUID           `json:"vendor_id"`
	VolunteerID   *uuid.UUID          `json:"volunteer_id,omitempty"`
	CancelledBy   enums.ActorRole     `json:"cancelled_by"`
	Reason        string              `json:"reason,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	CancelledAt   time.Time           `json:"cancelled_at"`
}

// PrescriptionReviewedEvent tells the customer how the vendor ruled.
type PrescriptionReviewedEvent struct {
	OrderID    uuid.UUID                `json:"order_id"`
	CustomerID uuid.UUID                `json:"customer_id"`
	Status     enums.PrescriptionStatus `json:"status"`
	Note       string                   `json:"note,omitempty"`
}

// PaymentEvent covers held, failed and refund-required payment notices.
type PaymentEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	PaymentOrderRef string    `json:"payment_order_ref"`
	PaymentRef      string    `json:"payment_ref,omitempty"`
	Amount          string    `json:"amount"`
	Reason          string    `json:"reason,omitempty"`
}

// ApprovalReviewedEvent tells a vendor or volunteer how an admin ruled on
// their pharmacy or courier profile.
type ApprovalReviewedEvent struct {
	SubjectID uuid.UUID            `json:"subject_id"`
	OwnerID   uuid.UUID            `json:"owner_id"`
	Status    enums.ApprovalStatus `json:"status"`
	Reason    string               `json:"reason,omitempty"`
}
