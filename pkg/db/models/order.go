package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// Order is the customer order aggregate. TotalAmount is always
// MedicineTotal + DeliveryCharges and is only written from a geo.Quote.
type Order struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID  uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	PharmacyID  uuid.UUID  `gorm:"column:pharmacy_id;type:uuid;not null;index"`
	VendorID    uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null;index"`
	VolunteerID *uuid.UUID `gorm:"column:volunteer_id;type:uuid;index"`

	DeliveryType       enums.DeliveryType `gorm:"column:delivery_type;type:text;not null"`
	DeliveryAddress    *string            `gorm:"column:delivery_address"`
	DeliveryLatitude   *float64           `gorm:"column:delivery_latitude"`
	DeliveryLongitude  *float64           `gorm:"column:delivery_longitude"`
	DeliveryDistanceKm float64            `gorm:"column:delivery_distance_km;not null;default:0"`
	ContactNumber      string             `gorm:"column:contact_number;not null"`
	PickupCode         *string            `gorm:"column:pickup_code"`

	MedicineTotal   decimal.Decimal `gorm:"column:medicine_total;type:numeric(12,2);not null"`
	DeliveryCharges decimal.Decimal `gorm:"column:delivery_charges;type:numeric(12,2);not null;default:0"`
	TotalAmount     decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`

	NeedsPrescription    bool                      `gorm:"column:needs_prescription;not null;default:false"`
	PrescriptionImageRef *string                   `gorm:"column:prescription_image_ref"`
	PrescriptionStatus   *enums.PrescriptionStatus `gorm:"column:prescription_status;type:text"`
	PrescriptionNote     *string                   `gorm:"column:prescription_note"`

	OrderStatus       enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentOrderRef   *string             `gorm:"column:payment_order_ref;uniqueIndex"`
	PaymentRef        *string             `gorm:"column:payment_ref"`
	PaymentSignature  *string             `gorm:"column:payment_signature"`
	PaymentHeldAt     *time.Time          `gorm:"column:payment_held_at"`
	InventoryReserved bool                `gorm:"column:inventory_reserved;not null;default:false"`

	PlacedAt             time.Time  `gorm:"column:placed_at;not null"`
	ConfirmedAt          *time.Time `gorm:"column:confirmed_at"`
	AssignedAt           *time.Time `gorm:"column:assigned_at"`
	PickedUpAt           *time.Time `gorm:"column:picked_up_at"`
	OutForDeliveryAt     *time.Time `gorm:"column:out_for_delivery_at"`
	DeliveredAt          *time.Time `gorm:"column:delivered_at"`
	ReadyForPickupAt     *time.Time `gorm:"column:ready_for_pickup_at"`
	PickedUpByCustomerAt *time.Time `gorm:"column:picked_up_by_customer_at"`
	CancelledAt          *time.Time `gorm:"column:cancelled_at"`
	CancelReason         *string    `gorm:"column:cancel_reason"`

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	if o.PlacedAt.IsZero() {
		o.PlacedAt = time.Now().UTC()
	}
	return nil
}
