package orders

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
)

// PrescriptionFile is an uploaded prescription image or PDF.
type PrescriptionFile struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// PlaceOrderInput carries a validated customer checkout request.
type PlaceOrderInput struct {
	CustomerID      uuid.UUID
	PharmacyID      uuid.UUID
	Medicines       []inventory.RequestedLine
	DeliveryType    enums.DeliveryType
	DeliveryAddress string
	Destination     *geo.Coordinate
	ContactNumber   string
	Prescription    *PrescriptionFile
}

// PaymentIntent is what the client needs to open the processor checkout.
type PaymentIntent struct {
	Provider    string          `json:"provider"`
	KeyID       string          `json:"key_id,omitempty"`
	OrderRef    string          `json:"order_ref"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
}

// PlaceOrderResult is returned after the order row exists. Payment is nil
// when the prescription gate holds payment until vendor approval.
type PlaceOrderResult struct {
	Order          OrderView      `json:"order"`
	Payment        *PaymentIntent `json:"payment,omitempty"`
	PaymentBlocked bool           `json:"payment_blocked"`
}

// LineItemView is the public shape of an order line.
type LineItemView struct {
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// OrderView is the order as returned to customers, vendors and volunteers.
type OrderView struct {
	ID                   uuid.UUID                 `json:"id"`
	CustomerID           uuid.UUID                 `json:"customer_id"`
	PharmacyID           uuid.UUID                 `json:"pharmacy_id"`
	VolunteerID          *uuid.UUID                `json:"volunteer_id,omitempty"`
	DeliveryType         enums.DeliveryType        `json:"delivery_type"`
	DeliveryAddress      *string                   `json:"delivery_address,omitempty"`
	DeliveryLocation     *geo.Coordinate           `json:"delivery_location,omitempty"`
	DeliveryDistanceKm   float64                   `json:"delivery_distance_km"`
	ContactNumber        string                    `json:"contact_number"`
	PickupCode           *string                   `json:"pickup_code,omitempty"`
	MedicineTotal        decimal.Decimal           `json:"medicine_total"`
	DeliveryCharges      decimal.Decimal           `json:"delivery_charges"`
	TotalAmount          decimal.Decimal           `json:"total_amount"`
	NeedsPrescription    bool                      `json:"needs_prescription"`
	PrescriptionStatus   *enums.PrescriptionStatus `json:"prescription_status,omitempty"`
	PrescriptionImageRef *string                   `json:"prescription_image_ref,omitempty"`
	PrescriptionNote     *string                   `json:"prescription_note,omitempty"`
	OrderStatus          enums.OrderStatus         `json:"order_status"`
	PaymentStatus        enums.PaymentStatus       `json:"payment_status"`
	Progress             int                       `json:"progress"`
	PlacedAt             time.Time                 `json:"placed_at"`
	Items                []LineItemView            `json:"items"`
}

// viewer controls which sensitive fields an order view exposes.
type viewer int

const (
	viewerCustomer viewer = iota
	viewerVendor
	viewerVolunteer
)

// NewOrderView renders order for the customer who owns it.
func NewOrderView(order *models.Order) OrderView {
	return newOrderView(order, viewerCustomer)
}

// NewVendorOrderView renders order for the pharmacy owner. The pickup code
// is withheld so it can only be presented by the customer.
func NewVendorOrderView(order *models.Order) OrderView {
	return newOrderView(order, viewerVendor)
}

// NewVolunteerOrderView renders order for the assigned courier.
func NewVolunteerOrderView(order *models.Order) OrderView {
	return newOrderView(order, viewerVolunteer)
}

func newOrderView(order *models.Order, who viewer) OrderView {
	view := OrderView{
		ID:                 order.ID,
		CustomerID:         order.CustomerID,
		PharmacyID:         order.PharmacyID,
		VolunteerID:        order.VolunteerID,
		DeliveryType:       order.DeliveryType,
		DeliveryAddress:    order.DeliveryAddress,
		DeliveryDistanceKm: geo.RoundKm(order.DeliveryDistanceKm),
		ContactNumber:      order.ContactNumber,
		MedicineTotal:      order.MedicineTotal,
		DeliveryCharges:    order.DeliveryCharges,
		TotalAmount:        order.TotalAmount,
		NeedsPrescription:  order.NeedsPrescription,
		PrescriptionStatus: order.PrescriptionStatus,
		PrescriptionNote:   order.PrescriptionNote,
		OrderStatus:        order.OrderStatus,
		PaymentStatus:      order.PaymentStatus,
		Progress:           ProgressPercent(order.OrderStatus, order.DeliveryType),
		PlacedAt:           order.PlacedAt,
		Items:              make([]LineItemView, 0, len(order.LineItems)),
	}
	if order.DeliveryLatitude != nil && order.DeliveryLongitude != nil {
		view.DeliveryLocation = &geo.Coordinate{Latitude: *order.DeliveryLatitude, Longitude: *order.DeliveryLongitude}
	}
	switch who {
	case viewerCustomer:
		view.PickupCode = order.PickupCode
		view.PrescriptionImageRef = order.PrescriptionImageRef
	case viewerVendor:
		view.PrescriptionImageRef = order.PrescriptionImageRef
	}
	for _, item := range order.LineItems {
		view.Items = append(view.Items, LineItemView{
			MedicineName: item.MedicineName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
		})
	}
	return view
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// Tracking is the customer tracking payload.
type Tracking struct {
	Order    OrderView       `json:"order"`
	Progress int             `json:"progress"`
	Timeline []TimelineEntry `json:"timeline"`
}
