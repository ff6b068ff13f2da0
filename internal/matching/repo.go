package matching

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// StockedPharmacy is one approved pharmacy holding a matching medicine in stock.
// Stock itself is filtered in SQL and never selected.
type StockedPharmacy struct {
	PharmacyID    uuid.UUID
	Name          string
	Address       string
	ContactNumber string
	Latitude      float64
	Longitude     float64
	MedicineName  string
	SellingPrice  decimal.Decimal
}

// OpenOrder is a confirmed, paid, unassigned delivery order with the
// coordinates of its pharmacy.
type OpenOrder struct {
	ID                uuid.UUID
	PharmacyID        uuid.UUID
	PharmacyName      string
	PharmacyAddress   string
	PharmacyLatitude  float64
	PharmacyLongitude float64
	DeliveryAddress   *string
	DeliveryLatitude  float64
	DeliveryLongitude float64
	ContactNumber     string
	MedicineTotal     decimal.Decimal
	PlacedAt          time.Time
}

// Repository runs the read-only matching queries.
type Repository interface {
	StockedPharmacies(ctx context.Context, term string) ([]StockedPharmacy, error)
	OpenDeliveryOrders(ctx context.Context) ([]OpenOrder, error)
	LineItemsFor(ctx context.Context, orderIDs []uuid.UUID) ([]models.OrderLineItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the matching queries to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *repository) StockedPharmacies(ctx context.Context, term string) ([]StockedPharmacy, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
	var rows []StockedPharmacy
	err := r.db.WithContext(ctx).
		Table("pharmacies AS p").
		Select(`p.id AS pharmacy_id, p.name, p.address, p.contact_number, p.latitude, p.longitude,
			i.medicine_name, i.selling_price`).
		Joins("JOIN inventory_items AS i ON i.pharmacy_id = p.id").
		Where("p.approval_status = ?", enums.ApprovalStatusApproved).
		Where(`LOWER(i.medicine_name) LIKE ? ESCAPE '\'`, pattern).
		Where("i.stock > 0").
		Order("p.id").
		Order("i.medicine_name").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) OpenDeliveryOrders(ctx context.Context) ([]OpenOrder, error) {
	var rows []OpenOrder
	err := r.db.WithContext(ctx).
		Table("orders AS o").
		Select(`o.id, o.pharmacy_id, p.name AS pharmacy_name, p.address AS pharmacy_address,
			p.latitude AS pharmacy_latitude, p.longitude AS pharmacy_longitude,
			o.delivery_address, o.delivery_latitude, o.delivery_longitude,
			o.contact_number, o.medicine_total, o.placed_at`).
		Joins("JOIN pharmacies AS p ON p.id = o.pharmacy_id").
		Where("o.order_status = ?", enums.OrderStatusConfirmed).
		Where("o.payment_status = ?", enums.PaymentStatusCompleted).
		Where("o.volunteer_id IS NULL").
		Where("o.delivery_type = ?", enums.DeliveryTypeDelivery).
		Where("o.delivery_latitude IS NOT NULL AND o.delivery_longitude IS NOT NULL").
		Order("o.placed_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) LineItemsFor(ctx context.Context, orderIDs []uuid.UUID) ([]models.OrderLineItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var items []models.OrderLineItem
	err := r.db.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Order("order_id").
		Order("position ASC").
		Find(&items).Error
	return items, err
}
