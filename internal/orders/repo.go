package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentOrderRef(ctx context.Context, ref string) (*models.Order, error)
	PickupCodeInUse(ctx context.Context, pharmacyID uuid.UUID, code string) (bool, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, string, error)
	RemoveActiveAssignment(ctx context.Context, orderID uuid.UUID) error
	FindStaleHeld(ctx context.Context, heldBefore time.Time, limit int) ([]models.Order, error)
}

// ListFilter narrows an order listing to one owner and optionally one status.
type ListFilter struct {
	CustomerID  *uuid.UUID
	VendorID    *uuid.UUID
	VolunteerID *uuid.UUID
	Statuses    []enums.OrderStatus
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withLineItems(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentOrderRef(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.withLineItems(ctx).Where("payment_order_ref = ?", ref).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) withLineItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("LineItems", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (r *repository) PickupCodeInUse(ctx context.Context, pharmacyID uuid.UUID, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("pharmacy_id = ? AND delivery_type = ? AND pickup_code = ?", pharmacyID, enums.DeliveryTypePickup, code).
		Where("order_status NOT IN ?", []enums.OrderStatus{enums.OrderStatusCompleted, enums.OrderStatusCancelled}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateIfStatus applies updates only while the order is still in expected.
// It reports false when another writer moved the order first.
func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND order_status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, string, error) {
	query := r.withLineItems(ctx).Model(&models.Order{})
	switch {
	case filter.CustomerID != nil:
		query = query.Where("customer_id = ?", *filter.CustomerID)
	case filter.VendorID != nil:
		query = query.Where("vendor_id = ?", *filter.VendorID)
	case filter.VolunteerID != nil:
		query = query.Where("volunteer_id = ?", *filter.VolunteerID)
	default:
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "order listing requires an owner")
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("order_status IN ?", filter.Statuses)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	var rows []models.Order
	if err := query.Scopes(pagination.NewestFirst("placed_at", cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{SortAt: o.PlacedAt, ID: o.ID}
	})
	return page, next, nil
}

func (r *repository) RemoveActiveAssignment(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.VolunteerActiveOrder{}).Error
}

// FindStaleHeld lists orders whose captured payment has waited on a
// prescription review since before heldBefore.
func (r *repository) FindStaleHeld(ctx context.Context, heldBefore time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("order_status = ? AND payment_status = ?", enums.OrderStatusPending, enums.PaymentStatusPending).
		Where("payment_held_at IS NOT NULL AND payment_held_at < ?", heldBefore).
		Where("prescription_status = ?", enums.PrescriptionStatusPending).
		Order("payment_held_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// notFoundOr maps gorm's not-found error onto a domain not-found and wraps
// everything else as a dependency failure.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+strings.ToLower(what))
}

// MapLoadError converts an order lookup failure into a domain error.
func MapLoadError(err error) error {
	return notFoundOr(err, "Order")
}
