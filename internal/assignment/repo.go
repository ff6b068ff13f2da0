package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
)

// Repository holds the conditional writes that make assignment exclusive.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPharmacy(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error)
	Assign(ctx context.Context, orderID, volunteerUserID uuid.UUID, pricing geo.Pricing, at time.Time) (bool, error)
	Advance(ctx context.Context, orderID, volunteerUserID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds assignment writes to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPharmacy(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	var pharmacy models.Pharmacy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pharmacy).Error; err != nil {
		return nil, err
	}
	return &pharmacy, nil
}

// Assign claims an unassigned confirmed delivery order. It reports false when
// another volunteer won the race or the order left the confirmed state.
func (r *repository) Assign(ctx context.Context, orderID, volunteerUserID uuid.UUID, pricing geo.Pricing, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND volunteer_id IS NULL AND order_status = ? AND delivery_type = ?",
			orderID, enums.OrderStatusConfirmed, enums.DeliveryTypeDelivery).
		Updates(map[string]any{
			"volunteer_id":         volunteerUserID,
			"order_status":         enums.OrderStatusAssigned,
			"assigned_at":          at,
			"delivery_distance_km": geo.RoundKm(pricing.DistanceKm),
			"delivery_charges":     pricing.DeliveryCharges,
			"total_amount":         pricing.TotalAmount,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Advance moves an order held by volunteerUserID out of status from.
func (r *repository) Advance(ctx context.Context, orderID, volunteerUserID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND volunteer_id = ? AND order_status = ?", orderID, volunteerUserID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
