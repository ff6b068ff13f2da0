package volunteers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
)

// Repository persists volunteer profiles and their active-order set.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, volunteer *models.Volunteer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Volunteer, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Volunteer, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ActiveOrderCount(ctx context.Context, volunteerID uuid.UUID) (int64, error)
	GoOffline(ctx context.Context, volunteerID uuid.UUID) (bool, error)
	AddActiveOrder(ctx context.Context, entry *models.VolunteerActiveOrder) error
	RemoveActiveOrder(ctx context.Context, volunteerID, orderID uuid.UUID) error
	IncrementDeliveries(ctx context.Context, volunteerID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, volunteer *models.Volunteer) error {
	return r.db.WithContext(ctx).Create(volunteer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Volunteer, error) {
	var volunteer models.Volunteer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&volunteer).Error; err != nil {
		return nil, err
	}
	return &volunteer, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Volunteer, error) {
	var volunteer models.Volunteer
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&volunteer).Error; err != nil {
		return nil, err
	}
	return &volunteer, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Volunteer{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ActiveOrderCount(ctx context.Context, volunteerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VolunteerActiveOrder{}).
		Where("volunteer_id = ?", volunteerID).
		Count(&count).Error
	return count, err
}

// GoOffline clears is_online only while the volunteer holds no active orders.
func (r *repository) GoOffline(ctx context.Context, volunteerID uuid.UUID) (bool, error) {
	active := r.db.Model(&models.VolunteerActiveOrder{}).Select("1").Where("volunteer_id = ?", volunteerID)
	res := r.db.WithContext(ctx).
		Model(&models.Volunteer{}).
		Where("id = ?", volunteerID).
		Where("NOT EXISTS (?)", active).
		Update("is_online", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AddActiveOrder(ctx context.Context, entry *models.VolunteerActiveOrder) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) RemoveActiveOrder(ctx context.Context, volunteerID, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("volunteer_id = ? AND order_id = ?", volunteerID, orderID).
		Delete(&models.VolunteerActiveOrder{}).Error
}

func (r *repository) IncrementDeliveries(ctx context.Context, volunteerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Volunteer{}).
		Where("id = ?", volunteerID).
		Update("total_deliveries", gorm.Expr("total_deliveries + 1")).Error
}
