package pharmacies

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// OrderStats aggregates a pharmacy's order history.
type OrderStats struct {
	TotalOrders     int64
	CompletedOrders int64
	PendingOrders   int64
	Revenue         decimal.Decimal
}

// MedicineSales is the sold quantity and revenue of one medicine.
type MedicineSales struct {
	MedicineName  string          `json:"medicine_name"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

// Repository persists pharmacies and answers vendor reporting queries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, pharmacy *models.Pharmacy) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Pharmacy, error)
	SetApprovalStatus(ctx context.Context, id uuid.UUID, status enums.ApprovalStatus) error
	OrderStats(ctx context.Context, pharmacyID uuid.UUID) (*OrderStats, error)
	MedicinesSold(ctx context.Context, pharmacyID uuid.UUID) (int64, error)
	TopMedicines(ctx context.Context, pharmacyID uuid.UUID, limit int) ([]MedicineSales, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds pharmacy persistence to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

var fulfilledStatuses = []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCompleted}

func (r *repository) Create(ctx context.Context, pharmacy *models.Pharmacy) error {
	return r.db.WithContext(ctx).Create(pharmacy).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	var pharmacy models.Pharmacy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pharmacy).Error; err != nil {
		return nil, err
	}
	return &pharmacy, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Pharmacy, error) {
	var rows []models.Pharmacy
	err := r.db.WithContext(ctx).
		Preload("Inventory", func(db *gorm.DB) *gorm.DB { return db.Order("medicine_key ASC") }).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) SetApprovalStatus(ctx context.Context, id uuid.UUID, status enums.ApprovalStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Pharmacy{}).
		Where("id = ?", id).
		Update("approval_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) OrderStats(ctx context.Context, pharmacyID uuid.UUID) (*OrderStats, error) {
	var stats OrderStats
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select(`COUNT(*) AS total_orders,
			COALESCE(SUM(CASE WHEN order_status IN ? THEN 1 ELSE 0 END), 0) AS completed_orders,
			COALESCE(SUM(CASE WHEN order_status = ? THEN 1 ELSE 0 END), 0) AS pending_orders,
			COALESCE(SUM(CASE WHEN order_status IN ? THEN total_amount ELSE 0 END), 0) AS revenue`,
			fulfilledStatuses, enums.OrderStatusPending, fulfilledStatuses).
		Where("pharmacy_id = ?", pharmacyID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *repository) MedicinesSold(ctx context.Context, pharmacyID uuid.UUID) (int64, error) {
	var sold int64
	err := r.db.WithContext(ctx).
		Table("order_line_items AS li").
		Select("COALESCE(SUM(li.quantity), 0)").
		Joins("JOIN orders AS o ON o.id = li.order_id").
		Where("o.pharmacy_id = ? AND o.order_status IN ?", pharmacyID, fulfilledStatuses).
		Scan(&sold).Error
	return sold, err
}

func (r *repository) TopMedicines(ctx context.Context, pharmacyID uuid.UUID, limit int) ([]MedicineSales, error) {
	var rows []MedicineSales
	err := r.db.WithContext(ctx).
		Table("order_line_items AS li").
		Select("li.medicine_name, SUM(li.quantity) AS total_quantity, SUM(li.line_total) AS total_revenue").
		Joins("JOIN orders AS o ON o.id = li.order_id").
		Where("o.pharmacy_id = ? AND o.order_status IN ?", pharmacyID, fulfilledStatuses).
		Group("li.medicine_name").
		Order("total_revenue DESC").
		Order("li.medicine_name ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
