package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryItem is one medicine line in a pharmacy's stock. MedicineKey is the
// lower-cased name and is unique per pharmacy.
type InventoryItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PharmacyID    uuid.UUID       `gorm:"column:pharmacy_id;type:uuid;not null;uniqueIndex:ux_inventory_items_medicine"`
	MedicineName  string          `gorm:"column:medicine_name;not null"`
	MedicineKey   string          `gorm:"column:medicine_key;not null;uniqueIndex:ux_inventory_items_medicine"`
	SellingPrice  decimal.Decimal `gorm:"column:selling_price;type:numeric(12,2);not null"`
	PurchasePrice decimal.Decimal `gorm:"column:purchase_price;type:numeric(12,2);not null;default:0"`
	Stock         int             `gorm:"column:stock;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *InventoryItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
