package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// Pharmacy is a vendor-owned store that sells medicines.
type Pharmacy struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID        uuid.UUID            `gorm:"column:owner_id;type:uuid;not null;index"`
	Name           string               `gorm:"column:name;not null"`
	Address        string               `gorm:"column:address;not null"`
	ContactNumber  string               `gorm:"column:contact_number;not null"`
	LicenseNumber  string               `gorm:"column:license_number;not null"`
	Latitude       float64              `gorm:"column:latitude;not null"`
	Longitude      float64              `gorm:"column:longitude;not null"`
	ApprovalStatus enums.ApprovalStatus `gorm:"column:approval_status;type:text;not null;default:'pending'"`
	Inventory      []InventoryItem      `gorm:"foreignKey:PharmacyID"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Pharmacy) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
