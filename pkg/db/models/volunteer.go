package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// Volunteer is a courier profile keyed by the owning user.
type Volunteer struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	VehicleType       enums.VehicleType    `gorm:"column:vehicle_type;type:text;not null"`
	VehicleNumber     string               `gorm:"column:vehicle_number;not null"`
	DrivingLicense    string               `gorm:"column:driving_license;not null"`
	Age               int                  `gorm:"column:age;not null"`
	City              string               `gorm:"column:city;not null"`
	RadiusKm          float64              `gorm:"column:radius_km;not null;default:10"`
	Latitude          *float64             `gorm:"column:latitude"`
	Longitude         *float64             `gorm:"column:longitude"`
	LocationUpdatedAt *time.Time           `gorm:"column:location_updated_at"`
	IsOnline          bool                 `gorm:"column:is_online;not null;default:true"`
	ApprovalStatus    enums.ApprovalStatus `gorm:"column:approval_status;type:text;not null;default:'pending'"`
	ApprovedAt        *time.Time           `gorm:"column:approved_at"`
	RejectionReason   *string              `gorm:"column:rejection_reason"`
	TotalDeliveries   int                  `gorm:"column:total_deliveries;not null;default:0"`
	Rating            float64              `gorm:"column:rating;not null;default:0"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Volunteer) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// VolunteerActiveOrder is one entry of a volunteer's active order set.
type VolunteerActiveOrder struct {
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	VolunteerID uuid.UUID `gorm:"column:volunteer_id;type:uuid;not null;index"`
	AssignedAt  time.Time `gorm:"column:assigned_at;not null"`
}
