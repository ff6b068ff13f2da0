package volunteers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/pkg/db"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
)

const (
	minimumAge      = 18
	defaultRadiusKm = 10
	maxRadiusKm     = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) bool
}

// RegisterInput is a volunteer's self-registration.
type RegisterInput struct {
	VehicleType    enums.VehicleType
	VehicleNumber  string
	DrivingLicense string
	Age            int
	City           string
	RadiusKm       *float64
	Location       *geo.Coordinate
}

// Profile is the volunteer as shown to themselves and to admins.
type Profile struct {
	ID              uuid.UUID            `json:"id"`
	UserID          uuid.UUID            `json:"user_id"`
	VehicleType     enums.VehicleType    `json:"vehicle_type"`
	VehicleNumber   string               `json:"vehicle_number"`
	City            string               `json:"city"`
	RadiusKm        float64              `json:"radius_km"`
	Location        *geo.Coordinate      `json:"location,omitempty"`
	IsOnline        bool                 `json:"is_online"`
	IsAvailable     bool                 `json:"is_available"`
	ActiveOrders    int64                `json:"active_orders"`
	ApprovalStatus  enums.ApprovalStatus `json:"approval_status"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	TotalDeliveries int                  `json:"total_deliveries"`
	Rating          float64              `json:"rating"`
}

// Service manages volunteer profiles.
type Service interface {
	Register(ctx context.Context, userID uuid.UUID, input RegisterInput) (*Profile, error)
	Profile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpdateLocation(ctx context.Context, userID uuid.UUID, location geo.Coordinate) (*Profile, error)
	SetAvailability(ctx context.Context, userID uuid.UUID, online bool) (*Profile, error)
	SetApprovalStatus(ctx context.Context, volunteerID uuid.UUID, status enums.ApprovalStatus, reason string) (*Profile, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the volunteer service.
func NewService(repo Repository, tx txRunner, notifier notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("volunteer repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		notifier: notifier,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Eligible reports whether v may take delivery work: approved by an admin
// and currently online.
func Eligible(v *models.Volunteer) bool {
	return v != nil && v.ApprovalStatus == enums.ApprovalStatusApproved && v.IsOnline
}

// MapLoadError converts a volunteer lookup failure into a domain error.
func MapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "volunteer profile not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load volunteer")
}

func (s *service) Register(ctx context.Context, userID uuid.UUID, input RegisterInput) (*Profile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateRegistration(&input); err != nil {
		return nil, err
	}

	volunteer := &models.Volunteer{
		UserID:         userID,
		VehicleType:    input.VehicleType,
		VehicleNumber:  input.VehicleNumber,
		DrivingLicense: input.DrivingLicense,
		Age:            input.Age,
		City:           input.City,
		RadiusKm:       defaultRadiusKm,
		IsOnline:       true,
		ApprovalStatus: enums.ApprovalStatusPending,
	}
	if input.RadiusKm != nil {
		volunteer.RadiusKm = *input.RadiusKm
	}
	if input.Location != nil {
		now := s.now()
		volunteer.Latitude = &input.Location.Latitude
		volunteer.Longitude = &input.Location.Longitude
		volunteer.LocationUpdatedAt = &now
	}

	if err := s.repo.Create(ctx, volunteer); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "volunteer profile already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create volunteer")
	}
	return newProfile(volunteer, 0), nil
}

func validateRegistration(input *RegisterInput) error {
	input.VehicleNumber = strings.ToUpper(strings.TrimSpace(input.VehicleNumber))
	input.DrivingLicense = strings.TrimSpace(input.DrivingLicense)
	input.City = strings.TrimSpace(input.City)
	if !input.VehicleType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "vehicle type must be bicycle, motorcycle, car or auto")
	}
	if input.Age < minimumAge {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("volunteers must be at least %d years old", minimumAge))
	}
	if input.City == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "city is required")
	}
	if input.VehicleType != enums.VehicleTypeBicycle {
		if input.VehicleNumber == "" || input.DrivingLicense == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "vehicle number and driving license are required for motorised vehicles")
		}
	}
	if input.RadiusKm != nil && (*input.RadiusKm <= 0 || *input.RadiusKm > maxRadiusKm) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("radius must be between 0 and %d km", maxRadiusKm))
	}
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
		}
	}
	return nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	volunteer, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, MapLoadError(err)
	}
	return s.profileWithCount(ctx, s.repo, volunteer)
}

func (s *service) UpdateLocation(ctx context.Context, userID uuid.UUID, location geo.Coordinate) (*Profile, error) {
	if err := location.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
	}
	volunteer, err := s.approved(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repo.Update(ctx, volunteer.ID, map[string]any{
		"latitude":            location.Latitude,
		"longitude":           location.Longitude,
		"location_updated_at": now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update location")
	}
	volunteer.Latitude = &location.Latitude
	volunteer.Longitude = &location.Longitude
	volunteer.LocationUpdatedAt = &now
	return s.profileWithCount(ctx, s.repo, volunteer)
}

func (s *service) SetAvailability(ctx context.Context, userID uuid.UUID, online bool) (*Profile, error) {
	volunteer, err := s.approved(ctx, userID)
	if err != nil {
		return nil, err
	}
	if online {
		if err := s.repo.Update(ctx, volunteer.ID, map[string]any{"is_online": true}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update availability")
		}
		volunteer.IsOnline = true
		return s.profileWithCount(ctx, s.repo, volunteer)
	}

	ok, err := s.repo.GoOffline(ctx, volunteer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update availability")
	}
	if !ok {
		active, countErr := s.repo.ActiveOrderCount(ctx, volunteer.ID)
		if countErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, countErr, "count active orders")
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "finish active deliveries before going offline").
			WithDetails(map[string]any{"active_orders": active})
	}
	volunteer.IsOnline = false
	return s.profileWithCount(ctx, s.repo, volunteer)
}

func (s *service) SetApprovalStatus(ctx context.Context, volunteerID uuid.UUID, status enums.ApprovalStatus, reason string) (*Profile, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid approval status")
	}
	reason = strings.TrimSpace(reason)
	if status == enums.ApprovalStatusRejected && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}

	var out *Profile
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		volunteer, err := repo.FindByID(ctx, volunteerID)
		if err != nil {
			return MapLoadError(err)
		}
		updates := map[string]any{"approval_status": status}
		switch status {
		case enums.ApprovalStatusApproved:
			now := s.now()
			updates["approved_at"] = now
			updates["rejection_reason"] = nil
			volunteer.ApprovedAt = &now
			volunteer.RejectionReason = nil
		case enums.ApprovalStatusRejected:
			updates["rejection_reason"] = reason
			volunteer.RejectionReason = &reason
		}
		if err := repo.Update(ctx, volunteer.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update approval status")
		}
		volunteer.ApprovalStatus = status
		if s.notifier != nil {
			s.notifier.Notify(ctx, tx, notifications.VolunteerReviewed(volunteer, notifications.Actor(uuid.Nil, enums.ActorRoleAdmin)))
		}
		out, err = s.profileWithCount(ctx, repo, volunteer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) approved(ctx context.Context, userID uuid.UUID) (*models.Volunteer, error) {
	volunteer, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, MapLoadError(err)
	}
	if volunteer.ApprovalStatus != enums.ApprovalStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "volunteer is not approved").
			WithDetails(map[string]any{"approval_status": volunteer.ApprovalStatus})
	}
	return volunteer, nil
}

func (s *service) profileWithCount(ctx context.Context, repo Repository, volunteer *models.Volunteer) (*Profile, error) {
	active, err := repo.ActiveOrderCount(ctx, volunteer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active orders")
	}
	return newProfile(volunteer, active), nil
}

func newProfile(v *models.Volunteer, active int64) *Profile {
	profile := &Profile{
		ID:              v.ID,
		UserID:          v.UserID,
		VehicleType:     v.VehicleType,
		VehicleNumber:   v.VehicleNumber,
		City:            v.City,
		RadiusKm:        v.RadiusKm,
		IsOnline:        v.IsOnline,
		IsAvailable:     v.IsOnline && active == 0,
		ActiveOrders:    active,
		ApprovalStatus:  v.ApprovalStatus,
		RejectionReason: v.RejectionReason,
		TotalDeliveries: v.TotalDeliveries,
		Rating:          v.Rating,
	}
	if v.Latitude != nil && v.Longitude != nil {
		profile.Location = &geo.Coordinate{Latitude: *v.Latitude, Longitude: *v.Longitude}
	}
	return profile
}
