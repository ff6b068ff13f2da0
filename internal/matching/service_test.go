package matching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
)

var origin = geo.Coordinate{Latitude: 12.9716, Longitude: 77.5946}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:matching_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), volunteers.NewRepository(db), config.SearchConfig{DefaultRadiusKm: 3, MaxRadiusKm: 50}, nil)
	require.NoError(t, err)
	return svc
}

func seedPharmacy(t *testing.T, db *gorm.DB, name string, latOffset float64, status enums.ApprovalStatus, stock map[string]int) models.Pharmacy {
	t.Helper()
	pharmacy := models.Pharmacy{
		OwnerID:        uuid.New(),
		Name:           name,
		Address:        name + " street",
		ContactNumber:  "9876500000",
		LicenseNumber:  "LIC-" + name,
		Latitude:       origin.Latitude + latOffset,
		Longitude:      origin.Longitude,
		ApprovalStatus: status,
	}
	require.NoError(t, db.Create(&pharmacy).Error)
	for medicine, qty := range stock {
		require.NoError(t, db.Create(&models.InventoryItem{
			PharmacyID:   pharmacy.ID,
			MedicineName: medicine,
			MedicineKey:  medicine,
			SellingPrice: decimal.NewFromInt(40),
			Stock:        qty,
		}).Error)
	}
	return pharmacy
}

func TestSearchWithinRadius(t *testing.T) {
	db := newTestDB(t)
	near := seedPharmacy(t, db, "Near", 0.01, enums.ApprovalStatusApproved, map[string]int{"Paracetamol 500": 4})
	seedPharmacy(t, db, "Far", 0.05, enums.ApprovalStatusApproved, map[string]int{"Paracetamol 650": 2})
	seedPharmacy(t, db, "Unapproved", 0.005, enums.ApprovalStatusPending, map[string]int{"Paracetamol": 9})
	seedPharmacy(t, db, "Empty", 0.002, enums.ApprovalStatusApproved, map[string]int{"Paracetamol": 0})
	svc := newTestService(t, db)

	result, err := svc.FindPharmaciesWithMedicine(context.Background(), origin, "PARA", 0)
	require.NoError(t, err)
	require.Equal(t, enums.SearchModeWithinRadius, result.Mode)
	require.Equal(t, float64(3), result.RadiusKm)
	require.Len(t, result.Results, 1)
	match := result.Results[0]
	require.Equal(t, near.ID, match.PharmacyID)
	require.Equal(t, "Paracetamol 500", match.MedicineName)
	require.True(t, match.IsAvailable)
	require.InDelta(t, 1.11, match.DistanceKm, 0.02)
}

func TestSearchFallsBackToNearest(t *testing.T) {
	db := newTestDB(t)
	mid := seedPharmacy(t, db, "Mid", 0.05, enums.ApprovalStatusApproved, map[string]int{"Cetirizine": 1})
	farthest := seedPharmacy(t, db, "Farthest", 0.2, enums.ApprovalStatusApproved, map[string]int{"Cetirizine": 1})
	svc := newTestService(t, db)

	result, err := svc.FindPharmaciesWithMedicine(context.Background(), origin, "cetirizine", 2)
	require.NoError(t, err)
	require.Equal(t, enums.SearchModeNearestAvailable, result.Mode)
	require.Len(t, result.Results, 2)
	require.Equal(t, mid.ID, result.Results[0].PharmacyID)
	require.Equal(t, farthest.ID, result.Results[1].PharmacyID)
}

func TestSearchCapsNearestAtTen(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 12; i++ {
		seedPharmacy(t, db, fmt.Sprintf("P%02d", i), 0.1+float64(i)*0.01, enums.ApprovalStatusApproved, map[string]int{"Ibuprofen": 1})
	}
	svc := newTestService(t, db)

	result, err := svc.FindPharmaciesWithMedicine(context.Background(), origin, "ibuprofen", 1)
	require.NoError(t, err)
	require.Equal(t, enums.SearchModeNearestAvailable, result.Mode)
	require.Len(t, result.Results, 10)
	for i := 1; i < len(result.Results); i++ {
		require.LessOrEqual(t, result.Results[i-1].DistanceKm, result.Results[i].DistanceKm)
	}
}

func TestSearchValidation(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.FindPharmaciesWithMedicine(context.Background(), origin, " ", 3)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.FindPharmaciesWithMedicine(context.Background(), origin, "para", -1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.FindPharmaciesWithMedicine(context.Background(), origin, "para", 51)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.FindPharmaciesWithMedicine(context.Background(), geo.Coordinate{Latitude: 91}, "para", 3)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func seedVolunteer(t *testing.T, db *gorm.DB, status enums.ApprovalStatus, online bool) models.Volunteer {
	t.Helper()
	volunteer := models.Volunteer{
		UserID:         uuid.New(),
		VehicleType:    enums.VehicleTypeMotorcycle,
		VehicleNumber:  "KA01AB1234",
		DrivingLicense: "DL-1",
		Age:            25,
		City:           "Bengaluru",
		RadiusKm:       10,
		IsOnline:       true,
		ApprovalStatus: status,
	}
	require.NoError(t, db.Create(&volunteer).Error)
	if !online {
		require.NoError(t, db.Model(&volunteer).Update("is_online", false).Error)
	}
	return volunteer
}

func seedOpenOrder(t *testing.T, db *gorm.DB, pharmacy models.Pharmacy, destLatOffset float64, placedAt time.Time, mutate func(*models.Order)) models.Order {
	t.Helper()
	lat := pharmacy.Latitude + destLatOffset
	lon := pharmacy.Longitude
	address := "Destination"
	order := models.Order{
		CustomerID:        uuid.New(),
		PharmacyID:        pharmacy.ID,
		VendorID:          pharmacy.OwnerID,
		DeliveryType:      enums.DeliveryTypeDelivery,
		DeliveryAddress:   &address,
		DeliveryLatitude:  &lat,
		DeliveryLongitude: &lon,
		ContactNumber:     "9876543210",
		MedicineTotal:     decimal.NewFromInt(100),
		TotalAmount:       decimal.NewFromInt(120),
		OrderStatus:       enums.OrderStatusConfirmed,
		PaymentStatus:     enums.PaymentStatusCompleted,
		PlacedAt:          placedAt,
		LineItems: []models.OrderLineItem{{
			Position:     1,
			MedicineName: "Paracetamol",
			Quantity:     2,
			UnitPrice:    decimal.NewFromInt(50),
			LineTotal:    decimal.NewFromInt(100),
		}},
	}
	if mutate != nil {
		mutate(&order)
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestFindOrdersForVolunteer(t *testing.T) {
	db := newTestDB(t)
	pharmacy := seedPharmacy(t, db, "Care", 0, enums.ApprovalStatusApproved, nil)
	volunteer := seedVolunteer(t, db, enums.ApprovalStatusApproved, true)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	later := seedOpenOrder(t, db, pharmacy, 0.027, base.Add(time.Minute), nil)
	earlier := seedOpenOrder(t, db, pharmacy, 0.01, base, nil)
	seedOpenOrder(t, db, pharmacy, 0.12, base, nil)
	seedOpenOrder(t, db, pharmacy, 0.01, base, func(o *models.Order) {
		o.OrderStatus = enums.OrderStatusPending
		o.PaymentStatus = enums.PaymentStatusPending
	})
	seedOpenOrder(t, db, pharmacy, 0.01, base, func(o *models.Order) {
		taken := uuid.New()
		o.VolunteerID = &taken
		o.OrderStatus = enums.OrderStatusAssigned
	})

	svc := newTestService(t, db)
	summaries, err := svc.FindOrdersForVolunteer(context.Background(), volunteer.UserID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, earlier.ID, summaries[0].OrderID)
	require.Equal(t, later.ID, summaries[1].OrderID)

	require.Equal(t, "20.00", summaries[0].DeliveryCharges.StringFixed(2))
	require.Equal(t, "120.00", summaries[0].TotalAmount.StringFixed(2))
	require.Equal(t, "30.00", summaries[1].DeliveryCharges.StringFixed(2))
	require.Equal(t, "130.00", summaries[1].TotalAmount.StringFixed(2))
	require.Len(t, summaries[0].Items, 1)
	require.Equal(t, 2, summaries[0].Items[0].Quantity)
}

func TestFindOrdersForVolunteerEligibility(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.FindOrdersForVolunteer(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	pending := seedVolunteer(t, db, enums.ApprovalStatusPending, true)
	_, err = svc.FindOrdersForVolunteer(context.Background(), pending.UserID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	offline := seedVolunteer(t, db, enums.ApprovalStatusApproved, false)
	_, err = svc.FindOrdersForVolunteer(context.Background(), offline.UserID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	busy := seedVolunteer(t, db, enums.ApprovalStatusApproved, true)
	require.NoError(t, db.Create(&models.VolunteerActiveOrder{OrderID: uuid.New(), VolunteerID: busy.ID, AssignedAt: time.Now().UTC()}).Error)
	_, err = svc.FindOrdersForVolunteer(context.Background(), busy.UserID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
