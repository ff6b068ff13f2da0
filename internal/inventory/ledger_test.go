package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:inventory_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Pharmacy{}, &models.InventoryItem{}))
	return db
}

func seedPharmacy(t *testing.T, db *gorm.DB, stock map[string]int) models.Pharmacy {
	t.Helper()
	pharmacy := models.Pharmacy{
		OwnerID:        uuid.New(),
		Name:           "Care Pharmacy",
		Address:        "12 MG Road",
		ContactNumber:  "9876500000",
		LicenseNumber:  "KA-1234",
		Latitude:       12.9716,
		Longitude:      77.5946,
		ApprovalStatus: enums.ApprovalStatusApproved,
	}
	require.NoError(t, db.Create(&pharmacy).Error)
	for name, qty := range stock {
		item := models.InventoryItem{
			PharmacyID:   pharmacy.ID,
			MedicineName: name,
			MedicineKey:  MedicineKey(name),
			SellingPrice: decimal.NewFromInt(25),
			Stock:        qty,
		}
		require.NoError(t, db.Create(&item).Error)
	}
	return pharmacy
}

func stockOf(t *testing.T, db *gorm.DB, pharmacyID uuid.UUID, name string) int {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, db.Where("pharmacy_id = ? AND medicine_key = ?", pharmacyID, MedicineKey(name)).First(&item).Error)
	return item.Stock
}

func TestReserveDecrementsStock(t *testing.T) {
	db := newTestDB(t)
	pharmacy := seedPharmacy(t, db, map[string]int{"Paracetamol": 10, "Cetirizine": 3})
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, pharmacy.ID, []Line{
			{MedicineKey: "paracetamol", Quantity: 4},
			{MedicineKey: "cetirizine", Quantity: 3},
		})
	})
	require.NoError(t, err)
	require.Equal(t, 6, stockOf(t, db, pharmacy.ID, "Paracetamol"))
	require.Equal(t, 0, stockOf(t, db, pharmacy.ID, "Cetirizine"))
}

func TestReserveInsufficientStockRollsBackWholeOrder(t *testing.T) {
	db := newTestDB(t)
	pharmacy := seedPharmacy(t, db, map[string]int{"Paracetamol": 10, "Cetirizine": 1})
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, pharmacy.ID, []Line{
			{MedicineKey: "paracetamol", Quantity: 4},
			{MedicineKey: "cetirizine", Quantity: 2},
		})
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Equal(t, 10, stockOf(t, db, pharmacy.ID, "Paracetamol"))
	require.Equal(t, 1, stockOf(t, db, pharmacy.ID, "Cetirizine"))
}

func TestReserveLastUnitOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	pharmacy := seedPharmacy(t, db, map[string]int{"Insulin": 1})
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)

	first := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, pharmacy.ID, []Line{{MedicineKey: "insulin", Quantity: 1}})
	})
	second := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, pharmacy.ID, []Line{{MedicineKey: "insulin", Quantity: 1}})
	})
	require.NoError(t, first)
	require.True(t, pkgerrors.IsCode(second, pkgerrors.CodeConflict))
	require.Equal(t, 0, stockOf(t, db, pharmacy.ID, "Insulin"))
}

func TestReleaseRestoresAndSkipsMissing(t *testing.T) {
	db := newTestDB(t)
	pharmacy := seedPharmacy(t, db, map[string]int{"Paracetamol": 2})
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return ledger.Release(context.Background(), tx, pharmacy.ID, []Line{
			{MedicineKey: "paracetamol", Quantity: 3},
			{MedicineKey: "discontinued", Quantity: 1},
		})
	})
	require.NoError(t, err)
	require.Equal(t, 5, stockOf(t, db, pharmacy.ID, "Paracetamol"))
}

func TestReserveRequiresTransaction(t *testing.T) {
	db := newTestDB(t)
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)
	err = ledger.Reserve(context.Background(), nil, uuid.New(), []Line{{MedicineKey: "x", Quantity: 1}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestUpsertMatchesNameCaseInsensitively(t *testing.T) {
	db := newTestDB(t)
	pharmacy := seedPharmacy(t, db, nil)
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := ledger.Upsert(ctx, pharmacy.ID, UpsertInput{
		MedicineName: "Amoxicillin",
		SellingPrice: decimal.RequireFromString("45.50"),
		Stock:        5,
	})
	require.NoError(t, err)

	second, err := ledger.Upsert(ctx, pharmacy.ID, UpsertInput{
		MedicineName: " amoxicillin ",
		SellingPrice: decimal.RequireFromString("40"),
		Stock:        9,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 9, second.Stock)
	require.True(t, second.SellingPrice.Equal(decimal.NewFromInt(40)))

	var count int64
	require.NoError(t, db.Model(&models.InventoryItem{}).Where("pharmacy_id = ?", pharmacy.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUpsertValidation(t *testing.T) {
	db := newTestDB(t)
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)

	_, err = ledger.Upsert(context.Background(), uuid.New(), UpsertInput{MedicineName: "", SellingPrice: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ledger.Upsert(context.Background(), uuid.New(), UpsertInput{MedicineName: "x", SellingPrice: decimal.NewFromInt(-1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ledger.Upsert(context.Background(), uuid.New(), UpsertInput{MedicineName: "x", SellingPrice: decimal.NewFromInt(1), Stock: -1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpsertAcceptsFreeMedicine(t *testing.T) {
	db := newTestDB(t)
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)
	pharmacy := seedPharmacy(t, db, nil)

	item, err := ledger.Upsert(context.Background(), pharmacy.ID, UpsertInput{MedicineName: "ORS sachet", SellingPrice: decimal.Zero, Stock: 20})
	require.NoError(t, err)
	require.True(t, item.SellingPrice.IsZero())
	require.Equal(t, 20, item.Stock)
}

func TestSnapshotUnknownPharmacy(t *testing.T) {
	db := newTestDB(t)
	ledger, err := NewLedger(db, nil)
	require.NoError(t, err)
	_, err = ledger.Snapshot(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
