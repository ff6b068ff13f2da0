package pharmacies

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox/payloads"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type recordingNotifier struct {
	events []outbox.DomainEvent
}

func (n *recordingNotifier) Notify(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) bool {
	n.events = append(n.events, event)
	return true
}

func newTestService(t *testing.T) (Service, *gorm.DB, *recordingNotifier) {
	t.Helper()
	dsn := fmt.Sprintf("file:pharmacies_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	ledger, err := inventory.NewLedger(db, nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	svc, err := NewService(NewRepository(db), ledger, gormTxRunner{db: db}, notifier, nil)
	require.NoError(t, err)
	return svc, db, notifier
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Name:          "Care Pharmacy",
		Address:       "12 MG Road",
		ContactNumber: "+919876500000",
		LicenseNumber: "ka-123",
		Location:      geo.Coordinate{Latitude: 12.9716, Longitude: 77.5946},
	}
}

func TestRegisterStartsPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	vendor := uuid.New()

	view, err := svc.Register(context.Background(), vendor, validRegistration())
	require.NoError(t, err)
	require.Equal(t, enums.ApprovalStatusPending, view.ApprovalStatus)
	require.Equal(t, "KA-123", view.LicenseNumber)
	require.Equal(t, vendor, view.OwnerID)
	require.Empty(t, view.Inventory)

	mine, err := svc.ListMine(context.Background(), vendor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, view.ID, mine[0].ID)

	others, err := svc.ListMine(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, others)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := map[string]func(*RegisterInput){
		"missing name":     func(in *RegisterInput) { in.Name = " " },
		"missing address":  func(in *RegisterInput) { in.Address = "" },
		"missing license":  func(in *RegisterInput) { in.LicenseNumber = "" },
		"bad contact":      func(in *RegisterInput) { in.ContactNumber = "call me" },
		"latitude too big": func(in *RegisterInput) { in.Location.Latitude = 120 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := validRegistration()
			mutate(&input)
			_, err := svc.Register(context.Background(), uuid.New(), input)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), err)
		})
	}
}

func TestUpsertInventoryOwnerOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	vendor := uuid.New()
	pharmacy, err := svc.Register(context.Background(), vendor, validRegistration())
	require.NoError(t, err)

	input := inventory.UpsertInput{MedicineName: "Paracetamol", SellingPrice: decimal.NewFromInt(25), Stock: 40}
	_, err = svc.UpsertInventory(context.Background(), uuid.New(), pharmacy.ID, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	item, err := svc.UpsertInventory(context.Background(), vendor, pharmacy.ID, input)
	require.NoError(t, err)
	require.Equal(t, 40, item.Stock)

	input.MedicineName = "PARACETAMOL"
	input.Stock = 10
	item, err = svc.UpsertInventory(context.Background(), vendor, pharmacy.ID, input)
	require.NoError(t, err)
	require.Equal(t, 10, item.Stock)

	mine, err := svc.ListMine(context.Background(), vendor)
	require.NoError(t, err)
	require.Len(t, mine[0].Inventory, 1)
}

func TestSetApprovalStatus(t *testing.T) {
	svc, _, notifier := newTestService(t)
	pharmacy, err := svc.Register(context.Background(), uuid.New(), validRegistration())
	require.NoError(t, err)

	_, err = svc.SetApprovalStatus(context.Background(), pharmacy.ID, enums.ApprovalStatusRejected, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.SetApprovalStatus(context.Background(), pharmacy.ID, enums.ApprovalStatus("maybe"), "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.SetApprovalStatus(context.Background(), uuid.New(), enums.ApprovalStatusApproved, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	view, err := svc.SetApprovalStatus(context.Background(), pharmacy.ID, enums.ApprovalStatusApproved, "")
	require.NoError(t, err)
	require.Equal(t, enums.ApprovalStatusApproved, view.ApprovalStatus)

	require.Len(t, notifier.events, 1)
	event := notifier.events[0]
	require.Equal(t, enums.EventPharmacyReviewed, event.EventType)
	data, ok := event.Data.(payloads.ApprovalReviewedEvent)
	require.True(t, ok)
	require.Equal(t, enums.ApprovalStatusApproved, data.Status)
	require.Equal(t, pharmacy.OwnerID, data.OwnerID)
}

func seedOrder(t *testing.T, db *gorm.DB, pharmacy *PharmacyView, status enums.OrderStatus, lines map[string]int) {
	t.Helper()
	total := decimal.Zero
	items := make([]models.OrderLineItem, 0, len(lines))
	position := 1
	for name, qty := range lines {
		lineTotal := decimal.NewFromInt(int64(qty * 10))
		total = total.Add(lineTotal)
		items = append(items, models.OrderLineItem{
			Position:     position,
			MedicineName: name,
			Quantity:     qty,
			UnitPrice:    decimal.NewFromInt(10),
			LineTotal:    lineTotal,
		})
		position++
	}
	code := "PICK" + uuid.NewString()[:2]
	require.NoError(t, db.Create(&models.Order{
		CustomerID:    uuid.New(),
		PharmacyID:    pharmacy.ID,
		VendorID:      pharmacy.OwnerID,
		DeliveryType:  enums.DeliveryTypePickup,
		PickupCode:    &code,
		ContactNumber: "9876543210",
		MedicineTotal: total,
		TotalAmount:   total,
		OrderStatus:   status,
		LineItems:     items,
	}).Error)
}

func TestDashboard(t *testing.T) {
	svc, db, _ := newTestService(t)
	vendor := uuid.New()
	pharmacy, err := svc.Register(context.Background(), vendor, validRegistration())
	require.NoError(t, err)

	seedOrder(t, db, pharmacy, enums.OrderStatusCompleted, map[string]int{"Paracetamol": 3, "Cetirizine": 1})
	seedOrder(t, db, pharmacy, enums.OrderStatusDelivered, map[string]int{"Paracetamol": 2})
	seedOrder(t, db, pharmacy, enums.OrderStatusPending, map[string]int{"Ibuprofen": 5})
	seedOrder(t, db, pharmacy, enums.OrderStatusCancelled, map[string]int{"Ibuprofen": 9})

	dashboard, err := svc.Dashboard(context.Background(), vendor, pharmacy.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), dashboard.TotalOrders)
	require.Equal(t, int64(2), dashboard.CompletedOrders)
	require.Equal(t, int64(1), dashboard.PendingOrders)
	require.Equal(t, "60.00", dashboard.TotalRevenue.StringFixed(2))
	require.Equal(t, int64(6), dashboard.MedicinesSold)
	require.Len(t, dashboard.TopMedicines, 2)
	require.Equal(t, "Paracetamol", dashboard.TopMedicines[0].MedicineName)
	require.Equal(t, int64(5), dashboard.TopMedicines[0].TotalQuantity)

	_, err = svc.Dashboard(context.Background(), uuid.New(), pharmacy.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
