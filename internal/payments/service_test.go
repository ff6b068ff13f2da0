package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
)

const testSecret = "rzp_secret"

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type stubProcessor struct {
	calls    int
	lastCall CreateOrderParams
	deadline bool
	err      error
}

func (s *stubProcessor) Name() string  { return "razorpay" }
func (s *stubProcessor) KeyID() string { return "rzp_test_key" }

func (s *stubProcessor) CreateOrder(ctx context.Context, params CreateOrderParams) (ProcessorOrder, error) {
	s.calls++
	s.lastCall = params
	_, s.deadline = ctx.Deadline()
	if s.err != nil {
		return ProcessorOrder{}, s.err
	}
	return ProcessorOrder{ID: fmt.Sprintf("order_%d", s.calls)}, nil
}

type memoryDedupe struct {
	mu        sync.Mutex
	seen      map[string]bool
	deleteErr error
}

func (m *memoryDedupe) CheckAndMarkProcessed(_ context.Context, consumer, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	full := consumer + ":" + key
	if m.seen[full] {
		return true, nil
	}
	m.seen[full] = true
	return false, nil
}

func (m *memoryDedupe) Delete(_ context.Context, consumer, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.seen, consumer+":"+key)
	return nil
}

type recordingNotifier struct {
	events []enums.OutboxEventType
}

func (n *recordingNotifier) Notify(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) bool {
	n.events = append(n.events, event.EventType)
	return true
}

type recordingMetrics struct {
	verifications map[string]int
	processor     []string
}

func (m *recordingMetrics) IncVerification(result string) {
	if m.verifications == nil {
		m.verifications = map[string]int{}
	}
	m.verifications[result]++
}

func (m *recordingMetrics) ObserveProcessor(provider, result string, _ time.Duration) {
	m.processor = append(m.processor, provider+":"+result)
}

type fixture struct {
	db        *gorm.DB
	repo      orders.Repository
	coord     *Coordinator
	processor *stubProcessor
	dedupe    *memoryDedupe
	notifier  *recordingNotifier
	metrics   *recordingMetrics
	pharmacy  models.Pharmacy
}

func newFixture(t *testing.T, gate orders.GateMode) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:payments_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

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
	require.NoError(t, db.Create(&models.InventoryItem{
		PharmacyID:   pharmacy.ID,
		MedicineName: "Paracetamol",
		MedicineKey:  inventory.MedicineKey("Paracetamol"),
		SellingPrice: decimal.NewFromInt(50),
		Stock:        3,
	}).Error)

	ledger, err := inventory.NewLedger(db, nil)
	require.NoError(t, err)
	repo := orders.NewRepository(db)
	notifier := &recordingNotifier{}
	metrics := &recordingMetrics{}
	confirmer, err := orders.NewConfirmer(repo, ledger, notifier, nil)
	require.NoError(t, err)
	processor := &stubProcessor{}
	dedupe := &memoryDedupe{}

	coord, err := NewCoordinator(Deps{
		Repo:      repo,
		Tx:        gormTxRunner{db: db},
		Confirmer: confirmer,
		Processor: processor,
		Dedupe:    dedupe,
		Notifier:  notifier,
		Metrics:   metrics,
		Settings: Settings{
			Secret:           testSecret,
			Currency:         "INR",
			Gate:             gate,
			ProcessorTimeout: time.Second,
		},
	})
	require.NoError(t, err)

	return &fixture{
		db:        db,
		repo:      repo,
		coord:     coord,
		processor: processor,
		dedupe:    dedupe,
		notifier:  notifier,
		metrics:   metrics,
		pharmacy:  pharmacy,
	}
}

func (f *fixture) seedOrder(t *testing.T, qty int, prescription *enums.PrescriptionStatus) *models.Order {
	t.Helper()
	total := decimal.NewFromInt(int64(50*qty + 30))
	order := &models.Order{
		CustomerID:         uuid.New(),
		PharmacyID:         f.pharmacy.ID,
		VendorID:           f.pharmacy.OwnerID,
		DeliveryType:       enums.DeliveryTypeDelivery,
		ContactNumber:      "9876543210",
		MedicineTotal:      decimal.NewFromInt(int64(50 * qty)),
		DeliveryCharges:    decimal.NewFromInt(30),
		TotalAmount:        total,
		NeedsPrescription:  prescription != nil,
		PrescriptionStatus: prescription,
		OrderStatus:        enums.OrderStatusPending,
		PaymentStatus:      enums.PaymentStatusPending,
		LineItems: []models.OrderLineItem{{
			Position:     1,
			MedicineName: "Paracetamol",
			Quantity:     qty,
			UnitPrice:    decimal.NewFromInt(50),
			LineTotal:    decimal.NewFromInt(int64(50 * qty)),
		}},
	}
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.db.Where("pharmacy_id = ?", f.pharmacy.ID).First(&item).Error)
	return item.Stock
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func signed(orderRef, paymentRef string) VerifyInput {
	return VerifyInput{OrderRef: orderRef, PaymentRef: paymentRef, Signature: Sign(testSecret, orderRef, paymentRef)}
}

func TestCreateIntentStoresOrderRef(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	order := f.seedOrder(t, 2, nil)

	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)
	require.Equal(t, "order_1", intent.OrderRef)
	require.Equal(t, int64(13000), intent.AmountMinor)
	require.Equal(t, "130.00", intent.Amount.StringFixed(2))
	require.Equal(t, "rzp_test_key", intent.KeyID)
	require.True(t, f.processor.deadline)
	require.Equal(t, order.ID.String(), f.processor.lastCall.Notes["order_id"])
	require.Equal(t, []string{"razorpay:ok"}, f.metrics.processor)

	stored := f.reload(t, order.ID)
	require.Equal(t, "order_1", *stored.PaymentOrderRef)
}

func TestCreateIntentChecksOwnerAndState(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	order := f.seedOrder(t, 1, nil)

	_, err := f.coord.CreateIntent(context.Background(), order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	pending := enums.PrescriptionStatusPending
	gated := f.seedOrder(t, 1, &pending)
	_, err = f.coord.CreateIntent(context.Background(), gated.ID, gated.CustomerID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Zero(t, f.processor.calls)
}

func TestCreateIntentProcessorFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	f.processor.err = errors.New("connection reset")
	order := f.seedOrder(t, 1, nil)

	_, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Equal(t, []string{"razorpay:error"}, f.metrics.processor)

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusPending, stored.OrderStatus)
	require.Nil(t, stored.PaymentOrderRef)
}

func TestVerifyConfirmsAndReservesStock(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	order := f.seedOrder(t, 2, nil)
	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)

	view, err := f.coord.Verify(context.Background(), signed(intent.OrderRef, "pay_1"))
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, view.OrderStatus)
	require.Equal(t, enums.PaymentStatusCompleted, view.PaymentStatus)
	require.Equal(t, 1, f.stock(t))
	require.Contains(t, f.notifier.events, enums.EventOrderConfirmed)

	stored := f.reload(t, order.ID)
	require.Equal(t, "pay_1", *stored.PaymentRef)
	require.True(t, stored.InventoryReserved)
	require.NotNil(t, stored.ConfirmedAt)

	again, err := f.coord.Verify(context.Background(), signed(intent.OrderRef, "pay_1"))
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, again.OrderStatus)
	require.Equal(t, 1, f.stock(t), "replay must not reserve twice")
	require.Equal(t, 1, f.metrics.verifications["replay"])
}

func TestVerifyReplayWithoutDedupeStore(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	f.coord.dedupe = nil
	order := f.seedOrder(t, 1, nil)
	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)

	_, err = f.coord.Verify(context.Background(), signed(intent.OrderRef, "pay_1"))
	require.NoError(t, err)
	_, err = f.coord.Verify(context.Background(), signed(intent.OrderRef, "pay_1"))
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t))

	_, err = f.coord.Verify(context.Background(), signed(intent.OrderRef, "pay_2"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	order := f.seedOrder(t, 1, nil)
	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)

	input := signed(intent.OrderRef, "pay_1")
	input.Signature = Sign("wrong", intent.OrderRef, "pay_1")
	_, err = f.coord.Verify(context.Background(), input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrity))
	require.Equal(t, 1, f.metrics.verifications["integrity"])

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusPending, stored.OrderStatus)
	require.Nil(t, stored.PaymentRef)
	require.Equal(t, 3, f.stock(t))
}

func TestVerifyLogsWhenDedupeReleaseFails(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	var buf bytes.Buffer
	f.coord.logg = logger.New(logger.Options{ServiceName: "payments-test", Output: &buf})
	f.dedupe.deleteErr = errors.New("redis: connection refused")

	_, err := f.coord.Verify(context.Background(), signed("order_missing", "pay_1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	out := buf.String()
	require.Contains(t, out, "payment callback dedupe release failed")
	require.Contains(t, out, "order_missing")
	require.Contains(t, out, "connection refused")
}

func TestVerifyRestrictsCustomerToOwnOrders(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	order := f.seedOrder(t, 1, nil)
	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)

	stranger := uuid.New()
	input := signed(intent.OrderRef, "pay_1")
	input.CustomerID = &stranger
	_, err = f.coord.Verify(context.Background(), input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	input.CustomerID = &order.CustomerID
	view, err := f.coord.Verify(context.Background(), input)
	require.NoError(t, err, "a failed attempt must not poison the dedupe key")
	require.Equal(t, enums.OrderStatusConfirmed, view.OrderStatus)
}

func TestVerifyBlockGateRefusesUnapprovedPrescription(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	pending := enums.PrescriptionStatusPending
	order := f.seedOrder(t, 1, &pending)
	ref := "order_manual"
	require.NoError(t, f.repo.Update(context.Background(), order.ID, map[string]any{"payment_order_ref": ref}))

	_, err := f.coord.Verify(context.Background(), signed(ref, "pay_1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Nil(t, f.reload(t, order.ID).PaymentRef)
}

func TestVerifyHoldGateRecordsHold(t *testing.T) {
	f := newFixture(t, orders.GateHoldCapture)
	pending := enums.PrescriptionStatusPending
	order := f.seedOrder(t, 1, &pending)
	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)

	view, err := f.coord.Verify(context.Background(), signed(intent.OrderRef, "pay_1"))
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, view.OrderStatus)
	require.Equal(t, enums.PaymentStatusPending, view.PaymentStatus)
	require.Contains(t, f.notifier.events, enums.EventPaymentHeld)

	stored := f.reload(t, order.ID)
	require.NotNil(t, stored.PaymentHeldAt)
	require.Equal(t, "pay_1", *stored.PaymentRef)
	require.Equal(t, 3, f.stock(t))

	_, err = f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestVerifyStockConflictFlagsRefund(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	order := f.seedOrder(t, 2, nil)
	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.InventoryItem{}).Where("pharmacy_id = ?", f.pharmacy.ID).Update("stock", 1).Error)

	_, err = f.coord.Verify(context.Background(), signed(intent.OrderRef, "pay_1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Contains(t, f.notifier.events, enums.EventPaymentRefundRequired)

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusPending, stored.OrderStatus)
	require.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
	require.Equal(t, 1, f.stock(t))
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t, orders.GateBlockPayment)
	order := f.seedOrder(t, 1, nil)
	intent, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)

	require.NoError(t, f.coord.MarkFailed(context.Background(), intent.OrderRef, "card declined"))
	stored := f.reload(t, order.ID)
	require.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
	require.Equal(t, enums.OrderStatusPending, stored.OrderStatus)
	require.Contains(t, f.notifier.events, enums.EventPaymentFailed)

	require.NoError(t, f.coord.MarkFailed(context.Background(), intent.OrderRef, "card declined"))

	retry, err := f.coord.CreateIntent(context.Background(), order.ID, order.CustomerID)
	require.NoError(t, err)
	require.Equal(t, "order_2", retry.OrderRef)

	err = f.coord.MarkFailed(context.Background(), "order_missing", "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
