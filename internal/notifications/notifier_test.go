package notifications

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox/payloads"
)

type failingEmitter struct {
	calls int
}

func (f *failingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.calls++
	// leave a half-written row behind so the savepoint rollback is observable
	if err := tx.Create(&models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       []byte(`{}`),
	}).Error; err != nil {
		return err
	}
	return errors.New("broker unavailable")
}

type countingRecorder struct {
	failures map[string]int
}

func (c *countingRecorder) IncNotificationFailure(eventType string) {
	if c.failures == nil {
		c.failures = map[string]int{}
	}
	c.failures[eventType]++
}

func openNotifyDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notify_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func seedOrder(t *testing.T, conn *gorm.DB) *models.Order {
	t.Helper()
	order := &models.Order{
		CustomerID:    uuid.New(),
		PharmacyID:    uuid.New(),
		VendorID:      uuid.New(),
		DeliveryType:  enums.DeliveryTypePickup,
		ContactNumber: "9876543210",
		MedicineTotal: decimal.NewFromInt(120),
		TotalAmount:   decimal.NewFromInt(120),
		OrderStatus:   enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func TestNotifyQueuesOutboxRow(t *testing.T) {
	conn := openNotifyDB(t)
	order := seedOrder(t, conn)
	notifier, err := NewNotifier(outbox.NewService(outbox.NewRepository(conn), nil), nil, nil)
	require.NoError(t, err)

	var queued bool
	err = conn.Transaction(func(tx *gorm.DB) error {
		queued = notifier.Notify(context.Background(), tx, OrderCreated(order, Actor(order.CustomerID, enums.ActorRoleCustomer)))
		return nil
	})
	require.NoError(t, err)
	require.True(t, queued)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventOrderCreated, rows[0].EventType)
	require.Equal(t, order.ID, rows[0].AggregateID)
}

func TestNotifyFailureDoesNotAbortTransition(t *testing.T) {
	conn := openNotifyDB(t)
	order := seedOrder(t, conn)
	emitter := &failingEmitter{}
	recorder := &countingRecorder{}
	notifier, err := NewNotifier(emitter, recorder, nil)
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("order_status", enums.OrderStatusCancelled).Error; err != nil {
			return err
		}
		require.False(t, notifier.Notify(context.Background(), tx, OrderCancelled(order, enums.ActorRoleCustomer, nil)))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, emitter.calls)
	require.Equal(t, 1, recorder.failures[string(enums.EventOrderCancelled)])

	var reloaded models.Order
	require.NoError(t, conn.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusCancelled, reloaded.OrderStatus)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestNotifyWithoutTransactionIsNoop(t *testing.T) {
	emitter := &failingEmitter{}
	notifier, err := NewNotifier(emitter, nil, nil)
	require.NoError(t, err)
	require.False(t, notifier.Notify(context.Background(), nil, outbox.DomainEvent{}))
	require.Zero(t, emitter.calls)
}

func TestReadyForPickupCarriesCode(t *testing.T) {
	code := "AB12CD"
	order := &models.Order{ID: uuid.New(), PickupCode: &code}
	event := OrderReadyForPickup(order, nil)
	require.Equal(t, enums.EventOrderReadyForPickup, event.EventType)
	require.Equal(t, enums.AggregateOrder, event.AggregateType)
	data, ok := event.Data.(payloads.OrderReadyForPickupEvent)
	require.True(t, ok)
	require.Equal(t, code, data.PickupCode)
}
