package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
)

// StockReserver takes stock for an order's lines on the caller's transaction.
type StockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, lines []inventory.Line) error
}

// Notifier queues an order notification without failing the caller.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) bool
}

// TransitionRecorder counts status moves.
type TransitionRecorder interface {
	IncTransition(from, to string)
}

// Confirmer moves a paid order from pending to confirmed and reserves its
// stock in the same transaction.
type Confirmer struct {
	repo     Repository
	stock    StockReserver
	notifier Notifier
	metrics  TransitionRecorder
	now      func() time.Time
}

// NewConfirmer wires the pending to confirmed step.
func NewConfirmer(repo Repository, stock StockReserver, notifier Notifier, metrics TransitionRecorder) (*Confirmer, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	return &Confirmer{
		repo:     repo,
		stock:    stock,
		notifier: notifier,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Confirm applies event (payment_verified or prescription_approved) to order.
// Payment refs already set on order are persisted with the status change.
// The status update is conditional on the order still being pending, so two
// confirmations of the same order cannot both reserve stock.
func (c *Confirmer) Confirm(ctx context.Context, tx *gorm.DB, order *models.Order, event Event, actor Actor) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for confirmation")
	}
	to, err := Transition(order, event, actor)
	if err != nil {
		return err
	}
	if !PrescriptionCleared(order) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "prescription must be approved before the order is confirmed")
	}
	if order.PaymentStatus.Settled() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed")
	}

	now := c.now()
	updates := map[string]any{
		"order_status":       to,
		"payment_status":     enums.PaymentStatusCompleted,
		"confirmed_at":       now,
		"inventory_reserved": true,
	}
	if order.PaymentRef != nil {
		updates["payment_ref"] = *order.PaymentRef
	}
	if order.PaymentSignature != nil {
		updates["payment_signature"] = *order.PaymentSignature
	}

	repo := c.repo.WithTx(tx)
	ok, err := repo.UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}
	if err := c.stock.Reserve(ctx, tx, order.PharmacyID, inventory.LinesFromOrder(order.LineItems)); err != nil {
		return err
	}

	from := order.OrderStatus
	order.OrderStatus = to
	order.PaymentStatus = enums.PaymentStatusCompleted
	order.ConfirmedAt = &now
	order.InventoryReserved = true

	if c.metrics != nil {
		c.metrics.IncTransition(string(from), string(to))
	}
	if c.notifier != nil {
		c.notifier.Notify(ctx, tx, notifications.OrderConfirmed(order, notifications.Actor(actor.UserID, actor.Role)))
	}
	return nil
}
