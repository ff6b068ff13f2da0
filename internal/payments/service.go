package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

const callbackConsumer = "payments.callback"

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Deduper remembers processed callbacks.
type Deduper interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, key string) (bool, error)
	Delete(ctx context.Context, consumer, key string) error
}

// Metrics records processor latency and verification outcomes.
type Metrics interface {
	IncVerification(result string)
	ObserveProcessor(provider, result string, duration time.Duration)
}

// Settings holds the payment rules read from configuration.
type Settings struct {
	Secret           string
	Currency         string
	Gate             orders.GateMode
	ProcessorTimeout time.Duration
}

// SettingsFromConfig maps env-backed config onto payment settings.
func SettingsFromConfig(payments config.PaymentsConfig, ordersCfg config.OrdersConfig) Settings {
	return Settings{
		Secret:           payments.KeySecret,
		Currency:         ordersCfg.Currency,
		Gate:             orders.ParseGateMode(ordersCfg.PrescriptionGate),
		ProcessorTimeout: payments.ProcessorTimeout,
	}
}

// VerifyInput is a processor callback or client-side payment confirmation.
// CustomerID is set when the customer submits it and restricts the lookup to
// their own orders.
type VerifyInput struct {
	OrderRef   string
	PaymentRef string
	Signature  string
	CustomerID *uuid.UUID
}

// Deps groups the collaborators of the coordinator.
type Deps struct {
	Repo      orders.Repository
	Tx        txRunner
	Confirmer *orders.Confirmer
	Processor Processor
	Dedupe    Deduper
	Notifier  orders.Notifier
	Metrics   Metrics
	Logger    *logger.Logger
	Settings  Settings
}

// Coordinator opens processor payments for orders and applies their results.
type Coordinator struct {
	repo      orders.Repository
	tx        txRunner
	confirmer *orders.Confirmer
	processor Processor
	dedupe    Deduper
	notifier  orders.Notifier
	metrics   Metrics
	logg      *logger.Logger
	settings  Settings
	now       func() time.Time
}

// NewCoordinator validates deps and returns a coordinator.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Confirmer == nil {
		return nil, fmt.Errorf("order confirmer required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if strings.TrimSpace(deps.Settings.Secret) == "" {
		return nil, fmt.Errorf("payment signing secret required")
	}
	settings := deps.Settings
	if settings.Currency == "" {
		settings.Currency = "INR"
	}
	if settings.ProcessorTimeout <= 0 {
		settings.ProcessorTimeout = 10 * time.Second
	}
	if settings.Gate == "" {
		settings.Gate = orders.GateBlockPayment
	}
	return &Coordinator{
		repo:      deps.Repo,
		tx:        deps.Tx,
		confirmer: deps.Confirmer,
		processor: deps.Processor,
		dedupe:    deps.Dedupe,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
		settings:  settings,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateIntent registers the order total with the processor and stores the
// processor order ref on the order.
func (c *Coordinator) CreateIntent(ctx context.Context, orderID, customerID uuid.UUID) (*orders.PaymentIntent, error) {
	order, err := c.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orders.MapLoadError(err)
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.OrderStatus != enums.OrderStatusPending || !order.PaymentStatus.Retryable() || order.PaymentHeldAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.OrderStatus, "payment_status": order.PaymentStatus})
	}
	if c.settings.Gate == orders.GateBlockPayment && !orders.PrescriptionCleared(order) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment opens once the pharmacy approves the prescription")
	}

	amountMinor := order.TotalAmount.Mul(hundred).Round(0).IntPart()
	params := CreateOrderParams{
		AmountMinor: amountMinor,
		Currency:    c.settings.Currency,
		Receipt:     order.ID.String()[:8] + "-" + fmt.Sprint(c.now().Unix()),
		Notes: map[string]string{
			"order_id":    order.ID.String(),
			"pharmacy_id": order.PharmacyID.String(),
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, c.settings.ProcessorTimeout)
	defer cancel()
	started := time.Now()
	processorOrder, err := c.processor.CreateOrder(callCtx, params)
	if c.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		c.metrics.ObserveProcessor(c.processor.Name(), result, time.Since(started))
	}
	if err != nil {
		if c.logg != nil {
			logCtx := c.logg.WithOrderID(ctx, order.ID.String())
			c.logg.Error(logCtx, "payment processor create order failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor unavailable").
			WithDetails(map[string]any{"order_id": order.ID})
	}
	if strings.TrimSpace(processorOrder.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor returned no order id").
			WithDetails(map[string]any{"order_id": order.ID})
	}

	updates := map[string]any{
		"payment_order_ref": processorOrder.ID,
		"payment_status":    enums.PaymentStatusPending,
	}
	ok, err := c.repo.UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment order ref")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while opening payment")
	}

	return &orders.PaymentIntent{
		Provider:    c.processor.Name(),
		KeyID:       c.processor.KeyID(),
		OrderRef:    processorOrder.ID,
		Amount:      order.TotalAmount,
		AmountMinor: amountMinor,
		Currency:    c.settings.Currency,
	}, nil
}

// Verify checks the processor signature and applies the payment to its order.
// A verified payment confirms the order and reserves stock; under the
// hold_capture gate an unapproved prescription order only records the hold.
// Replays of an applied payment return the current order.
func (c *Coordinator) Verify(ctx context.Context, input VerifyInput) (*orders.OrderView, error) {
	input.OrderRef = strings.TrimSpace(input.OrderRef)
	input.PaymentRef = strings.TrimSpace(input.PaymentRef)
	input.Signature = strings.TrimSpace(input.Signature)
	if input.OrderRef == "" || input.PaymentRef == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order ref, payment ref and signature are required")
	}

	if !SignatureValid(c.settings.Secret, input.OrderRef, input.PaymentRef, input.Signature) {
		c.recordVerification("integrity")
		if c.logg != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"security":          true,
				"payment_order_ref": input.OrderRef,
			})
			c.logg.Warn(logCtx, "payment signature mismatch")
		}
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "invalid payment signature")
	}

	dedupeKey := input.OrderRef + "|" + input.PaymentRef
	if c.dedupe != nil {
		seen, err := c.dedupe.CheckAndMarkProcessed(ctx, callbackConsumer, dedupeKey)
		if err != nil {
			if c.logg != nil {
				c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment callback dedupe unavailable")
			}
		} else if seen {
			order, err := c.loadByRef(ctx, c.repo, input)
			if err != nil {
				return nil, err
			}
			c.recordVerification("replay")
			view := orders.NewOrderView(order)
			return &view, nil
		}
	}

	view, err := c.apply(ctx, input)
	if err != nil {
		if c.dedupe != nil {
			if delErr := c.dedupe.Delete(ctx, callbackConsumer, dedupeKey); delErr != nil && c.logg != nil {
				logCtx := c.logg.WithFields(ctx, map[string]any{
					"payment_order_ref": input.OrderRef,
					"error":             delErr.Error(),
				})
				c.logg.Warn(logCtx, "payment callback dedupe release failed")
			}
		}
		return nil, err
	}
	return view, nil
}

func (c *Coordinator) apply(ctx context.Context, input VerifyInput) (*orders.OrderView, error) {
	actor := orders.SystemActor
	if input.CustomerID != nil {
		actor = orders.Actor{UserID: *input.CustomerID, Role: enums.ActorRoleCustomer}
	}

	var view orders.OrderView
	var stockConflict error
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		order, err := c.loadByRef(ctx, repo, input)
		if err != nil {
			return err
		}

		if replay, err := replayOf(order, input.PaymentRef); replay || err != nil {
			if err == nil {
				c.recordVerification("replay")
				view = orders.NewOrderView(order)
			}
			return err
		}

		ref, signature := input.PaymentRef, input.Signature
		order.PaymentRef = &ref
		order.PaymentSignature = &signature

		if !orders.PrescriptionCleared(order) {
			if c.settings.Gate == orders.GateBlockPayment {
				c.recordVerification("blocked")
				return pkgerrors.New(pkgerrors.CodeStateConflict, "prescription must be approved before payment")
			}
			return c.hold(ctx, tx, repo, order, actor, &view)
		}

		if err := c.confirmer.Confirm(ctx, tx, order, orders.EventPaymentVerified, actor); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				stockConflict = err
			}
			return err
		}
		c.recordVerification("verified")
		view = orders.NewOrderView(order)
		return nil
	})
	if err != nil {
		if stockConflict != nil {
			c.flagRefund(ctx, input, stockConflict)
		}
		return nil, err
	}
	return &view, nil
}

// replayOf reports whether the order already carries this payment. A
// different payment against a settled order is a conflict.
func replayOf(order *models.Order, paymentRef string) (bool, error) {
	settled := orders.PaymentSecured(order)
	if !settled {
		if order.OrderStatus != enums.OrderStatusPending {
			return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": order.OrderStatus})
		}
		return false, nil
	}
	if order.PaymentRef != nil && *order.PaymentRef == paymentRef {
		return true, nil
	}
	return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order already has a payment")
}

func (c *Coordinator) hold(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, actor orders.Actor, view *orders.OrderView) error {
	now := c.now()
	ok, err := repo.UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, map[string]any{
		"payment_ref":       *order.PaymentRef,
		"payment_signature": *order.PaymentSignature,
		"payment_held_at":   now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record held payment")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}
	order.PaymentHeldAt = &now
	c.recordVerification("held")
	if c.notifier != nil {
		c.notifier.Notify(ctx, tx, notifications.Payment(enums.EventPaymentHeld, order, "awaiting prescription review", notifications.Actor(actor.UserID, actor.Role)))
	}
	*view = orders.NewOrderView(order)
	return nil
}

// flagRefund records a captured payment whose order could not be stocked.
// The order stays pending with the payment marked failed so the customer can
// cancel or retry.
func (c *Coordinator) flagRefund(ctx context.Context, input VerifyInput, cause error) {
	c.recordVerification("stock_conflict")
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		order, err := repo.FindByPaymentOrderRef(ctx, input.OrderRef)
		if err != nil {
			return err
		}
		ok, err := repo.UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, map[string]any{
			"payment_ref":       input.PaymentRef,
			"payment_signature": input.Signature,
			"payment_status":    enums.PaymentStatusFailed,
		})
		if err != nil || !ok {
			return err
		}
		order.PaymentStatus = enums.PaymentStatusFailed
		if c.notifier != nil {
			c.notifier.Notify(ctx, tx, notifications.Payment(enums.EventPaymentRefundRequired, order, cause.Error(), notifications.Actor(uuid.Nil, enums.ActorRoleSystem)))
		}
		return nil
	})
	if err != nil && c.logg != nil {
		logCtx := c.logg.WithField(ctx, "payment_order_ref", input.OrderRef)
		c.logg.Error(logCtx, "record refund for unstocked payment", err)
	}
}

// MarkFailed records a processor failure callback. The order stays pending
// and can open a new intent.
func (c *Coordinator) MarkFailed(ctx context.Context, orderRef, reason string) error {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order ref is required")
	}
	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		order, err := repo.FindByPaymentOrderRef(ctx, orderRef)
		if err != nil {
			return orders.MapLoadError(err)
		}
		if orders.PaymentSecured(order) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already captured")
		}
		if order.PaymentStatus == enums.PaymentStatusFailed {
			return nil
		}
		ok, err := repo.UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
		}
		order.PaymentStatus = enums.PaymentStatusFailed
		c.recordVerification("failed")
		if c.notifier != nil {
			c.notifier.Notify(ctx, tx, notifications.Payment(enums.EventPaymentFailed, order, strings.TrimSpace(reason), notifications.Actor(uuid.Nil, enums.ActorRoleSystem)))
		}
		return nil
	})
}

func (c *Coordinator) loadByRef(ctx context.Context, repo orders.Repository, input VerifyInput) (*models.Order, error) {
	order, err := repo.FindByPaymentOrderRef(ctx, input.OrderRef)
	if err != nil {
		return nil, orders.MapLoadError(err)
	}
	if input.CustomerID != nil && order.CustomerID != *input.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (c *Coordinator) recordVerification(result string) {
	if c.metrics != nil {
		c.metrics.IncVerification(result)
	}
}
