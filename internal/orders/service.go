package orders

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/pagination"
	"github.com/angelmondragon/medidrop-backend/pkg/phone"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockLedger is the slice of the inventory ledger orders depend on.
type StockLedger interface {
	Snapshot(ctx context.Context, pharmacyID uuid.UUID) (*inventory.Snapshot, error)
	Release(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, lines []inventory.Line) error
}

// IntentCreator opens a processor payment for a pending order.
type IntentCreator interface {
	CreateIntent(ctx context.Context, orderID, customerID uuid.UUID) (*PaymentIntent, error)
}

// PrescriptionStore persists prescription uploads and returns a stable
// reference. Delete takes that reference back.
type PrescriptionStore interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Service defines the customer and vendor order operations.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderList, error)
	GetCustomerOrder(ctx context.Context, customerID, orderID uuid.UUID) (*OrderView, error)
	Track(ctx context.Context, customerID, orderID uuid.UUID) (*Tracking, error)
	CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderView, error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderList, error)
	UpdateStatusByVendor(ctx context.Context, vendorID, orderID uuid.UUID, status enums.OrderStatus) (*OrderView, error)
	ReviewPrescription(ctx context.Context, vendorID, orderID uuid.UUID, decision enums.PrescriptionDecision, note string) (*OrderView, error)
	MarkReadyForPickup(ctx context.Context, vendorID, orderID uuid.UUID) (*OrderView, error)
	ConfirmPickup(ctx context.Context, vendorID, orderID uuid.UUID, code string) (*OrderView, error)
}

// Settings are the order rules read from configuration.
type Settings struct {
	Gate                 GateMode
	SensitiveKeywords    []string
	PickupCodeAttempts   int
	MaxPrescriptionBytes int64
	PrescriptionPrefix   string
}

// SettingsFromConfig maps the env-backed config onto order settings.
func SettingsFromConfig(orders config.OrdersConfig, gcs config.GCSConfig) Settings {
	return Settings{
		Gate:                 ParseGateMode(orders.PrescriptionGate),
		SensitiveKeywords:    orders.SensitiveKeywords,
		PickupCodeAttempts:   orders.PickupCodeAttempts,
		MaxPrescriptionBytes: int64(orders.MaxPrescriptionMB) << 20,
		PrescriptionPrefix:   gcs.PrescriptionPrefix,
	}
}

// Deps groups the collaborators of the order service.
type Deps struct {
	Repo         Repository
	Tx           txRunner
	Stock        StockLedger
	Confirmer    *Confirmer
	Payments     IntentCreator
	Prescription PrescriptionStore
	Notifier     Notifier
	Metrics      TransitionRecorder
	Logger       *logger.Logger
	Settings     Settings
}

type service struct {
	repo         Repository
	tx           txRunner
	stock        StockLedger
	confirmer    *Confirmer
	payments     IntentCreator
	prescription PrescriptionStore
	notifier     Notifier
	metrics      TransitionRecorder
	logg         *logger.Logger
	settings     Settings
	now          func() time.Time
	codeSource   io.Reader
}

var allowedPrescriptionTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// NewService builds the order service with the required dependencies.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if deps.Confirmer == nil {
		return nil, fmt.Errorf("order confirmer required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("payment intent creator required")
	}
	settings := deps.Settings
	if settings.PickupCodeAttempts <= 0 {
		settings.PickupCodeAttempts = 5
	}
	if settings.MaxPrescriptionBytes <= 0 {
		settings.MaxPrescriptionBytes = 10 << 20
	}
	if settings.Gate == "" {
		settings.Gate = GateBlockPayment
	}
	return &service{
		repo:         deps.Repo,
		tx:           deps.Tx,
		stock:        deps.Stock,
		confirmer:    deps.Confirmer,
		payments:     deps.Payments,
		prescription: deps.Prescription,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		logg:         deps.Logger,
		settings:     settings,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if err := validatePlaceOrder(&input); err != nil {
		return nil, err
	}

	snapshot, err := s.stock.Snapshot(ctx, input.PharmacyID)
	if err != nil {
		return nil, err
	}
	pharmacy := snapshot.Pharmacy
	if pharmacy.ApprovalStatus != enums.ApprovalStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "pharmacy is not accepting orders")
	}

	priced, medicineTotal, err := inventory.PriceAndValidate(snapshot, input.Medicines)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(priced))
	for _, line := range priced {
		names = append(names, line.MedicineName)
	}
	needsPrescription := RequiresPrescription(names, s.settings.SensitiveKeywords)
	if needsPrescription && input.Prescription == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prescription image is required for the selected medicines").
			WithDetails(map[string]any{"field": "prescription"})
	}

	var prescriptionRef *string
	if input.Prescription != nil {
		ref, err := s.storePrescription(ctx, input.CustomerID, input.Prescription)
		if err != nil {
			return nil, err
		}
		prescriptionRef = &ref
	}

	origin := geo.Coordinate{Latitude: pharmacy.Latitude, Longitude: pharmacy.Longitude}
	var destination geo.Coordinate
	if input.Destination != nil {
		destination = *input.Destination
	}
	pricing := geo.Quote(medicineTotal, input.DeliveryType, origin, destination)

	order := &models.Order{
		CustomerID:         input.CustomerID,
		PharmacyID:         pharmacy.ID,
		VendorID:           pharmacy.OwnerID,
		DeliveryType:       input.DeliveryType,
		DeliveryDistanceKm: pricing.DistanceKm,
		ContactNumber:      input.ContactNumber,
		MedicineTotal:      pricing.MedicineTotal,
		DeliveryCharges:    pricing.DeliveryCharges,
		TotalAmount:        pricing.TotalAmount,
		NeedsPrescription:  needsPrescription,
		OrderStatus:        enums.OrderStatusPending,
		PaymentStatus:      enums.PaymentStatusPending,
		LineItems:          make([]models.OrderLineItem, 0, len(priced)),
	}
	if input.DeliveryType == enums.DeliveryTypeDelivery {
		address := input.DeliveryAddress
		order.DeliveryAddress = &address
		order.DeliveryLatitude = &destination.Latitude
		order.DeliveryLongitude = &destination.Longitude
	}
	if prescriptionRef != nil {
		order.PrescriptionImageRef = prescriptionRef
	}
	if needsPrescription {
		pending := enums.PrescriptionStatusPending
		order.PrescriptionStatus = &pending
	}
	for i, line := range priced {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			Position:     i + 1,
			MedicineName: line.MedicineName,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineTotal:    line.LineTotal,
		})
	}

	if err := s.createWithPickupCode(ctx, order); err != nil {
		if prescriptionRef != nil {
			s.discardPrescription(ctx, *prescriptionRef)
		}
		return nil, err
	}

	result := &PlaceOrderResult{Order: NewOrderView(order)}
	if needsPrescription && s.settings.Gate == GateBlockPayment {
		result.PaymentBlocked = true
		return result, nil
	}

	intent, err := s.payments.CreateIntent(ctx, order.ID, order.CustomerID)
	if err != nil {
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() == pkgerrors.CodeDependency {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor unavailable; retry payment for this order").
				WithDetails(map[string]any{"order_id": order.ID})
		}
		return nil, err
	}
	result.Payment = intent
	return result, nil
}

// createWithPickupCode inserts the order, drawing a pickup code for pickup
// orders that is unused among the pharmacy's open pickup orders. A unique
// violation from a concurrent insert draws a fresh code.
func (s *service) createWithPickupCode(ctx context.Context, order *models.Order) error {
	attempts := s.settings.PickupCodeAttempts
	for attempt := 1; ; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if order.DeliveryType == enums.DeliveryTypePickup {
				code, err := s.freshPickupCode(ctx, repo, order.PharmacyID)
				if err != nil {
					return err
				}
				order.PickupCode = &code
			}
			if err := repo.Create(ctx, order); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.IncTransition("", string(enums.OrderStatusPending))
			}
			if s.notifier != nil {
				s.notifier.Notify(ctx, tx, notifications.OrderCreated(order, notifications.Actor(order.CustomerID, enums.ActorRoleCustomer)))
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if pkgerrors.As(err) != nil {
			return err
		}
		if order.DeliveryType == enums.DeliveryTypePickup && db.IsUniqueViolation(err, "") && attempt < attempts {
			order.ID = uuid.Nil
			for i := range order.LineItems {
				order.LineItems[i].ID = uuid.Nil
				order.LineItems[i].OrderID = uuid.Nil
			}
			continue
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
}

func (s *service) freshPickupCode(ctx context.Context, repo Repository, pharmacyID uuid.UUID) (string, error) {
	for i := 0; i < s.settings.PickupCodeAttempts; i++ {
		code, err := GeneratePickupCode(s.codeSource)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate pickup code")
		}
		inUse, err := repo.PickupCodeInUse(ctx, pharmacyID, code)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pickup code")
		}
		if !inUse {
			return code, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a pickup code; retry")
}

func (s *service) storePrescription(ctx context.Context, customerID uuid.UUID, file *PrescriptionFile) (string, error) {
	if s.prescription == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "prescription storage not configured")
	}
	if file.Body == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "prescription file is empty")
	}
	if file.Size > s.settings.MaxPrescriptionBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "prescription file is too large").
			WithDetails(map[string]any{"max_bytes": s.settings.MaxPrescriptionBytes})
	}
	body, err := io.ReadAll(io.LimitReader(file.Body, s.settings.MaxPrescriptionBytes+1))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read prescription file")
	}
	if len(body) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "prescription file is empty")
	}
	if int64(len(body)) > s.settings.MaxPrescriptionBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "prescription file is too large").
			WithDetails(map[string]any{"max_bytes": s.settings.MaxPrescriptionBytes})
	}
	contentType := strings.Split(http.DetectContentType(body), ";")[0]
	ext, ok := allowedPrescriptionTypes[contentType]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "prescription must be a JPEG, PNG, WebP or PDF file").
			WithDetails(map[string]any{"content_type": contentType})
	}

	object := path.Join(s.settings.PrescriptionPrefix, customerID.String(), uuid.NewString()+ext)
	ref, err := s.prescription.Upload(ctx, object, contentType, bytes.NewReader(body))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload prescription")
	}
	return ref, nil
}

// discardPrescription removes an upload whose order never got written.
func (s *service) discardPrescription(ctx context.Context, ref string) {
	if err := s.prescription.Delete(ctx, ref); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "prescription_ref", ref), "orders.prescription_cleanup_failed", err)
	}
}

func validatePlaceOrder(input *PlaceOrderInput) error {
	if input.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	if input.PharmacyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "pharmacy id is required")
	}
	if len(input.Medicines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one medicine is required")
	}
	if !input.DeliveryType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery type must be delivery or pickup")
	}
	contact, ok := phone.Normalize(input.ContactNumber)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "a valid contact number is required")
	}
	input.ContactNumber = contact
	switch input.DeliveryType {
	case enums.DeliveryTypeDelivery:
		input.DeliveryAddress = strings.TrimSpace(input.DeliveryAddress)
		if input.DeliveryAddress == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required for delivery orders")
		}
		if input.Destination == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery location is required for delivery orders")
		}
		if err := input.Destination.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery location")
		}
	case enums.DeliveryTypePickup:
		input.DeliveryAddress = ""
		input.Destination = nil
	}
	return nil
}

func (s *service) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	return s.list(ctx, ListFilter{CustomerID: &customerID}, status, params, NewOrderView)
}

func (s *service) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	return s.list(ctx, ListFilter{VendorID: &vendorID}, status, params, NewVendorOrderView)
}

func (s *service) list(ctx context.Context, filter ListFilter, status *enums.OrderStatus, params pagination.Params, render func(*models.Order) OrderView) (*OrderList, error) {
	if status != nil {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		filter.Statuses = []enums.OrderStatus{*status}
	}
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderView, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, render(&rows[i]))
	}
	return out, nil
}

func (s *service) GetCustomerOrder(ctx context.Context, customerID, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.loadForCustomer(ctx, s.repo, customerID, orderID)
	if err != nil {
		return nil, err
	}
	view := NewOrderView(order)
	return &view, nil
}

func (s *service) Track(ctx context.Context, customerID, orderID uuid.UUID) (*Tracking, error) {
	order, err := s.loadForCustomer(ctx, s.repo, customerID, orderID)
	if err != nil {
		return nil, err
	}
	return &Tracking{
		Order:    NewOrderView(order),
		Progress: ProgressPercent(order.OrderStatus, order.DeliveryType),
		Timeline: Timeline(order),
	}, nil
}

func (s *service) CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderView, error) {
	var out OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if err := authorizeCancel(order, actor); err != nil {
			return err
		}
		if err := s.cancelLocked(ctx, tx, repo, order, actor, reason); err != nil {
			return err
		}
		if actor.Role == enums.ActorRoleVendor {
			out = NewVendorOrderView(order)
		} else {
			out = NewOrderView(order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func authorizeCancel(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleCustomer:
		if order.CustomerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	case enums.ActorRoleVendor:
		if order.VendorID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot cancel orders")
	}
	return nil
}

// cancelLocked cancels order inside tx: stock reserved for it is returned,
// the courier's active-order entry is dropped and a refund notice is queued
// when money was taken.
func (s *service) cancelLocked(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, actor Actor, reason string) error {
	to, err := Transition(order, EventCancel, actor)
	if err != nil {
		return err
	}
	now := s.now()
	updates := map[string]any{
		"order_status":       to,
		"cancelled_at":       now,
		"inventory_reserved": false,
	}
	reason = strings.TrimSpace(reason)
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	from := order.OrderStatus
	ok, err := repo.UpdateIfStatus(ctx, order.ID, from, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while cancelling; reload and retry")
	}
	if order.InventoryReserved {
		if err := s.stock.Release(ctx, tx, order.PharmacyID, inventory.LinesFromOrder(order.LineItems)); err != nil {
			return err
		}
	}
	if order.VolunteerID != nil {
		if err := repo.RemoveActiveAssignment(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release volunteer assignment")
		}
	}

	order.OrderStatus = to
	order.CancelledAt = &now
	order.InventoryReserved = false
	if reason != "" {
		order.CancelReason = &reason
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(from), string(to))
	}
	if s.notifier != nil {
		eventActor := notifications.Actor(actor.UserID, actor.Role)
		s.notifier.Notify(ctx, tx, notifications.OrderCancelled(order, actor.Role, eventActor))
		if PaymentSecured(order) {
			s.notifier.Notify(ctx, tx, notifications.Payment(enums.EventPaymentRefundRequired, order, "order cancelled", eventActor))
		}
	}
	return nil
}

func (s *service) UpdateStatusByVendor(ctx context.Context, vendorID, orderID uuid.UUID, status enums.OrderStatus) (*OrderView, error) {
	switch status {
	case enums.OrderStatusReadyForPickup:
		return s.MarkReadyForPickup(ctx, vendorID, orderID)
	case enums.OrderStatusCancelled:
		return s.CancelOrder(ctx, Actor{UserID: vendorID, Role: enums.ActorRoleVendor}, orderID, "cancelled by pharmacy")
	default:
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
		}
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendors may only mark orders ready for pickup or cancelled")
	}
}

func (s *service) ReviewPrescription(ctx context.Context, vendorID, orderID uuid.UUID, decision enums.PrescriptionDecision, note string) (*OrderView, error) {
	if !decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approve or reject")
	}
	actor := Actor{UserID: vendorID, Role: enums.ActorRoleVendor}
	note = strings.TrimSpace(note)

	var out OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadForVendor(ctx, repo, vendorID, orderID)
		if err != nil {
			return err
		}
		if !order.NeedsPrescription || order.PrescriptionStatus == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "order does not require a prescription")
		}
		if *order.PrescriptionStatus != enums.PrescriptionStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "prescription already reviewed").
				WithDetails(map[string]any{"prescription_status": *order.PrescriptionStatus})
		}
		if order.OrderStatus != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "prescription can only be reviewed on pending orders").
				WithDetails(map[string]any{"status": order.OrderStatus})
		}

		status := enums.PrescriptionStatusApproved
		if decision == enums.PrescriptionDecisionReject {
			status = enums.PrescriptionStatusRejected
		}
		updates := map[string]any{"prescription_status": status}
		if note != "" {
			updates["prescription_note"] = note
		}
		ok, err := repo.UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update prescription status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
		}
		order.PrescriptionStatus = &status
		if note != "" {
			order.PrescriptionNote = &note
		}
		if s.notifier != nil {
			s.notifier.Notify(ctx, tx, notifications.PrescriptionReviewed(order, notifications.Actor(vendorID, enums.ActorRoleVendor)))
		}

		switch status {
		case enums.PrescriptionStatusApproved:
			if s.settings.Gate == GateHoldCapture && order.PaymentHeldAt != nil {
				if err := s.confirmHeld(ctx, tx, repo, order, actor); err != nil {
					return err
				}
			}
		case enums.PrescriptionStatusRejected:
			reason := "prescription rejected"
			if note != "" {
				reason = reason + ": " + note
			}
			if err := s.cancelLocked(ctx, tx, repo, order, actor, reason); err != nil {
				return err
			}
		}
		out = NewVendorOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// confirmHeld confirms an approved order whose payment was held for review.
// If the stock ran out meanwhile the approval stands, the held payment is
// released as failed and a refund is requested.
func (s *service) confirmHeld(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, actor Actor) error {
	const savepoint = "confirm_held_payment"
	if err := tx.SavePoint(savepoint).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm held payment")
	}
	err := s.confirmer.Confirm(ctx, tx, order, EventPrescriptionApproved, actor)
	if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return err
	}
	if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "roll back held payment confirmation")
	}

	ok, upErr := repo.UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, map[string]any{
		"payment_status":  enums.PaymentStatusFailed,
		"payment_held_at": nil,
	})
	if upErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, upErr, "release held payment")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}
	order.PaymentStatus = enums.PaymentStatusFailed
	order.PaymentHeldAt = nil

	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"error": err.Error(),
		}), "held payment refunded; stock gone at approval")
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, tx, notifications.Payment(enums.EventPaymentRefundRequired, order, err.Error(), notifications.Actor(actor.UserID, actor.Role)))
	}
	return nil
}

func (s *service) MarkReadyForPickup(ctx context.Context, vendorID, orderID uuid.UUID) (*OrderView, error) {
	actor := Actor{UserID: vendorID, Role: enums.ActorRoleVendor}
	var out OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadForVendor(ctx, repo, vendorID, orderID)
		if err != nil {
			return err
		}
		to, err := Transition(order, EventVendorReady, actor)
		if err != nil {
			return err
		}
		now := s.now()
		from := order.OrderStatus
		ok, err := repo.UpdateIfStatus(ctx, order.ID, from, map[string]any{
			"order_status":        to,
			"ready_for_pickup_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark ready for pickup")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed; reload and retry")
		}
		order.OrderStatus = to
		order.ReadyForPickupAt = &now
		if s.metrics != nil {
			s.metrics.IncTransition(string(from), string(to))
		}
		if s.notifier != nil {
			s.notifier.Notify(ctx, tx, notifications.OrderReadyForPickup(order, notifications.Actor(vendorID, enums.ActorRoleVendor)))
		}
		out = NewVendorOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) ConfirmPickup(ctx context.Context, vendorID, orderID uuid.UUID, code string) (*OrderView, error) {
	actor := Actor{UserID: vendorID, Role: enums.ActorRoleVendor}
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup code is required")
	}
	var out OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadForVendor(ctx, repo, vendorID, orderID)
		if err != nil {
			return err
		}
		to, err := Transition(order, EventPickupConfirmed, actor)
		if err != nil {
			return err
		}
		if !PickupCodeMatches(order.PickupCode, code) {
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, order.ID.String())
				logCtx = s.logg.WithPharmacyID(logCtx, order.PharmacyID.String())
				s.logg.Warn(logCtx, "pickup code mismatch")
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid pickup code")
		}
		now := s.now()
		from := order.OrderStatus
		ok, err := repo.UpdateIfStatus(ctx, order.ID, from, map[string]any{
			"order_status":             to,
			"picked_up_by_customer_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm pickup")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed; reload and retry")
		}
		order.OrderStatus = to
		order.PickedUpByCustomerAt = &now
		if s.metrics != nil {
			s.metrics.IncTransition(string(from), string(to))
		}
		if s.notifier != nil {
			s.notifier.Notify(ctx, tx, notifications.OrderStatusChanged(order, from, ProgressPercent(to, order.DeliveryType), notifications.Actor(vendorID, enums.ActorRoleVendor)))
		}
		out = NewVendorOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) loadForCustomer(ctx context.Context, repo Repository, customerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) loadForVendor(ctx context.Context, repo Repository, vendorID, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if order.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}
