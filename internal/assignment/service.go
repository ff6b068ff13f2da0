package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Metrics records assignment outcomes and status moves.
type Metrics interface {
	IncAssignment(result string)
	IncTransition(from, to string)
}

// Service is the volunteer side of the delivery lifecycle.
type Service interface {
	Accept(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error)
	MarkPickedUp(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error)
	MarkOutForDelivery(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error)
	MarkDelivered(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error)
	ListMyDeliveries(ctx context.Context, volunteerUserID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*orders.OrderList, error)
}

// Deps wires the coordinator.
type Deps struct {
	Repo       Repository
	Orders     orders.Repository
	Volunteers volunteers.Repository
	Tx         txRunner
	Notifier   orders.Notifier
	Metrics    Metrics
	Logger     *logger.Logger
}

type service struct {
	repo       Repository
	orders     orders.Repository
	volunteers volunteers.Repository
	tx         txRunner
	notifier   orders.Notifier
	metrics    Metrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the assignment coordinator.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Volunteers == nil {
		return nil, fmt.Errorf("volunteer repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:       deps.Repo,
		orders:     deps.Orders,
		volunteers: deps.Volunteers,
		tx:         deps.Tx,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logg:       deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Accept(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error) {
	var out orders.OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		volunteerRepo := s.volunteers.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		repo := s.repo.WithTx(tx)

		volunteer, err := volunteerRepo.FindByUserID(ctx, volunteerUserID)
		if err != nil {
			if pkgerrors.IsCode(volunteers.MapLoadError(err), pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeForbidden, "volunteer profile required")
			}
			return volunteers.MapLoadError(err)
		}
		if volunteer.ApprovalStatus != enums.ApprovalStatusApproved {
			return pkgerrors.New(pkgerrors.CodeForbidden, "volunteer is not approved")
		}

		order, err := orderRepo.FindByID(ctx, orderID)
		if err != nil {
			return orders.MapLoadError(err)
		}
		if !available(order) {
			return notAvailable(order)
		}
		pharmacy, err := repo.FindPharmacy(ctx, order.PharmacyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pharmacy")
		}

		destination := geo.Coordinate{Latitude: *order.DeliveryLatitude, Longitude: *order.DeliveryLongitude}
		origin := geo.Coordinate{Latitude: pharmacy.Latitude, Longitude: pharmacy.Longitude}
		pricing := geo.Quote(order.MedicineTotal, order.DeliveryType, origin, destination)

		now := s.now()
		ok, err := repo.Assign(ctx, order.ID, volunteerUserID, pricing, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
		}
		if !ok {
			s.recordAssignment("lost")
			return pkgerrors.New(pkgerrors.CodeConflict, "order is no longer available").
				WithDetails(map[string]any{"order_id": order.ID.String()})
		}
		if err := volunteerRepo.AddActiveOrder(ctx, &models.VolunteerActiveOrder{
			OrderID:     order.ID,
			VolunteerID: volunteer.ID,
			AssignedAt:  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track active order")
		}

		from := order.OrderStatus
		order.VolunteerID = &volunteerUserID
		order.OrderStatus = enums.OrderStatusAssigned
		order.AssignedAt = &now
		order.DeliveryDistanceKm = geo.RoundKm(pricing.DistanceKm)
		order.DeliveryCharges = pricing.DeliveryCharges
		order.TotalAmount = pricing.TotalAmount

		s.recordAssignment("won")
		s.afterTransition(ctx, tx, order, from, volunteerUserID)
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
				"volunteer_id": volunteer.ID.String(),
				"distance_km":  order.DeliveryDistanceKm,
			})
			s.logg.Info(logCtx, "order assigned")
		}
		out = orders.NewVolunteerOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// available is the read-side guard; Assign repeats it atomically.
func available(order *models.Order) bool {
	return order.OrderStatus == enums.OrderStatusConfirmed &&
		order.VolunteerID == nil &&
		order.DeliveryType == enums.DeliveryTypeDelivery &&
		order.DeliveryLatitude != nil && order.DeliveryLongitude != nil
}

func notAvailable(order *models.Order) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "order is not available for assignment").
		WithDetails(map[string]any{"order_id": order.ID.String(), "status": order.OrderStatus})
}

func (s *service) MarkPickedUp(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error) {
	return s.advance(ctx, orderID, volunteerUserID, orders.EventCourierPickedUp, "picked_up_at", nil)
}

func (s *service) MarkOutForDelivery(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error) {
	return s.advance(ctx, orderID, volunteerUserID, orders.EventCourierDispatched, "out_for_delivery_at", nil)
}

func (s *service) MarkDelivered(ctx context.Context, orderID, volunteerUserID uuid.UUID) (*orders.OrderView, error) {
	return s.advance(ctx, orderID, volunteerUserID, orders.EventCourierDelivered, "delivered_at", s.completeDelivery)
}

// completeDelivery frees the volunteer and bumps their delivery count.
func (s *service) completeDelivery(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	repo := s.volunteers.WithTx(tx)
	volunteer, err := repo.FindByUserID(ctx, *order.VolunteerID)
	if err != nil {
		return volunteers.MapLoadError(err)
	}
	if err := repo.RemoveActiveOrder(ctx, volunteer.ID, order.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release active order")
	}
	if err := repo.IncrementDeliveries(ctx, volunteer.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count delivery")
	}
	return nil
}

func (s *service) advance(
	ctx context.Context,
	orderID, volunteerUserID uuid.UUID,
	event orders.Event,
	stampColumn string,
	after func(context.Context, *gorm.DB, *models.Order) error,
) (*orders.OrderView, error) {
	actor := orders.Actor{UserID: volunteerUserID, Role: enums.ActorRoleVolunteer}
	var out orders.OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		order, err := orderRepo.FindByID(ctx, orderID)
		if err != nil {
			return orders.MapLoadError(err)
		}
		to, err := guard(order, event, actor)
		if err != nil {
			return err
		}

		now := s.now()
		from := order.OrderStatus
		ok, err := s.repo.WithTx(tx).Advance(ctx, order.ID, volunteerUserID, from, map[string]any{
			"order_status": to,
			stampColumn:    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery status")
		}
		if !ok {
			return s.explainMiss(ctx, orderRepo, orderID, event, actor)
		}
		order.OrderStatus = to
		stamp(order, stampColumn, now)

		if after != nil {
			if err := after(ctx, tx, order); err != nil {
				return err
			}
		}
		s.afterTransition(ctx, tx, order, from, volunteerUserID)
		out = orders.NewVolunteerOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// guard rejects anyone but the assigned volunteer, then applies the state machine.
func guard(order *models.Order, event orders.Event, actor orders.Actor) (enums.OrderStatus, error) {
	if order.VolunteerID == nil || *order.VolunteerID != actor.UserID {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to you")
	}
	return orders.Transition(order, event, actor)
}

// explainMiss re-reads the order after a conditional update matched nothing.
func (s *service) explainMiss(ctx context.Context, repo orders.Repository, orderID uuid.UUID, event orders.Event, actor orders.Actor) error {
	current, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return orders.MapLoadError(err)
	}
	if _, err := guard(current, event, actor); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed; reload and retry")
}

func stamp(order *models.Order, column string, at time.Time) {
	switch column {
	case "picked_up_at":
		order.PickedUpAt = &at
	case "out_for_delivery_at":
		order.OutForDeliveryAt = &at
	case "delivered_at":
		order.DeliveredAt = &at
	}
}

func (s *service) afterTransition(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, volunteerUserID uuid.UUID) {
	if s.metrics != nil {
		s.metrics.IncTransition(string(from), string(order.OrderStatus))
	}
	if s.notifier != nil {
		progress := orders.ProgressPercent(order.OrderStatus, order.DeliveryType)
		s.notifier.Notify(ctx, tx, notifications.OrderStatusChanged(order, from, progress, notifications.Actor(volunteerUserID, enums.ActorRoleVolunteer)))
	}
}

func (s *service) recordAssignment(result string) {
	if s.metrics != nil {
		s.metrics.IncAssignment(result)
	}
}

func (s *service) ListMyDeliveries(ctx context.Context, volunteerUserID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*orders.OrderList, error) {
	if volunteerUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "volunteer identity missing")
	}
	filter := orders.ListFilter{VolunteerID: &volunteerUserID}
	if status != nil {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		filter.Statuses = []enums.OrderStatus{*status}
	}
	rows, next, err := s.orders.List(ctx, filter, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deliveries")
	}
	out := &orders.OrderList{Orders: make([]orders.OrderView, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, orders.NewVolunteerOrderView(&rows[i]))
	}
	return out, nil
}
