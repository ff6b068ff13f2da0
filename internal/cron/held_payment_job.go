package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
)

const (
	defaultHeldPaymentMaxAge = 24 * time.Hour
	heldPaymentBatchSize     = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleHeldFinder interface {
	FindStaleHeld(ctx context.Context, heldBefore time.Time, limit int) ([]models.Order, error)
}

type outboxExistenceChecker interface {
	Exists(ctx context.Context, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) (bool, error)
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) bool
}

// HeldPaymentJobParams configure the stale held-payment reminder.
type HeldPaymentJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Orders   staleHeldFinder
	Outbox   outboxExistenceChecker
	Notifier notifier
	MaxAge   time.Duration
}

// NewHeldPaymentJob reminds vendors about captured payments whose
// prescription has not been reviewed within MaxAge. Each order is reminded once.
func NewHeldPaymentJob(params HeldPaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultHeldPaymentMaxAge
	}
	return &heldPaymentJob{
		logg:     params.Logger,
		db:       params.DB,
		orders:   params.Orders,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		maxAge:   maxAge,
		now:      time.Now,
	}, nil
}

type heldPaymentJob struct {
	logg     *logger.Logger
	db       txRunner
	orders   staleHeldFinder
	outbox   outboxExistenceChecker
	notifier notifier
	maxAge   time.Duration
	now      func() time.Time
}

func (j *heldPaymentJob) Name() string { return "held-payment-alert" }

func (j *heldPaymentJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	rows, err := j.orders.FindStaleHeld(ctx, cutoff, heldPaymentBatchSize)
	if err != nil {
		return fmt.Errorf("find stale held payments: %w", err)
	}

	var errs error
	reminded := 0
	for i := range rows {
		order := &rows[i]
		sent, err := j.remind(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if sent {
			reminded++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"stale":    len(rows),
		"reminded": reminded,
	})
	j.logg.Info(logCtx, "held payment sweep complete")
	return errs
}

func (j *heldPaymentJob) remind(ctx context.Context, order *models.Order) (bool, error) {
	exists, err := j.outbox.Exists(ctx, enums.EventPaymentHoldStale, enums.AggregateOrder, order.ID)
	if err != nil {
		return false, fmt.Errorf("check reminder: %w", err)
	}
	if exists {
		return false, nil
	}
	sent := false
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		event := notifications.Payment(enums.EventPaymentHoldStale, order, "prescription review overdue", notifications.Actor(uuid.Nil, enums.ActorRoleSystem))
		sent = j.notifier.Notify(ctx, tx, event)
		return nil
	})
	return sent, err
}
