package notifications

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
)

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type failureRecorder interface {
	IncNotificationFailure(eventType string)
}

// Notifier queues order notifications on the caller's transaction. A failed
// enqueue is rolled back to a savepoint and never fails the state change
// that triggered it.
type Notifier struct {
	outbox  emitter
	metrics failureRecorder
	logg    *logger.Logger
}

// NewNotifier wires the outbox writer used for order notifications.
func NewNotifier(outbox emitter, metrics failureRecorder, logg *logger.Logger) (*Notifier, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Notifier{outbox: outbox, metrics: metrics, logg: logg}, nil
}

// Notify writes event inside tx and reports whether it was queued.
func (n *Notifier) Notify(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) bool {
	if n == nil || tx == nil {
		return false
	}
	savepoint := "notify_" + savepointSuffix(event)
	if err := tx.SavePoint(savepoint).Error; err != nil {
		n.fail(ctx, event, err)
		return false
	}
	if err := n.outbox.Emit(ctx, tx, event); err != nil {
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil && n.logg != nil {
			n.logg.Error(ctx, "rollback notification savepoint", rbErr)
		}
		n.fail(ctx, event, err)
		return false
	}
	return true
}

func (n *Notifier) fail(ctx context.Context, event outbox.DomainEvent, err error) {
	if n.metrics != nil {
		n.metrics.IncNotificationFailure(string(event.EventType))
	}
	if n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
		"error":        err.Error(),
	})
	n.logg.Warn(ctx, "notification not queued")
}

func savepointSuffix(event outbox.DomainEvent) string {
	out := make([]byte, 0, 12)
	for _, r := range event.AggregateID.String() {
		if r == '-' {
			continue
		}
		out = append(out, byte(r))
		if len(out) == cap(out) {
			break
		}
	}
	return string(out)
}
