package alerting

import (
	"context"

	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// Dispatcher applies the cool-down window and hands surviving alerts to a sink
type Dispatcher struct {
	dedup  Deduplicator
	sink   Sink
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil dedup delivers every alert.
func NewDispatcher(dedup Deduplicator, sink Sink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{dedup: dedup, sink: sink, logger: logger.Named("dispatcher")}
}

// Dispatch delivers alert unless an identical one is still cooling down, in which
// case alert.Suppressed is set. Dedup backend errors let the alert through.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.AlertRequest) error {
	if d.dedup != nil {
		fresh, err := d.dedup.Acquire(ctx, alert.DedupKey())
		if err != nil {
			d.logger.Warn("Alert dedup unavailable, delivering anyway",
				zap.String("key", alert.DedupKey()),
				zap.Error(err),
			)
		} else if !fresh {
			alert.Suppressed = true
			d.logger.Debug("Alert suppressed by cool-down", zap.String("key", alert.DedupKey()))
			return nil
		}
	}

	if d.sink == nil {
		return nil
	}
	return d.sink.Deliver(ctx, alert)
}
