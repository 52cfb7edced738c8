package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// Sink delivers alert requests to a downstream consumer
type Sink interface {
	Deliver(ctx context.Context, alert *models.AlertRequest) error
}

// StreamSink appends alerts to a Redis stream for the notification workers
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink creates a Redis stream sink; maxLen <= 0 leaves the stream untrimmed
func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Deliver(ctx context.Context, alert *models.AlertRequest) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":         alert.ID,
			"tourist_id": alert.TouristID,
			"kind":       string(alert.Kind),
			"severity":   string(alert.Severity),
			"data":       string(data),
			"timestamp":  alert.CreatedAt.Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// AlertStore persists alerts
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *models.AlertRequest) error
}

// StoreSink writes alerts to the database
type StoreSink struct {
	store AlertStore
}

// NewStoreSink creates a store sink
func NewStoreSink(store AlertStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Deliver(ctx context.Context, alert *models.AlertRequest) error {
	return s.store.SaveAlert(ctx, alert)
}

// LogSink writes alerts to the log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("alert")}
}

func (s *LogSink) Deliver(_ context.Context, alert *models.AlertRequest) error {
	s.logger.Warn("Safety alert",
		zap.String("alert_id", alert.ID),
		zap.String("tourist_id", alert.TouristID),
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", string(alert.Severity)),
		zap.String("zone_id", alert.ZoneID),
		zap.String("message", alert.Message),
	)
	return nil
}

// MultiSink delivers to every sink, continuing past individual failures
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, alert *models.AlertRequest) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
