package dex

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/model"
	"ammPool/internal/storage"
)

type eventTimeKey struct{}

// WithEventTime pins the timestamp LogSink records for events published
// under ctx.
func WithEventTime(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, eventTimeKey{}, ts)
}

// LogSink writes pool events as log records to storage.
type LogSink struct {
	pool    common.Address
	encoder *Encoder
	storage storage.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewLogSink builds an amm.EventSink for the pool at address pool.
func NewLogSink(pool common.Address, storageSink storage.Storage, logger *zap.Logger) (*LogSink, error) {
	if storageSink == nil {
		return nil, fmt.Errorf("storage is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder, err := NewEncoder()
	if err != nil {
		return nil, err
	}
	return &LogSink{
		pool:    pool,
		encoder: encoder,
		storage: storageSink,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Publish encodes event and appends it to storage.
func (s *LogSink) Publish(ctx context.Context, nonce uint64, event amm.Event) error {
	ingestedAt := s.now().UTC()
	ts := ingestedAt
	if pinned, ok := ctx.Value(eventTimeKey{}).(time.Time); ok {
		ts = pinned
	}

	record, err := s.encoder.Encode(s.pool, nonce, uint64(ts.Unix()), event)
	if err != nil {
		return err
	}
	record.IngestedAt = ingestedAt.Format(time.RFC3339Nano)

	if err := s.storage.PutLogBatch([]model.LogRecord{record}); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	s.logger.Debug("event stored", zap.String("event", event.EventName()), zap.Uint64("nonce", nonce))
	return nil
}
