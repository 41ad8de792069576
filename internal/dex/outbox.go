package dex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ammPool/internal/amm"
)

type pendingEvent struct {
	nonce uint64
	event amm.Event
	at    time.Time
}

// Outbox holds published events until the operations behind them are
// persisted. Flush forwards them in publish order; Discard drops them.
type Outbox struct {
	mu      sync.Mutex
	next    amm.EventSink
	pending []pendingEvent
	logger  *zap.Logger
	now     func() time.Time
}

// NewOutbox builds an Outbox in front of next.
func NewOutbox(next amm.EventSink, logger *zap.Logger) (*Outbox, error) {
	if next == nil {
		return nil, fmt.Errorf("event sink is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{next: next, logger: logger, now: time.Now}, nil
}

// Publish queues event. The event time is fixed here, not at Flush.
func (o *Outbox) Publish(ctx context.Context, nonce uint64, event amm.Event) error {
	at, ok := ctx.Value(eventTimeKey{}).(time.Time)
	if !ok {
		at = o.now().UTC()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, pendingEvent{nonce: nonce, event: event, at: at})
	return nil
}

// Pending returns the number of queued events.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Flush forwards queued events. Events that failed to forward stay queued.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for len(o.pending) > 0 {
		e := o.pending[0]
		if err := o.next.Publish(WithEventTime(ctx, e.at), e.nonce, e.event); err != nil {
			return fmt.Errorf("flush event nonce %d: %w", e.nonce, err)
		}
		o.pending = o.pending[1:]
	}
	o.pending = nil
	return nil
}

// Discard drops queued events of operations that were rolled back.
func (o *Outbox) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) > 0 {
		o.logger.Debug("events discarded", zap.Int("count", len(o.pending)))
	}
	o.pending = nil
}
