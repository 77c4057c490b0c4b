package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/edirooss/slot-server/internal/domain/event"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// publishTimeout bounds a single PUBLISH round-trip.
const publishTimeout = time.Second

// EventPublisher forwards session events to a Redis pub/sub channel.
//
// Publish only enqueues; a single Run goroutine performs the network I/O.
// When the queue is full the event is dropped and counted, so a slow or
// unreachable Redis never stalls a session.
type EventPublisher struct {
	log     *zap.Logger
	rdb     *redis.Client
	channel string
	queue   chan event.Event
	dropped atomic.Uint64
}

var _ event.Publisher = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher with a bounded queue.
func NewEventPublisher(log *zap.Logger, rdb *redis.Client, channel string, queueSize int) *EventPublisher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &EventPublisher{
		log:     log.Named("events"),
		rdb:     rdb,
		channel: channel,
		queue:   make(chan event.Event, queueSize),
	}
}

// Publish enqueues ev without blocking.
func (p *EventPublisher) Publish(ev event.Event) {
	select {
	case p.queue <- ev:
	default:
		n := p.dropped.Add(1)
		p.log.Warn("event queue full; dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.Int("slot", ev.Slot),
			zap.Uint64("dropped_total", n))
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (p *EventPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run drains the queue until ctx is cancelled. Always returns nil;
// publish failures are logged and the event is discarded.
func (p *EventPublisher) Run(ctx context.Context) error {
	p.log.Info("event publisher started", zap.String("channel", p.channel))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("event publisher stopped",
				zap.Int("pending", len(p.queue)),
				zap.String("reason", ctx.Err().Error()))
			return nil
		case ev := <-p.queue:
			if err := p.send(ctx, ev); err != nil {
				p.log.Warn("publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
			}
		}
	}
}

func (p *EventPublisher) send(ctx context.Context, ev event.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish (channel=%s): %w", p.channel, err)
	}
	return nil
}

func encodeEvent(ev event.Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}
