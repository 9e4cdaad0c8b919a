package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/vmunix/streamgrab/internal/metrics"
)

// subscriber is one delivery channel and the events it wants.
// An empty eventType matches every type; an empty itemID matches every item.
type subscriber struct {
	ch        chan Event
	eventType string
	itemID    string
}

func (s *subscriber) wants(e Event) bool {
	if s.eventType != "" && s.eventType != e.EventType() {
		return false
	}
	if s.itemID != "" && (e.EntityType() != EntityItem || e.EntityID() != s.itemID) {
		return false
	}
	return true
}

// Bus fans queue events out to subscribers and the event log.
// Delivery never blocks the publisher: a full subscriber misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	log    *EventLog // nil disables persistence
	logger *slog.Logger
	closed bool
}

// NewBus creates a bus. log may be nil.
func NewBus(log *EventLog, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		log:    log,
		logger: logger.With("component", "bus"),
	}
}

// Publish persists e (unless it is ephemeral) and offers it to every
// matching subscriber. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	if b.log != nil && !isEphemeral(e) {
		if _, err := b.log.Append(e); err != nil {
			metrics.RecordEventPersistFailure()
			b.logger.Error("failed to persist event", "type", e.EventType(), "item", e.EntityID(), "error", err)
		}
	}

	for _, s := range b.subs {
		if !s.wants(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			metrics.RecordEventDropped(e.EventType())
			// Progress is superseded by the next update, so losing one is routine.
			level := slog.LevelWarn
			if isEphemeral(e) {
				level = slog.LevelDebug
			}
			b.logger.Log(ctx, level, "subscriber full, dropping event",
				"type", e.EventType(), "item", e.EntityID())
		}
	}
	return nil
}

func (b *Bus) add(s *subscriber) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch
	}
	b.subs = append(b.subs, s)
	return s.ch
}

// Subscribe returns a channel receiving events of one type.
func (b *Bus) Subscribe(eventType string, bufferSize int) <-chan Event {
	return b.add(&subscriber{ch: make(chan Event, bufferSize), eventType: eventType})
}

// SubscribeAll returns a channel receiving every event.
func (b *Bus) SubscribeAll(bufferSize int) <-chan Event {
	return b.add(&subscriber{ch: make(chan Event, bufferSize)})
}

// SubscribeItem returns a channel receiving the events of one queue item.
func (b *Bus) SubscribeItem(itemID string, bufferSize int) <-chan Event {
	return b.add(&subscriber{ch: make(chan Event, bufferSize), itemID: itemID})
}

// Unsubscribe removes and closes a channel returned by one of the
// Subscribe methods. Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.subs, func(s *subscriber) bool { return s.ch == ch })
	if i < 0 {
		return
	}
	close(b.subs[i].ch)
	b.subs = slices.Delete(b.subs, i, i+1)
}

// Close closes every subscriber channel. Buffered events can still be
// drained by the receivers. Close is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	return nil
}
