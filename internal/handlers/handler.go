// Package handlers holds bus consumers that react to queue item events.
package handlers

import (
	"context"
	"log/slog"

	"github.com/vmunix/streamgrab/internal/events"
)

// Handler consumes bus events until the bus closes or ctx is done.
type Handler interface {
	// Start blocks while events are processed.
	Start(ctx context.Context) error

	// Name identifies the handler in logs.
	Name() string
}

// BaseHandler owns a bus subscription taken at construction, so events
// published before Start are still seen.
type BaseHandler struct {
	events <-chan events.Event
	logger *slog.Logger
}

// NewBaseHandler subscribes to every event with the given buffer.
func NewBaseHandler(bus *events.Bus, name string, buffer int, logger *slog.Logger) *BaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseHandler{
		events: bus.SubscribeAll(buffer),
		logger: logger.With("component", "handler", "handler", name),
	}
}

// Consume calls fn for each event. It returns nil once the bus is closed
// and the buffer is drained, or ctx.Err() when ctx is cancelled first.
func (h *BaseHandler) Consume(ctx context.Context, fn func(events.Event)) error {
	for {
		select {
		case e, ok := <-h.events:
			if !ok {
				return nil
			}
			fn(e)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Logger returns the handler's logger.
func (h *BaseHandler) Logger() *slog.Logger {
	return h.logger
}
