package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/vmunix/streamgrab/internal/events"
)

// Summary counts item outcomes seen by a ReportHandler.
type Summary struct {
	Finished int
	Failed   int
	Skipped  int
	Files    int
}

// ReportHandler prints one line per item transition to a writer. It is the
// foreground view of a one-shot download run.
type ReportHandler struct {
	*BaseHandler
	out      io.Writer
	progress bool

	mu      sync.Mutex
	summary Summary
	names   map[string]string // item id -> ref
}

// NewReportHandler creates a report handler. When progress is false,
// progress events are ignored.
func NewReportHandler(bus *events.Bus, out io.Writer, progress bool, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		BaseHandler: NewBaseHandler(bus, "report", 256, logger),
		out:         out,
		progress:    progress,
		names:       make(map[string]string),
	}
}

// Name returns the handler name.
func (h *ReportHandler) Name() string {
	return "report"
}

// Start begins processing events. It returns nil once the bus is closed
// and every buffered event has been printed.
func (h *ReportHandler) Start(ctx context.Context) error {
	return h.Consume(ctx, h.handle)
}

// Summary returns the outcome counts printed so far. Events the bus dropped
// are missing from it.
func (h *ReportHandler) Summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

func (h *ReportHandler) handle(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev := e.(type) {
	case *events.ItemQueued:
		h.names[ev.EntityID()] = ev.Ref
		h.printf("queued       %s\n", ev.Ref)
	case *events.ItemDownloading:
		h.printf("downloading  %s\n", ev.Ref)
	case *events.ItemProgressed:
		if h.progress {
			h.printf("  %3.0f%%  %s  %s\n", ev.Percent, humanize.Bytes(uint64(max(ev.Bytes, 0))), ev.Ref)
		}
	case *events.ItemFinished:
		h.summary.Finished++
		h.summary.Files += ev.Count
		if ev.Count > 1 {
			h.printf("finished     %s (%d files) %s\n", ev.Ref, ev.Count, ev.Path)
		} else {
			h.printf("finished     %s %s\n", ev.Ref, ev.Path)
		}
	case *events.ItemFailed:
		h.summary.Failed++
		h.printf("failed       %s: %s\n", ev.Ref, ev.Reason)
	case *events.ItemSkipped:
		h.summary.Skipped++
		if ev.Path != "" {
			h.printf("skipped      %s (%s) %s\n", ev.Ref, ev.Reason, ev.Path)
		} else {
			h.printf("skipped      %s (%s)\n", ev.Ref, ev.Reason)
		}
	case *events.ItemRemoved:
		h.printf("removed      %s\n", h.names[ev.EntityID()])
	default:
		h.Logger().Debug("ignoring event", "type", e.EventType())
	}
}

func (h *ReportHandler) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(h.out, format, args...); err != nil {
		h.Logger().Warn("failed to write report", "error", err)
	}
}
