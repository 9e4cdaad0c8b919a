package queue

//go:generate mockgen -source=worker.go -destination=mocks/worker_mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vmunix/streamgrab/internal/control"
	"github.com/vmunix/streamgrab/internal/download"
	"github.com/vmunix/streamgrab/internal/events"
	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metrics"
	"github.com/vmunix/streamgrab/internal/segment"
)

// DefaultPollInterval is how long an idle or paused worker sleeps.
const DefaultPollInterval = 500 * time.Millisecond

// Processor downloads one task. *download.Orchestrator satisfies it.
type Processor interface {
	Process(ctx context.Context, task download.Task, onProgress download.ProgressFunc) (download.Result, error)
	CourtesyDelay(ctx context.Context) error
}

// WorkerConfig tunes the worker loop.
type WorkerConfig struct {
	PollInterval time.Duration
}

// Worker is the single consumer of a Queue. Items are processed strictly
// one at a time in queue order.
type Worker struct {
	queue *Queue
	proc  Processor
	gate  *control.Gate
	abort *control.Flag
	poll  time.Duration
	log   *slog.Logger
}

// NewWorker creates a worker. A nil gate is treated as always open.
func NewWorker(q *Queue, proc Processor, gate *control.Gate, abort *control.Flag, cfg WorkerConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if gate == nil {
		gate = control.NewGate(true)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Worker{
		queue: q,
		proc:  proc,
		gate:  gate,
		abort: abort,
		poll:  cfg.PollInterval,
		log:   log.With("component", "worker"),
	}
}

// Run processes items until ctx is canceled or the abort flag is raised.
// The item in flight when either happens is allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started", "poll_interval", w.poll)
	defer w.log.Info("worker stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.abort.IsSet() {
			return ErrAborted
		}
		if w.Step(ctx) {
			continue
		}
		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

// RunUntilDrained processes items until none is waiting. It is used by
// one-shot callers that enqueue everything up front.
func (w *Worker) RunUntilDrained(ctx context.Context) error {
	for w.queue.HasWaiting() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.abort.IsSet() {
			return ErrAborted
		}
		if !w.Step(ctx) {
			if err := w.sleep(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Step processes at most one item and reports whether it did. Nothing is
// consumed while the gate is closed.
func (w *Worker) Step(ctx context.Context) bool {
	if !w.gate.IsOpen() {
		return false
	}
	it, ok := w.queue.claim()
	if !ok {
		return false
	}

	log := w.log.With("id", it.ID, "ref", it.Task.Ref.String())
	log.Info("downloading", "name", it.Task.Name)
	w.queue.publish(ctx, &events.ItemDownloading{
		BaseEvent: events.NewBaseEvent(events.EventItemDownloading, events.EntityItem, it.ID),
		Ref:       it.Task.Ref.String(),
	})

	res, err := w.process(ctx, it)
	if unavailable(res, err) {
		res.Reason, err = download.ReasonUnavailable, nil
	}
	status := statusFor(res, err)

	done, cerr := w.queue.complete(it.ID, status, res, err)
	if cerr != nil {
		// The item was removed or touched behind the worker's back.
		log.Error("failed to complete item", "error", cerr)
		return true
	}
	metrics.RecordItem(string(status))
	w.report(ctx, log, done, err)

	if it.Task.Delay && res.Downloaded && w.queue.HasWaiting() {
		if err := w.proc.CourtesyDelay(ctx); err != nil {
			log.Debug("courtesy delay interrupted", "error", err)
		}
	}
	return true
}

// process runs the processor, converting a panic into an item failure so
// one bad item never stops the loop.
func (w *Worker) process(ctx context.Context, it Item) (res download.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s: %v", it.Task.Ref, r)
		}
	}()
	return w.proc.Process(ctx, it.Task, w.progress(ctx, it.ID))
}

// progress publishes progress whenever the whole percentage changes.
func (w *Worker) progress(ctx context.Context, id string) download.ProgressFunc {
	last := -1.0
	return func(ref media.Ref, p segment.Progress) {
		pct := math.Floor(p.Percent())
		if pct == last {
			return
		}
		last = pct
		w.queue.publish(ctx, &events.ItemProgressed{
			BaseEvent: events.NewBaseEvent(events.EventItemProgressed, events.EntityItem, id),
			Ref:       ref.String(),
			Percent:   pct,
			Bytes:     p.Bytes,
		})
	}
}

func (w *Worker) report(ctx context.Context, log *slog.Logger, it Item, err error) {
	base := func(t string) events.BaseEvent { return events.NewBaseEvent(t, events.EntityItem, it.ID) }
	ref := it.Task.Ref.String()

	switch it.Status {
	case StatusFailed:
		log.Error("item failed", "name", it.Task.Name, "error", err)
		w.queue.publish(ctx, &events.ItemFailed{BaseEvent: base(events.EventItemFailed), Ref: ref, Reason: it.Error})
	case StatusFinished:
		log.Info("item finished", "path", it.Path, "count", it.Count)
		w.queue.publish(ctx, &events.ItemFinished{BaseEvent: base(events.EventItemFinished), Ref: ref, Path: it.Path, Count: it.Count})
	case StatusSkipped:
		log.Info("item skipped", "reason", it.Reason, "path", it.Path)
		w.queue.publish(ctx, &events.ItemSkipped{BaseEvent: base(events.EventItemSkipped), Ref: ref, Reason: string(it.Reason), Path: it.Path})
	}
}

func (w *Worker) sleep(ctx context.Context) error {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// unavailable reports an outcome that only failed because the service has
// nothing to serve. That is a skip, not a failure.
func unavailable(res download.Result, err error) bool {
	return err != nil && !res.Downloaded && errors.Is(err, media.ErrNotAvailable)
}

// statusFor maps a processing outcome to a terminal status. Any other error
// fails the item, even when some files were written.
func statusFor(res download.Result, err error) Status {
	switch {
	case unavailable(res, err):
		return StatusSkipped
	case err != nil:
		return StatusFailed
	case res.Downloaded:
		return StatusFinished
	default:
		return StatusSkipped
	}
}
