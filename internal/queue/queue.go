// Package queue holds download items in discovery order and drives them
// through a single background worker.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmunix/streamgrab/internal/download"
	"github.com/vmunix/streamgrab/internal/events"
	"github.com/vmunix/streamgrab/internal/metrics"
)

// Publisher receives item status events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Item is a snapshot of one queued task.
type Item struct {
	ID         string
	Task       download.Task
	Status     Status
	Path       string
	Reason     download.Reason
	Count      int
	Error      string
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Queue is safe for concurrent use. The foreground enqueues and reads; the
// worker claims and completes.
type Queue struct {
	mu    sync.Mutex
	items []*Item
	pub   Publisher
	log   *slog.Logger
	now   func() time.Time
}

// New creates an empty queue. pub may be nil.
func New(pub Publisher, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		pub: pub,
		log: log.With("component", "queue"),
		now: time.Now,
	}
}

// Enqueue appends a task in the Waiting state and returns its snapshot.
func (q *Queue) Enqueue(ctx context.Context, task download.Task) Item {
	q.mu.Lock()
	it := &Item{
		ID:       uuid.NewString(),
		Task:     task,
		Status:   StatusWaiting,
		QueuedAt: q.now(),
	}
	q.items = append(q.items, it)
	snap := *it
	q.updateGaugeLocked()
	q.mu.Unlock()

	q.log.Debug("item queued", "id", snap.ID, "ref", task.Ref.String())
	q.publish(ctx, &events.ItemQueued{
		BaseEvent: events.NewBaseEvent(events.EventItemQueued, events.EntityItem, snap.ID),
		Ref:       task.Ref.String(),
		Name:      task.Name,
		Quality:   string(task.Quality),
	})
	return snap
}

// Get returns the item with the given ID.
func (q *Queue) Get(id string) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.findLocked(id)
	if it == nil {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *it, nil
}

// List returns snapshots of all items in queue order.
func (q *Queue) List() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}

// Remove deletes an item that is not downloading.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	i := slices.IndexFunc(q.items, func(it *Item) bool { return it.ID == id })
	if i < 0 {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if q.items[i].Status == StatusDownloading {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInProgress, id)
	}
	q.items = slices.Delete(q.items, i, i+1)
	q.updateGaugeLocked()
	q.mu.Unlock()

	q.publish(ctx, &events.ItemRemoved{
		BaseEvent: events.NewBaseEvent(events.EventItemRemoved, events.EntityItem, id),
	})
	return nil
}

// ClearFinished removes every item in a terminal state and returns how many
// were removed.
func (q *Queue) ClearFinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(it *Item) bool { return it.Status.IsTerminal() })
	q.updateGaugeLocked()
	return before - len(q.items)
}

// HasWaiting reports whether any item is still waiting.
func (q *Queue) HasWaiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.ContainsFunc(q.items, func(it *Item) bool { return it.Status == StatusWaiting })
}

// Counts returns the number of items per status.
func (q *Queue) Counts() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.countsLocked()
}

// claim moves the earliest waiting item to Downloading.
func (q *Queue) claim() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.Status != StatusWaiting {
			continue
		}
		it.Status = StatusDownloading
		it.StartedAt = q.now()
		q.updateGaugeLocked()
		return *it, true
	}
	return Item{}, false
}

// complete moves a downloading item to a terminal status.
func (q *Queue) complete(id string, to Status, res download.Result, err error) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.findLocked(id)
	if it == nil {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !it.Status.CanTransitionTo(to) {
		return Item{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, it.Status, to)
	}
	it.Status = to
	it.Path = res.Path
	it.Reason = res.Reason
	it.Count = res.Count
	if err != nil {
		it.Error = err.Error()
	}
	it.FinishedAt = q.now()
	q.updateGaugeLocked()
	return *it, nil
}

func (q *Queue) findLocked(id string) *Item {
	for _, it := range q.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (q *Queue) countsLocked() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, it := range q.items {
		counts[it.Status]++
	}
	return counts
}

func (q *Queue) updateGaugeLocked() {
	labels := make(map[string]int, len(Statuses))
	for s, n := range q.countsLocked() {
		labels[string(s)] = n
	}
	metrics.SetQueueItems(labels)
}

func (q *Queue) publish(ctx context.Context, e events.Event) {
	if q.pub == nil {
		return
	}
	if err := q.pub.Publish(ctx, e); err != nil {
		q.log.Error("failed to publish event", "type", e.EventType(), "error", err)
	}
}
