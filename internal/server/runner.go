// Package server runs the long-lived download service: the queue worker,
// event log housekeeping and the local control API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vmunix/streamgrab/internal/control"
	"github.com/vmunix/streamgrab/internal/events"
	"github.com/vmunix/streamgrab/internal/queue"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPruneInterval is how often old events are deleted.
	DefaultPruneInterval = time.Hour

	shutdownTimeout = 10 * time.Second
)

// Config for the runner.
type Config struct {
	// Addr is the control API listen address. Empty disables the API.
	Addr string
	// Retention is how long events are kept. Zero keeps them forever.
	Retention     time.Duration
	PruneInterval time.Duration
}

// Worker is the queue consumer the runner drives. *queue.Worker satisfies it.
type Worker interface {
	Run(ctx context.Context) error
}

// Runner manages the service components.
type Runner struct {
	worker  Worker
	gate    *control.Gate
	abort   *control.Flag
	log     *events.EventLog
	handler http.Handler
	config  Config
	logger  *slog.Logger
}

// NewRunner creates a new runner. eventLog and handler may be nil.
func NewRunner(worker Worker, gate *control.Gate, abort *control.Flag, eventLog *events.EventLog,
	handler http.Handler, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = DefaultPruneInterval
	}
	return &Runner{
		worker:  worker,
		gate:    gate,
		abort:   abort,
		log:     eventLog,
		handler: handler,
		config:  cfg,
		logger:  logger.With("component", "runner"),
	}
}

// Run starts all components.
// It blocks until the context is canceled or a component fails; cancellation
// is a clean stop and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	var ln net.Listener
	if r.config.Addr != "" && r.handler != nil {
		var err error
		if ln, err = net.Listen("tcp", r.config.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", r.config.Addr, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.runWorker(ctx) })

	if r.log != nil && r.config.Retention > 0 {
		g.Go(func() error { return r.runPruner(ctx) })
	}

	if ln != nil {
		g.Go(func() error { return r.serve(ctx, ln) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runWorker restarts the worker after an abort. The queue is left paused so
// the remaining items wait for an explicit resume.
func (r *Runner) runWorker(ctx context.Context) error {
	for {
		err := r.worker.Run(ctx)
		if !errors.Is(err, queue.ErrAborted) {
			return err
		}
		r.logger.Warn("queue aborted, pausing")
		if r.gate != nil {
			r.gate.Close()
		}
		if r.abort != nil {
			r.abort.Reset()
		}
	}
}

func (r *Runner) runPruner(ctx context.Context) error {
	r.prune()

	ticker := time.NewTicker(r.config.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *Runner) prune() {
	n, err := r.log.Prune(r.config.Retention)
	if err != nil {
		r.logger.Error("failed to prune events", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("pruned events", "count", n, "retention", r.config.Retention)
	}
}

func (r *Runner) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("control API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("control API shutdown", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
