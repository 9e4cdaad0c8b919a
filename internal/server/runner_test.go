package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmunix/streamgrab/internal/control"
	"github.com/vmunix/streamgrab/internal/events"
	"github.com/vmunix/streamgrab/internal/queue"
	"go.uber.org/goleak"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWorker returns the queued errors in order, then blocks until canceled.
type fakeWorker struct {
	errs  []error
	calls atomic.Int32
}

func (w *fakeWorker) Run(ctx context.Context) error {
	n := int(w.calls.Add(1)) - 1
	if n < len(w.errs) {
		return w.errs[n]
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunner_StopsCleanlyOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(&fakeWorker{}, nil, nil, nil, nil, Config{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_AbortPausesAndRestarts(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := control.NewGate(true)
	abort := &control.Flag{}
	abort.Set()
	w := &fakeWorker{errs: []error{queue.ErrAborted}}

	r := NewRunner(w, gate, abort, nil, nil, Config{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return w.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, gate.IsOpen(), "abort leaves the queue paused")
	assert.False(t, abort.IsSet(), "abort flag is reset for the next run")

	cancel()
	assert.NoError(t, <-done)
}

func TestRunner_WorkerErrorStopsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := fmt.Errorf("boom")
	r := NewRunner(&fakeWorker{errs: []error{boom}}, nil, nil, nil, nil, Config{}, testLogger())
	assert.ErrorIs(t, r.Run(context.Background()), boom)
}

func TestRunner_PrunesEvents(t *testing.T) {
	db, err := events.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := events.NewEventLog(db)

	old := &events.ItemQueued{BaseEvent: events.NewBaseEvent(events.EventItemQueued, events.EntityItem, "old"), Ref: "track:1"}
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	_, err = log.Append(old)
	require.NoError(t, err)
	_, err = log.Append(&events.ItemQueued{BaseEvent: events.NewBaseEvent(events.EventItemQueued, events.EntityItem, "new"), Ref: "track:2"})
	require.NoError(t, err)

	r := NewRunner(&fakeWorker{}, nil, nil, log, nil, Config{Retention: 24 * time.Hour}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		recent, err := log.Recent(10)
		return err == nil && len(recent) == 1 && recent[0].EntityID == "new"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRunner_ServesAPI(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Reserve a free port, then hand it to the runner.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	r := NewRunner(&fakeWorker{}, nil, nil, nil, mux, Config{Addr: addr}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/ping")
		if err != nil {
			return false
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return string(body) == "pong"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRunner_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	r := NewRunner(&fakeWorker{}, nil, nil, nil, http.NewServeMux(), Config{Addr: ln.Addr().String()}, testLogger())
	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
