package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vmunix/streamgrab/internal/api"
	"github.com/vmunix/streamgrab/internal/config"
	"github.com/vmunix/streamgrab/internal/control"
	"github.com/vmunix/streamgrab/internal/convert"
	"github.com/vmunix/streamgrab/internal/decrypt"
	"github.com/vmunix/streamgrab/internal/download"
	"github.com/vmunix/streamgrab/internal/events"
	"github.com/vmunix/streamgrab/internal/history"
	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metadata"
	"github.com/vmunix/streamgrab/internal/queue"
	"github.com/vmunix/streamgrab/internal/segment"
	"github.com/vmunix/streamgrab/internal/session"
	"github.com/vmunix/streamgrab/internal/stream"
)

// errNoCredentials is returned when the credential file holds no normal
// profile.
var errNoCredentials = errors.New("no credentials")

// app is the fully wired download engine for one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sql.DB // nil when the event log is disabled
	eventLog *events.EventLog
	bus      *events.Bus

	creds    session.Credentials
	client   *api.Client
	coord    *session.Coordinator
	history  *history.Store
	gate     *control.Gate
	abort    *control.Flag
	queue    *queue.Queue
	worker   *queue.Worker
	taskOpts download.TaskOptions
}

func qualities(names []string) []media.Quality {
	out := make([]media.Quality, 0, len(names))
	for _, n := range names {
		out = append(out, media.Quality(n))
	}
	return out
}

// segmentClient bounds connection setup and response headers but not the
// body, so a large single-file stream is not cut off mid-transfer. Stalled
// bodies are caught by the downloader's idle timeout instead.
func segmentClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// newApp wires every component from cfg. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	skip, err := download.ParseSkipPolicy(cfg.Download.Skip)
	if err != nil {
		return nil, err
	}
	a.taskOpts = download.TaskOptions{Skip: skip, Delay: cfg.Download.Delay}

	// === Credentials and session ===
	credStore := session.NewFileStore(cfg.Auth.CredentialsPath)
	a.creds, err = credStore.Load()
	if err != nil {
		return nil, err
	}
	sess := session.New(session.Profile{})
	a.client = api.New(api.Config{
		BaseURL:           cfg.API.BaseURL,
		AuthURL:           cfg.API.AuthURL,
		ImageURL:          cfg.API.ImageURL,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Timeout:           cfg.API.Timeout,
	}, sess, logger)
	a.coord = session.NewCoordinator(sess, a.creds, a.client, credStore,
		qualities(cfg.Auth.AlternateQualities), logger.With("component", "session"))

	// === Stores ===
	a.history, err = history.Open(cfg.History.Path, history.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	var (
		lyrics metadata.LyricsSource = a.client
		covers metadata.CoverSource  = a.client
	)
	if cfg.Events.Enabled {
		a.db, err = events.OpenDB(cfg.Events.Path)
		if err != nil {
			return nil, err
		}
		a.eventLog = events.NewEventLog(a.db)

		cache := metadata.NewCache(a.db)
		if n, err := cache.Prune(ctx); err != nil {
			logger.Warn("failed to prune metadata cache", "error", err)
		} else if n > 0 {
			logger.Debug("pruned metadata cache", "count", n)
		}
		lyrics = metadata.NewCachedLyrics(a.client, cache, 0, logger)
		covers = metadata.NewCachedCovers(a.client, cache, 0, logger)
	}
	a.bus = events.NewBus(a.eventLog, logger)

	// === Download engine ===
	a.gate = control.NewGate(true)
	a.abort = &control.Flag{}

	deps := download.Deps{
		Catalog:   a.client,
		Resolver:  stream.NewResolver(a.client, a.client.HTTPClient(), logger.With("component", "stream")),
		Fetcher:   segment.New(segmentClient(cfg.API.Timeout), cfg.API.Timeout, a.abort, logger.With("component", "segment")),
		Decryptor: decrypt.Stream{},
		Ledger:    a.history,
		Session:   a.coord,
		Abort:     a.abort,
	}
	if cfg.Download.Lyrics || cfg.Download.Cover {
		deps.Metadata = metadata.NewSidecarWriter(lyrics, covers, metadata.SidecarOptions{
			Lyrics: cfg.Download.Lyrics,
			Cover:  cfg.Download.Cover,
		}, logger)
	}
	if cfg.Download.ConvertVideo || cfg.Download.ExtractFLAC {
		ff := convert.NewFFmpeg(cfg.FFmpeg.Path, logger)
		if err := ff.Available(); err != nil {
			logger.Warn("container conversion disabled", "error", err)
		} else {
			deps.Converter = ff
		}
	}

	orch := download.New(deps, download.Config{
		Root:    cfg.Download.Root,
		TempDir: cfg.Download.TempDir,
		Templates: download.Templates{
			Track:    cfg.Download.Templates.Track,
			Video:    cfg.Download.Templates.Video,
			Playlist: cfg.Download.Templates.Playlist,
			Mix:      cfg.Download.Templates.Mix,
		},
		MaxNameLength: cfg.Download.MaxNameLength,
		AudioQuality:  media.Quality(cfg.Quality.Audio),
		VideoQuality:  media.Quality(cfg.Quality.Video),
		DelayMin:      cfg.Download.DelayMin,
		DelayMax:      cfg.Download.DelayMax,
		KeepTS:        !cfg.Download.ConvertVideo,
		KeepFLACInMP4: !cfg.Download.ExtractFLAC,
	}, logger)

	a.queue = queue.New(a.bus, logger)
	a.worker = queue.NewWorker(a.queue, orch, a.gate, a.abort, queue.WorkerConfig{
		PollInterval: cfg.Worker.PollInterval,
	}, logger)

	return a, nil
}

// requireCredentials fails when there is nothing to authenticate with.
func (a *app) requireCredentials() error {
	if a.creds.Normal.IsZero() {
		return fmt.Errorf("%w in %s", errNoCredentials, a.cfg.Auth.CredentialsPath)
	}
	return nil
}

func (a *app) close() {
	if err := a.bus.Close(); err != nil {
		a.logger.Warn("closing event bus", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing event log", "error", err)
		}
	}
}
