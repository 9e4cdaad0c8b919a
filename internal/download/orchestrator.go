package download

//go:generate mockgen -source=orchestrator.go -destination=mocks/orchestrator_mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/vmunix/streamgrab/internal/control"
	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metadata"
	"github.com/vmunix/streamgrab/internal/segment"
	"github.com/vmunix/streamgrab/internal/session"
)

// Catalog looks up items on the service.
type Catalog interface {
	// Lookup returns the current state of ref, including availability.
	Lookup(ctx context.Context, ref media.Ref) (*media.Item, error)
	// Members lists the tracks and videos of a collection in order.
	Members(ctx context.Context, ref media.Ref) ([]media.Item, error)
}

// Resolver builds a fresh manifest for ref at quality q.
type Resolver interface {
	Resolve(ctx context.Context, ref media.Ref, q media.Quality) (*media.Manifest, error)
}

// Fetcher downloads segment URLs into dst.
type Fetcher interface {
	Fetch(ctx context.Context, urls []string, dst string, onProgress segment.ProgressFunc) (string, error)
}

// Decryptor decrypts src into a new file dst using the manifest key token.
type Decryptor interface {
	Decrypt(token, src, dst string) error
}

// Ledger is the download history.
type Ledger interface {
	ShouldSkipDownload(id string) bool
	Add(id string, src media.Source) error
}

// Session runs stream resolution under the credential lock.
type Session interface {
	ModeFor(q media.Quality) session.Mode
	Do(ctx context.Context, want session.Mode, fn func(ctx context.Context) error) error
}

// MetadataWriter writes metadata for the file at path and returns any
// sidecar files it created alongside it.
type MetadataWriter interface {
	Write(ctx context.Context, path string, tags metadata.Tags) ([]string, error)
}

// ContainerConverter remuxes path into format and returns the new path.
type ContainerConverter interface {
	Convert(ctx context.Context, path, format string) (string, error)
}

// Deps are the collaborators of an Orchestrator. Metadata, Converter and
// Abort are optional.
type Deps struct {
	Catalog   Catalog
	Resolver  Resolver
	Fetcher   Fetcher
	Decryptor Decryptor
	Ledger    Ledger
	Session   Session
	Metadata  MetadataWriter
	Converter ContainerConverter
	Abort     *control.Flag
}

// Config holds the orchestrator settings.
type Config struct {
	Root          string // download root
	TempDir       string // "" means os.TempDir()
	Templates     Templates
	MaxNameLength int
	AudioQuality  media.Quality
	VideoQuality  media.Quality
	DelayMin      time.Duration
	DelayMax      time.Duration
	KeepTS        bool // leave videos as .ts
	KeepFLACInMP4 bool // leave FLAC-in-MP4 as .m4a
}

// Orchestrator processes tasks one at a time. It is not safe for
// concurrent use; the queue worker is its only caller.
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
}

// New creates an orchestrator.
func New(deps Deps, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = DefaultMaxNameLength
	}
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = media.QualityHigh
	}
	if cfg.VideoQuality == "" {
		cfg.VideoQuality = "1080"
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  log.With("component", "download"),
	}
}

// Process downloads the task's item, or every member of a collection.
// Unavailable items and skips return a Result with Downloaded false and no
// error. A file only ever appears at its destination complete.
func (o *Orchestrator) Process(ctx context.Context, task Task, onProgress ProgressFunc) (Result, error) {
	if onProgress == nil {
		onProgress = func(media.Ref, segment.Progress) {}
	}
	if task.Ref.Kind == media.KindCollection {
		return o.processCollection(ctx, task, onProgress)
	}
	return o.processItem(ctx, task, onProgress)
}

// CourtesyDelay sleeps a random interval between DelayMin and DelayMax.
func (o *Orchestrator) CourtesyDelay(ctx context.Context) error {
	d := o.cfg.DelayMin
	if spread := o.cfg.DelayMax - o.cfg.DelayMin; spread > 0 {
		d += rand.N(spread)
	}
	if d <= 0 {
		return nil
	}
	o.log.Debug("courtesy delay", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) quality(task Task) media.Quality {
	if task.Quality != "" {
		return task.Quality
	}
	if task.Ref.Kind == media.KindVideo {
		return o.cfg.VideoQuality
	}
	return o.cfg.AudioQuality
}

// lookup fetches the item and reports whether it can be downloaded.
// Catalog calls run under the normal profile so an expired or rejected
// token is refreshed like it is for stream resolution.
func (o *Orchestrator) lookup(ctx context.Context, ref media.Ref) (*media.Item, bool, error) {
	var item *media.Item
	err := o.deps.Session.Do(ctx, session.ModeNormal, func(ctx context.Context) error {
		var err error
		item, err = o.deps.Catalog.Lookup(ctx, ref)
		return err
	})
	if errors.Is(err, media.ErrNotAvailable) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", ref, err)
	}
	return item, item.Ref.Available, nil
}

func (o *Orchestrator) processItem(ctx context.Context, task Task, onProgress ProgressFunc) (Result, error) {
	log := o.log.With("ref", task.Ref.String())

	item, available, err := o.lookup(ctx, task.Ref)
	if err != nil {
		return Result{}, err
	}
	name := task.Name
	if item != nil && item.Name != "" {
		name = item.Name
	}
	if !available {
		log.Info("item not available, skipping", "name", name)
		return Result{Reason: ReasonUnavailable}, nil
	}

	if task.Ref.Kind == media.KindTrack && o.deps.Ledger.ShouldSkipDownload(task.Ref.ID) {
		log.Info(fmt.Sprintf("Skipped item '%s' (already in history).", name))
		return Result{Reason: ReasonDuplicate}, nil
	}

	quality := o.quality(task)
	var manifest *media.Manifest
	err = o.deps.Session.Do(ctx, o.deps.Session.ModeFor(quality), func(ctx context.Context) error {
		m, err := o.deps.Resolver.Resolve(ctx, task.Ref, quality)
		manifest = m
		return err
	})
	if errors.Is(err, media.ErrNotAvailable) {
		log.Info("no stream available, skipping", "name", name, "quality", quality)
		return Result{Reason: ReasonUnavailable}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolve stream: %w", err)
	}

	tags := metadata.ParseTags(item.Raw)
	if tags.Title == "" {
		tags.Title = name
	}
	if tags.ID == "" {
		tags.ID = task.Ref.ID
	}

	conv := o.deps.Converter != nil
	ext, target := container(task.Ref.Kind, manifest, conv && !o.cfg.KeepTS, conv && !o.cfg.KeepFLACInMP4)
	dst, err := DestinationPath(o.cfg.Root, o.cfg.Templates.pick(task), templateVars(task, tags, quality), finalExt(ext, target), o.cfg.MaxNameLength)
	if err != nil {
		return Result{}, err
	}
	dst, skip, err := applySkipPolicy(task.Skip, dst)
	if err != nil {
		return Result{}, err
	}
	if skip {
		log.Info("destination exists, skipping", "name", name, "path", dst, "policy", task.Skip)
		return Result{Path: dst, Reason: ReasonExists}, nil
	}

	if err := o.download(ctx, task.Ref, manifest, tags, ext, target, dst, onProgress); err != nil {
		return Result{}, err
	}
	log.Info("downloaded", "name", name, "path", dst, "quality", quality)

	result := Result{Downloaded: true, Path: dst, Reason: ReasonDownloaded, Count: 1}
	if task.Ref.Kind == media.KindTrack {
		src := task.Source
		if src.Type == "" {
			src = media.ManualSource(task.Ref.Kind)
		}
		if err := o.deps.Ledger.Add(task.Ref.ID, src); err != nil {
			return result, fmt.Errorf("record history: %w", err)
		}
	}
	return result, nil
}

// download runs fetch, decrypt, convert and metadata in a private temp
// directory, then finalizes the result at dst. The temp directory is always
// removed.
func (o *Orchestrator) download(ctx context.Context, ref media.Ref, m *media.Manifest, tags metadata.Tags,
	ext, target, dst string, onProgress ProgressFunc,
) error {
	work, err := os.MkdirTemp(o.cfg.TempDir, "streamgrab-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	part := filepath.Join(work, "stream.part")
	if _, err := o.deps.Fetcher.Fetch(ctx, m.URLs, part, func(p segment.Progress) { onProgress(ref, p) }); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	path := filepath.Join(work, "stream"+ext)
	if m.Encrypted {
		if m.KeyToken == "" {
			return ErrMissingKey
		}
		if err := o.deps.Decryptor.Decrypt(m.KeyToken, part, path); err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
	} else if err := os.Rename(part, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if target != "" {
		converted, err := o.deps.Converter.Convert(ctx, path, target)
		if err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		path = converted
	}

	var sidecars []string
	if o.deps.Metadata != nil {
		sidecars, err = o.deps.Metadata.Write(ctx, path, tags)
		if err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
	}

	if err := Finalize(path, dst); err != nil {
		return err
	}
	if _, err := moveSidecars(sidecars, dst); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) processCollection(ctx context.Context, task Task, onProgress ProgressFunc) (Result, error) {
	log := o.log.With("ref", task.Ref.String())

	coll, available, err := o.lookup(ctx, task.Ref)
	if err != nil {
		return Result{}, err
	}
	if !available {
		log.Info("collection not available, skipping", "name", task.Name)
		return Result{Reason: ReasonUnavailable}, nil
	}

	var members []media.Item
	err = o.deps.Session.Do(ctx, session.ModeNormal, func(ctx context.Context) error {
		var err error
		members, err = o.deps.Catalog.Members(ctx, task.Ref)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("list members of %s: %w", task.Ref, err)
	}

	src := task.Source
	if src.Type == "" {
		src = media.Source{Type: string(task.Ref.Collection), ID: task.Ref.ID, Name: coll.Name}
	}
	log.Info("processing collection", "name", coll.Name, "members", len(members))

	var (
		errs       []error
		downloaded int
		lastPath   string
		reason     = ReasonUnavailable
	)
	for i, m := range members {
		if o.deps.Abort.IsSet() {
			errs = append(errs, ErrAborted)
			break
		}

		sub := Task{
			Ref:      m.Ref,
			Name:     m.Name,
			Template: task.Template,
			Quality:  task.Quality,
			Skip:     task.Skip,
			Source:   src,
		}
		res, err := o.processItem(ctx, sub, onProgress)
		switch {
		case err != nil:
			log.Warn("member failed", "member", m.Ref.String(), "name", m.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", m.Ref, err))
		case res.Downloaded:
			downloaded++
			lastPath = res.Path
			reason = ReasonDownloaded
		case downloaded == 0:
			reason = res.Reason
		}

		if res.Downloaded && task.Delay && i < len(members)-1 {
			if err := o.CourtesyDelay(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}

	result := Result{Downloaded: downloaded > 0, Reason: reason, Count: downloaded}
	if lastPath != "" {
		result.Path = filepath.Dir(lastPath)
	}
	if len(errs) > 0 {
		if downloaded > 0 {
			result.Reason = ReasonPartial
		}
		return result, errors.Join(errs...)
	}
	return result, nil
}
