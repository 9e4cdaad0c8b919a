package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmunix/streamgrab/internal/media"
)

// CoverFileName is the name of the cover sidecar in an item's directory.
const CoverFileName = "cover.jpg"

// Lyrics are a track's lyrics. Synced is LRC formatted.
type Lyrics struct {
	Synced string
	Plain  string
}

// LyricsSource fetches lyrics for a track. A track without lyrics returns
// media.ErrNotAvailable.
type LyricsSource interface {
	Lyrics(ctx context.Context, trackID string) (Lyrics, error)
}

// CoverSource fetches cover art bytes.
type CoverSource interface {
	Cover(ctx context.Context, tags Tags) ([]byte, error)
}

// SidecarOptions selects which sidecars are written.
type SidecarOptions struct {
	Lyrics bool
	Cover  bool
}

// SidecarWriter writes lyrics and cover files next to a downloaded file.
// Embedding tags inside the media container is left to external tooling.
type SidecarWriter struct {
	lyrics LyricsSource
	covers CoverSource
	opts   SidecarOptions
	log    *slog.Logger
}

// NewSidecarWriter creates a writer. Either source may be nil.
func NewSidecarWriter(lyrics LyricsSource, covers CoverSource, opts SidecarOptions, log *slog.Logger) *SidecarWriter {
	if log == nil {
		log = slog.Default()
	}
	return &SidecarWriter{
		lyrics: lyrics,
		covers: covers,
		opts:   opts,
		log:    log.With("component", "metadata"),
	}
}

// Write creates the enabled sidecars for the file at path and returns
// their paths. Missing lyrics or cover art is not an error.
func (w *SidecarWriter) Write(ctx context.Context, path string, tags Tags) ([]string, error) {
	var sidecars []string

	if w.opts.Lyrics && w.lyrics != nil && tags.ID != "" {
		p, err := w.writeLyrics(ctx, path, tags)
		if err != nil {
			return sidecars, err
		}
		if p != "" {
			sidecars = append(sidecars, p)
		}
	}

	if w.opts.Cover && w.covers != nil && tags.CoverID != "" {
		p, err := w.writeCover(ctx, path, tags)
		if err != nil {
			return sidecars, err
		}
		if p != "" {
			sidecars = append(sidecars, p)
		}
	}
	return sidecars, nil
}

func (w *SidecarWriter) writeLyrics(ctx context.Context, path string, tags Tags) (string, error) {
	lyrics, err := w.lyrics.Lyrics(ctx, tags.ID)
	if errors.Is(err, media.ErrNotAvailable) {
		w.log.Debug("no lyrics", "track", tags.ID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch lyrics: %w", err)
	}

	text := lyrics.Synced
	if text == "" {
		text = lyrics.Plain
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".lrc"
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write lyrics: %w", err)
	}
	return out, nil
}

func (w *SidecarWriter) writeCover(ctx context.Context, path string, tags Tags) (string, error) {
	data, err := w.covers.Cover(ctx, tags)
	if errors.Is(err, media.ErrNotAvailable) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch cover: %w", err)
	}

	out := filepath.Join(filepath.Dir(path), CoverFileName)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("write cover: %w", err)
	}
	return out, nil
}
