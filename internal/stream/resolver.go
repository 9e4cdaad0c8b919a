// Package stream resolves a media reference into an ordered list of segment
// URLs plus codec and encryption metadata.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vmunix/streamgrab/internal/media"
)

// Manifest MIME types returned by the service.
const (
	MimeSegmentList = "application/vnd.segments+json"
	MimeDASH        = "application/dash+xml"
	MimeHLS         = "application/vnd.hls+json"
)

// PlaybackInfo is the provider's answer to a playback request.
type PlaybackInfo struct {
	ManifestMimeType string
	Manifest         []byte // decoded manifest document
	Raw              json.RawMessage
}

// ManifestProvider fetches playback information from the remote API.
type ManifestProvider interface {
	PlaybackInfo(ctx context.Context, ref media.Ref, q media.Quality) (*PlaybackInfo, error)
}

// Resolver turns playback information into a media.Manifest.
// It performs no retries.
type Resolver struct {
	provider ManifestProvider
	client   *http.Client
	log      *slog.Logger
}

// NewResolver creates a resolver. client is used to fetch HLS playlists.
func NewResolver(provider ManifestProvider, client *http.Client, log *slog.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{provider: provider, client: client, log: log}
}

// Resolve returns a freshly built manifest for ref at quality q.
// media.ErrNotAvailable and media.ErrUnauthorized from the provider are
// returned unchanged (wrapped).
func (r *Resolver) Resolve(ctx context.Context, ref media.Ref, q media.Quality) (*media.Manifest, error) {
	info, err := r.provider.PlaybackInfo(ctx, ref, q)
	if err != nil {
		return nil, fmt.Errorf("playback info for %s: %w", ref, err)
	}

	var m *media.Manifest
	switch info.ManifestMimeType {
	case MimeSegmentList:
		m, err = parseSegmentList(info.Manifest)
	case MimeDASH:
		m, err = parseDASH(info.Manifest)
	case MimeHLS:
		m, err = r.resolveHLS(ctx, info.Manifest, q)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedManifest, info.ManifestMimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	if len(m.URLs) == 0 {
		return nil, fmt.Errorf("resolve %s: %w", ref, ErrNoSegments)
	}

	r.log.Debug("stream resolved", "ref", ref.String(), "quality", q,
		"codec", m.Codec, "segments", len(m.URLs), "encrypted", m.Encrypted)
	return m, nil
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch playlist %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
