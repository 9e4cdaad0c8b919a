package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/vmunix/streamgrab/internal/media"
)

type hlsManifest struct {
	MimeType string   `json:"mimeType"`
	URLs     []string `json:"urls"`
}

func (r *Resolver) resolveHLS(ctx context.Context, data []byte, q media.Quality) (*media.Manifest, error) {
	var hm hlsManifest
	if err := json.Unmarshal(data, &hm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if len(hm.URLs) == 0 {
		return nil, fmt.Errorf("%w: no playlist url", ErrMalformedManifest)
	}

	playlistURL := hm.URLs[0]
	body, err := r.get(ctx, playlistURL)
	if err != nil {
		return nil, err
	}
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}

	codec := ""
	if listType == m3u8.MASTER {
		master := playlist.(*m3u8.MasterPlaylist)
		variant := selectVariant(master.Variants, q.Height())
		if variant == nil {
			return nil, fmt.Errorf("%w: master playlist has no variants", ErrMalformedManifest)
		}
		codec = variant.Codecs
		r.log.Debug("hls variant selected", "resolution", variant.Resolution,
			"bandwidth", variant.Bandwidth, "wanted", q.Height())

		playlistURL, err = resolveURL(playlistURL, variant.URI)
		if err != nil {
			return nil, err
		}
		body, err = r.get(ctx, playlistURL)
		if err != nil {
			return nil, err
		}
		playlist, listType, err = m3u8.DecodeFrom(bytes.NewReader(body), true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
		}
		if listType != m3u8.MEDIA {
			return nil, fmt.Errorf("%w: variant is not a media playlist", ErrMalformedManifest)
		}
	}

	mediaPlaylist := playlist.(*m3u8.MediaPlaylist)
	var urls []string
	for _, seg := range mediaPlaylist.Segments {
		if seg == nil {
			break
		}
		u, err := resolveURL(playlistURL, seg.URI)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}

	mime := hm.MimeType
	if mime == "" {
		mime = "video/mp2t"
	}
	return &media.Manifest{URLs: urls, MimeType: mime, Codec: codec}, nil
}

// selectVariant returns the variant whose height equals want, stopping at the
// first exact match. Without a match it returns the highest resolution seen.
func selectVariant(variants []*m3u8.Variant, want int) *m3u8.Variant {
	var best *m3u8.Variant
	bestHeight := -1
	for _, v := range variants {
		if v == nil {
			continue
		}
		h := variantHeight(v.Resolution)
		if want > 0 && h == want {
			return v
		}
		if h > bestHeight {
			best, bestHeight = v, h
		}
	}
	return best
}

// variantHeight parses the height from a "1920x1080" resolution attribute.
func variantHeight(resolution string) int {
	_, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse playlist url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse segment url: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}
