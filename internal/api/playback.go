package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/stream"
)

type playbackResponse struct {
	ManifestMimeType string `json:"manifestMimeType"`
	Manifest         string `json:"manifest"` // base64
}

// PlaybackInfo requests playback information for a track or video at
// quality q. Video qualities are resolved from the manifest's variants, so
// the highest tier is always requested.
func (c *Client) PlaybackInfo(ctx context.Context, ref media.Ref, q media.Quality) (*stream.PlaybackInfo, error) {
	path, err := resourcePath(ref)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"playbackmode":      {"STREAM"},
		"assetpresentation": {"FULL"},
	}
	switch ref.Kind {
	case media.KindTrack:
		params.Set("audioquality", string(q))
	case media.KindVideo:
		params.Set("videoquality", "HIGH")
	default:
		return nil, fmt.Errorf("%w: no playback for %s", media.ErrInvalidRef, ref)
	}

	var resp playbackResponse
	raw, err := c.get(ctx, path+"/playbackinfo", params, &resp)
	if err != nil {
		return nil, err
	}

	manifest, err := base64.StdEncoding.DecodeString(resp.Manifest)
	if err != nil {
		return nil, fmt.Errorf("decode manifest for %s: %w", ref, err)
	}
	return &stream.PlaybackInfo{
		ManifestMimeType: resp.ManifestMimeType,
		Manifest:         manifest,
		Raw:              raw,
	}, nil
}
