package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metadata"
)

type lyricsResponse struct {
	Lyrics    string `json:"lyrics"`
	Subtitles string `json:"subtitles"` // LRC
}

// Lyrics fetches plain and time-synced lyrics for a track.
func (c *Client) Lyrics(ctx context.Context, trackID string) (metadata.Lyrics, error) {
	var resp lyricsResponse
	if _, err := c.get(ctx, "/tracks/"+url.PathEscape(trackID)+"/lyrics", nil, &resp); err != nil {
		return metadata.Lyrics{}, err
	}
	if resp.Lyrics == "" && resp.Subtitles == "" {
		return metadata.Lyrics{}, media.ErrNotAvailable
	}
	return metadata.Lyrics{Synced: resp.Subtitles, Plain: resp.Lyrics}, nil
}

// Cover downloads the cover image referenced by tags.
func (c *Client) Cover(ctx context.Context, tags metadata.Tags) ([]byte, error) {
	u := tags.CoverURL(c.imageURL, coverSize)
	if u == "" {
		return nil, media.ErrNotAvailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create cover request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("cover %s: %w", tags.CoverID, err)
	}
	return data, nil
}
