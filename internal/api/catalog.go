package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/vmunix/streamgrab/internal/media"
)

// catalogEntry holds the fields the client itself needs from an item or
// collection document; everything else stays in the raw JSON.
type catalogEntry struct {
	ID             flexID `json:"id"`
	UUID           string `json:"uuid"`
	Title          string `json:"title"`
	Name           string `json:"name"`
	AllowStreaming *bool  `json:"allowStreaming"`
	StreamReady    *bool  `json:"streamReady"`
}

func (e catalogEntry) name() string {
	if e.Title != "" {
		return e.Title
	}
	return e.Name
}

// available is false only when the service says so explicitly.
func (e catalogEntry) available() bool {
	if e.AllowStreaming != nil && !*e.AllowStreaming {
		return false
	}
	if e.StreamReady != nil && !*e.StreamReady {
		return false
	}
	return true
}

// flexID accepts both numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type pageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"totalNumberOfItems"`
	Items  []struct {
		Type string          `json:"type"`
		Item json.RawMessage `json:"item"`
	} `json:"items"`
}

// resourcePath maps a reference to its REST collection, e.g. "/tracks/1".
func resourcePath(ref media.Ref) (string, error) {
	var kind string
	switch ref.Kind {
	case media.KindTrack:
		kind = "tracks"
	case media.KindVideo:
		kind = "videos"
	case media.KindCollection:
		switch ref.Collection {
		case media.CollectionAlbum:
			kind = "albums"
		case media.CollectionPlaylist:
			kind = "playlists"
		case media.CollectionMix:
			kind = "mixes"
		}
	}
	if kind == "" || ref.ID == "" {
		return "", fmt.Errorf("%w: %s", media.ErrInvalidRef, ref)
	}
	return "/" + kind + "/" + url.PathEscape(ref.ID), nil
}

// Lookup fetches a track, video or collection. Items the service reports as
// not streamable come back with Ref.Available false.
func (c *Client) Lookup(ctx context.Context, ref media.Ref) (*media.Item, error) {
	path, err := resourcePath(ref)
	if err != nil {
		return nil, err
	}

	var entry catalogEntry
	raw, err := c.get(ctx, path, nil, &entry)
	if err != nil {
		return nil, err
	}

	ref.Available = entry.available()
	return &media.Item{Ref: ref, Name: entry.name(), Raw: raw}, nil
}

// Members lists every track and video of a collection in collection order,
// following pagination until the reported total is reached.
func (c *Client) Members(ctx context.Context, ref media.Ref) ([]media.Item, error) {
	if ref.Kind != media.KindCollection {
		return nil, fmt.Errorf("%w: %s is not a collection", media.ErrInvalidRef, ref)
	}
	path, err := resourcePath(ref)
	if err != nil {
		return nil, err
	}

	var members []media.Item
	for offset := 0; ; {
		params := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		var page pageResponse
		if _, err := c.get(ctx, path+"/items", params, &page); err != nil {
			return nil, err
		}

		for _, it := range page.Items {
			item, ok, err := memberItem(it.Type, it.Item)
			if err != nil {
				return nil, fmt.Errorf("%s member %d: %w", ref, len(members), err)
			}
			if ok {
				members = append(members, item)
			}
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Total {
			break
		}
	}

	c.log.Debug("listed collection", "ref", ref.String(), "members", len(members))
	return members, nil
}

// memberItem converts one page entry. Entries that are neither tracks nor
// videos are skipped.
func memberItem(typ string, raw json.RawMessage) (media.Item, bool, error) {
	var kind media.Kind
	switch typ {
	case "track", "":
		kind = media.KindTrack
	case "video":
		kind = media.KindVideo
	default:
		return media.Item{}, false, nil
	}

	var entry catalogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return media.Item{}, false, err
	}
	if entry.ID == "" {
		return media.Item{}, false, fmt.Errorf("missing id")
	}

	ref := media.Ref{ID: string(entry.ID), Kind: kind, Available: entry.available()}
	return media.Item{Ref: ref, Name: entry.name(), Raw: raw}, true, nil
}
