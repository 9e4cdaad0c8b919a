// Package metadata turns loosely structured catalog JSON into typed tags and
// writes sidecar files (lyrics, cover art) next to a downloaded item.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Tags are the typed metadata fields of a track or video. Fields the
// catalog did not supply, or supplied with an unexpected type, are zero.
type Tags struct {
	ID           string
	Title        string
	Version      string
	Artist       string
	Artists      []string
	Album        string
	AlbumID      string
	AlbumArtist  string
	TrackNumber  int
	DiscNumber   int
	ReleaseDate  string
	ISRC         string
	Copyright    string
	Explicit     bool
	Duration     int // seconds
	CoverID      string
	AudioQuality string
}

// FullTitle appends the version, if any: "Song (Remastered)".
func (t Tags) FullTitle() string {
	if t.Version == "" || strings.Contains(t.Title, t.Version) {
		return t.Title
	}
	return t.Title + " (" + t.Version + ")"
}

// Year returns the leading year of ReleaseDate, or "".
func (t Tags) Year() string {
	if len(t.ReleaseDate) < 4 {
		return ""
	}
	if _, err := strconv.Atoi(t.ReleaseDate[:4]); err != nil {
		return ""
	}
	return t.ReleaseDate[:4]
}

// CoverURL builds the image URL for the cover at the given square size.
// The service splits the cover id on dashes into path segments.
func (t Tags) CoverURL(base string, size int) string {
	if t.CoverID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%dx%d.jpg", strings.TrimRight(base, "/"), strings.ReplaceAll(t.CoverID, "-", "/"), size, size)
}

// setter applies one decoded JSON value to Tags. It reports false when the
// value has the wrong type; the field is then left untouched.
type setter func(t *Tags, v any) bool

type field struct {
	path string // dot separated
	set  setter
}

// fields is the complete mapping from catalog JSON to Tags. Later entries
// win, so fallbacks come first.
var fields = []field{
	{"id", text(func(t *Tags) *string { return &t.ID })},
	{"title", text(func(t *Tags) *string { return &t.Title })},
	{"version", text(func(t *Tags) *string { return &t.Version })},
	{"artist.name", text(func(t *Tags) *string { return &t.Artist })},
	{"artists", names(func(t *Tags) *[]string { return &t.Artists })},
	{"album.id", text(func(t *Tags) *string { return &t.AlbumID })},
	{"album.title", text(func(t *Tags) *string { return &t.Album })},
	{"artist.name", text(func(t *Tags) *string { return &t.AlbumArtist })},
	{"album.artist.name", text(func(t *Tags) *string { return &t.AlbumArtist })},
	{"trackNumber", number(func(t *Tags) *int { return &t.TrackNumber })},
	{"volumeNumber", number(func(t *Tags) *int { return &t.DiscNumber })},
	{"streamStartDate", text(func(t *Tags) *string { return &t.ReleaseDate })},
	{"album.releaseDate", text(func(t *Tags) *string { return &t.ReleaseDate })},
	{"releaseDate", text(func(t *Tags) *string { return &t.ReleaseDate })},
	{"isrc", text(func(t *Tags) *string { return &t.ISRC })},
	{"copyright", text(func(t *Tags) *string { return &t.Copyright })},
	{"explicit", flag(func(t *Tags) *bool { return &t.Explicit })},
	{"duration", number(func(t *Tags) *int { return &t.Duration })},
	{"imageId", text(func(t *Tags) *string { return &t.CoverID })},
	{"album.cover", text(func(t *Tags) *string { return &t.CoverID })},
	{"audioQuality", text(func(t *Tags) *string { return &t.AudioQuality })},
}

// ParseTags maps raw catalog JSON onto Tags. It never fails: a malformed
// document yields zero Tags, a mistyped field is left zero.
func ParseTags(raw json.RawMessage) Tags {
	var t Tags
	if len(raw) == 0 {
		return t
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return t
	}

	for _, f := range fields {
		v, ok := lookup(doc, f.path)
		if !ok || v == nil {
			continue
		}
		f.set(&t, v)
	}
	if t.Artist == "" && len(t.Artists) > 0 {
		t.Artist = t.Artists[0]
	}
	if t.AlbumArtist == "" {
		t.AlbumArtist = t.Artist
	}
	return t
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func text(ptr func(*Tags) *string) setter {
	return func(t *Tags, v any) bool {
		switch s := v.(type) {
		case string:
			if s == "" {
				return false
			}
			*ptr(t) = s
		case json.Number:
			*ptr(t) = s.String()
		default:
			return false
		}
		return true
	}
}

func number(ptr func(*Tags) *int) setter {
	return func(t *Tags, v any) bool {
		n, ok := v.(json.Number)
		if !ok {
			return false
		}
		i, err := n.Int64()
		if err != nil {
			return false
		}
		*ptr(t) = int(i)
		return true
	}
}

func flag(ptr func(*Tags) *bool) setter {
	return func(t *Tags, v any) bool {
		b, ok := v.(bool)
		if !ok {
			return false
		}
		*ptr(t) = b
		return true
	}
}

// names reads an array of {"name": ...} objects. Any malformed element
// discards the whole field.
func names(ptr func(*Tags) *[]string) setter {
	return func(t *Tags, v any) bool {
		list, ok := v.([]any)
		if !ok {
			return false
		}
		out := make([]string, 0, len(list))
		for _, el := range list {
			obj, ok := el.(map[string]any)
			if !ok {
				return false
			}
			name, ok := obj["name"].(string)
			if !ok {
				return false
			}
			out = append(out, name)
		}
		*ptr(t) = out
		return true
	}
}
