// Package media holds the data model shared by the download engine.
package media

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the kind of a media reference.
type Kind string

const (
	KindTrack      Kind = "track"
	KindVideo      Kind = "video"
	KindCollection Kind = "collection"
)

// Collection identifies what a collection reference points at.
type Collection string

const (
	CollectionNone     Collection = ""
	CollectionAlbum    Collection = "album"
	CollectionPlaylist Collection = "playlist"
	CollectionMix      Collection = "mix"
)

// Ref identifies a track, video or collection on the service.
// A Ref is immutable once resolved.
type Ref struct {
	ID         string
	Kind       Kind
	Collection Collection // set only for KindCollection
	Available  bool
}

// String returns "kind:id", or "collection:id" for collections.
func (r Ref) String() string {
	if r.Kind == KindCollection && r.Collection != CollectionNone {
		return string(r.Collection) + ":" + r.ID
	}
	return string(r.Kind) + ":" + r.ID
}

// ParseRef parses "track:123", "video:1", "album:9", "playlist:uuid",
// "mix:abc" as well as service URLs ending in ".../<kind>/<id>".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty reference", ErrInvalidRef)
	}

	var kind, id string
	if strings.Contains(s, "://") {
		parts := strings.Split(strings.Trim(strings.SplitN(s, "?", 2)[0], "/"), "/")
		if len(parts) < 2 {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
		}
		kind, id = parts[len(parts)-2], parts[len(parts)-1]
	} else {
		var ok bool
		kind, id, ok = strings.Cut(s, ":")
		if !ok {
			return Ref{}, fmt.Errorf("%w: %q (want kind:id)", ErrInvalidRef, s)
		}
	}

	if id == "" {
		return Ref{}, fmt.Errorf("%w: %q has no id", ErrInvalidRef, s)
	}

	switch strings.ToLower(kind) {
	case "track":
		return Ref{ID: id, Kind: KindTrack}, nil
	case "video":
		return Ref{ID: id, Kind: KindVideo}, nil
	case "album":
		return Ref{ID: id, Kind: KindCollection, Collection: CollectionAlbum}, nil
	case "playlist":
		return Ref{ID: id, Kind: KindCollection, Collection: CollectionPlaylist}, nil
	case "mix":
		return Ref{ID: id, Kind: KindCollection, Collection: CollectionMix}, nil
	}
	return Ref{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRef, kind)
}

// Item is a catalog entry: a resolved reference plus its loosely structured
// metadata as returned by the service.
type Item struct {
	Ref  Ref
	Name string
	Raw  json.RawMessage
}

// Source is the provenance of a download, recorded in history.
// Empty ID and Name are stored as null.
type Source struct {
	Type string
	ID   string
	Name string
}

// ManualSource is used for items requested directly rather than through a
// collection.
func ManualSource(kind Kind) Source {
	return Source{Type: string(kind)}
}

// Manifest describes how to fetch an item's bytes. It is built fresh per
// resolution and never cached.
type Manifest struct {
	URLs      []string
	MimeType  string
	Codec     string
	Encrypted bool
	KeyToken  string
}

// Quality is a requested stream quality. Audio qualities are named levels,
// video qualities are resolution heights ("1080").
type Quality string

const (
	QualityLow           Quality = "LOW"
	QualityHigh          Quality = "HIGH"
	QualityLossless      Quality = "LOSSLESS"
	QualityHiResLossless Quality = "HI_RES_LOSSLESS"
)

// VideoQualities are the supported video resolution heights.
var VideoQualities = []Quality{"360", "480", "720", "1080"}

// Height returns the resolution height for a video quality, or 0.
func (q Quality) Height() int {
	h, err := strconv.Atoi(string(q))
	if err != nil {
		return 0
	}
	return h
}

// IsAudio reports whether q is one of the named audio levels.
func (q Quality) IsAudio() bool {
	switch q {
	case QualityLow, QualityHigh, QualityLossless, QualityHiResLossless:
		return true
	}
	return false
}
