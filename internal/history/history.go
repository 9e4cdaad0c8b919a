// Package history persists the dedup ledger of downloaded tracks.
//
// The ledger is a single JSON document rewritten atomically on every
// mutation. A document that fails to parse is copied to a numbered backup
// and replaced with an empty ledger.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is written as _schema_version.
const SchemaVersion = 1

// Entry is the ledger value for one track id. Entries are never mutated in
// place, only overwritten.
type Entry struct {
	SourceType   string  `json:"sourceType"`
	SourceID     *string `json:"sourceId"`
	SourceName   *string `json:"sourceName"`
	DownloadDate string  `json:"downloadDate"`
}

// Record is an entry with its key.
type Record struct {
	TrackID string
	Entry
}

// SourceKey groups records by provenance: "{type}_{id}", or "{type}_manual"
// when there is no source id.
func (e Entry) SourceKey() string {
	id := "manual"
	if e.SourceID != nil && *e.SourceID != "" {
		id = *e.SourceID
	}
	return e.SourceType + "_" + id
}

// Settings are persisted alongside the entries.
type Settings struct {
	PreventDuplicates bool `json:"preventDuplicates"`
}

// DefaultSettings returns the settings of a fresh ledger.
func DefaultSettings() Settings {
	return Settings{PreventDuplicates: true}
}

// Statistics summarizes the ledger.
type Statistics struct {
	Total        int
	BySourceType map[string]int
	Oldest       time.Time // zero if no entry has a parseable date
	Newest       time.Time
}

type document struct {
	SchemaVersion int              `json:"_schema_version"`
	LastUpdated   string           `json:"_last_updated"`
	Settings      Settings         `json:"settings"`
	Tracks        map[string]Entry `json:"tracks"`
}

type exportDocument struct {
	SchemaVersion int              `json:"_schema_version"`
	LastUpdated   string           `json:"_last_updated"`
	ExportedDate  string           `json:"_exported_date"`
	TotalTracks   int              `json:"_total_tracks"`
	Settings      Settings         `json:"settings"`
	Tracks        map[string]Entry `json:"tracks"`
}

type settingsDoc struct {
	PreventDuplicates *bool `json:"preventDuplicates"`
}

// decoded is the result of reading either document layout.
type decoded struct {
	tracks      map[string]Entry
	settings    *settingsDoc
	lastUpdated string
	legacy      bool
}

// decodeDocument reads the nested layout, or the legacy layout with entries
// at the document root. Any structural or type error is ErrCorrupt.
func decodeDocument(data []byte) (decoded, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return decoded{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if root == nil {
		return decoded{}, fmt.Errorf("%w: document is null", ErrCorrupt)
	}

	var out decoded
	if raw, ok := root["settings"]; ok {
		var s settingsDoc
		if err := json.Unmarshal(raw, &s); err != nil {
			return decoded{}, fmt.Errorf("%w: settings: %v", ErrCorrupt, err)
		}
		out.settings = &s
	}
	if raw, ok := root["_last_updated"]; ok {
		_ = json.Unmarshal(raw, &out.lastUpdated)
	}

	entries := root
	if raw, ok := root["tracks"]; ok {
		entries = nil
		if err := json.Unmarshal(raw, &entries); err != nil {
			return decoded{}, fmt.Errorf("%w: tracks: %v", ErrCorrupt, err)
		}
	} else {
		out.legacy = true
	}

	out.tracks = make(map[string]Entry, len(entries))
	for id, raw := range entries {
		if out.legacy && (strings.HasPrefix(id, "_") || id == "settings") {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return decoded{}, fmt.Errorf("%w: entry %q is null", ErrCorrupt, id)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return decoded{}, fmt.Errorf("%w: entry %q: %v", ErrCorrupt, id, err)
		}
		out.tracks[id] = e
	}
	return out, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
