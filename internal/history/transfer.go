package history

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/vmunix/streamgrab/internal/atomicfile"
)

// Export writes a snapshot of the ledger to path.
func (s *Store) Export(path string) error {
	s.mu.Lock()
	tracks := maps.Clone(s.tracks)
	doc := exportDocument{
		SchemaVersion: SchemaVersion,
		LastUpdated:   s.lastUpdated,
		ExportedDate:  s.timestamp(),
		TotalTracks:   len(tracks),
		Settings:      s.settings,
		Tracks:        tracks,
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	s.log.Info("history exported", "path", path, "entries", len(tracks))
	return nil
}

// Import reads a ledger from path in either layout. Every entry must carry
// sourceType and downloadDate; a single violation rejects the whole file
// with a *ValidationError and leaves the ledger untouched. With merge,
// imported entries overwrite existing ones; otherwise they replace the
// ledger. A settings.preventDuplicates value in the file is applied.
func (s *Store) Import(path string, merge bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return 0, &ValidationError{Path: path, Problems: []string{err.Error()}}
	}
	if problems := validateEntries(doc.tracks); len(problems) > 0 {
		return 0, &ValidationError{Path: path, Problems: problems}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := doc.tracks
	if merge {
		next = maps.Clone(s.tracks)
		maps.Copy(next, doc.tracks)
	}
	settings := s.settings
	if doc.settings != nil && doc.settings.PreventDuplicates != nil {
		settings.PreventDuplicates = *doc.settings.PreventDuplicates
	}

	if err := s.writeLocked(next, settings); err != nil {
		return 0, err
	}
	s.tracks, s.settings = next, settings
	s.log.Info("history imported", "path", path, "entries", len(doc.tracks), "merge", merge)
	return len(doc.tracks), nil
}

func validateEntries(tracks map[string]Entry) []string {
	var problems []string
	for _, id := range slices.Sorted(maps.Keys(tracks)) {
		e := tracks[id]
		if e.SourceType == "" {
			problems = append(problems, fmt.Sprintf("track %s: missing sourceType", id))
		}
		if e.DownloadDate == "" {
			problems = append(problems, fmt.Sprintf("track %s: missing downloadDate", id))
		}
	}
	return problems
}
