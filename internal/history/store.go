package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vmunix/streamgrab/internal/atomicfile"
	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metrics"
	"github.com/vmunix/streamgrab/pkg/naming"
)

const maxBackups = 1000

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Store is the ledger. One mutex guards the in-memory state and all file
// I/O; construct one per file and share it.
type Store struct {
	mu          sync.Mutex
	path        string
	tracks      map[string]Entry
	settings    Settings
	lastUpdated string

	now func() time.Time
	log *slog.Logger
}

// Open loads the ledger at path. A missing file yields an empty ledger
// without writing; a corrupt file is backed up and reset.
func Open(path string, opts Options) (*Store, error) {
	s := &Store{
		path: path,
		now:  opts.Now,
		log:  opts.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "history")

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the file, discarding in-memory state.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.tracks, s.settings, s.lastUpdated = map[string]Entry{}, DefaultSettings(), ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return s.resetLocked(data, err)
	}

	settings := DefaultSettings()
	if doc.settings != nil && doc.settings.PreventDuplicates != nil {
		settings.PreventDuplicates = *doc.settings.PreventDuplicates
	}

	if doc.legacy {
		s.log.Info("migrating legacy history layout", "path", s.path, "entries", len(doc.tracks))
		if err := s.writeLocked(doc.tracks, settings); err != nil {
			return fmt.Errorf("migrate history: %w", err)
		}
	} else {
		s.lastUpdated = doc.lastUpdated
	}

	s.tracks, s.settings = doc.tracks, settings
	s.log.Debug("history loaded", "path", s.path, "entries", len(s.tracks))
	return nil
}

// resetLocked preserves the corrupt bytes in a new backup and persists an
// empty ledger in their place.
func (s *Store) resetLocked(corrupt []byte, cause error) error {
	backup, err := writeBackup(s.path, corrupt)
	if err != nil {
		return fmt.Errorf("back up corrupt history: %w", err)
	}
	metrics.RecordHistoryReset()
	s.log.Warn("history file corrupt, reset to empty", "path", s.path, "backup", backup, "error", cause)

	tracks, settings := map[string]Entry{}, DefaultSettings()
	if err := s.writeLocked(tracks, settings); err != nil {
		return fmt.Errorf("reset history: %w", err)
	}
	s.tracks, s.settings = tracks, settings
	return nil
}

// writeBackup writes data to the first free name of path.bak, path.bak.1, ...
func writeBackup(path string, data []byte) (string, error) {
	for n := 0; n < maxBackups; n++ {
		name := path + ".bak"
		if n > 0 {
			name = fmt.Sprintf("%s.bak.%d", path, n)
		}
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", err
		}
		return name, f.Close()
	}
	return "", fmt.Errorf("more than %d backups of %s", maxBackups, path)
}

// writeLocked persists the given state. The caller swaps it into memory only
// when this succeeds.
func (s *Store) writeLocked(tracks map[string]Entry, settings Settings) error {
	if tracks == nil {
		tracks = map[string]Entry{}
	}
	updated := s.timestamp()
	data, err := json.MarshalIndent(document{
		SchemaVersion: SchemaVersion,
		LastUpdated:   updated,
		Settings:      settings,
		Tracks:        tracks,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		metrics.RecordHistoryWrite(false, len(s.tracks))
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		metrics.RecordHistoryWrite(false, len(s.tracks))
		return fmt.Errorf("write history: %w", err)
	}
	metrics.RecordHistoryWrite(true, len(tracks))
	s.lastUpdated = updated
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// IsDownloaded reports whether id has an entry.
func (s *Store) IsDownloaded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[id]
	return ok
}

// ShouldSkipDownload is PreventDuplicates && IsDownloaded(id).
func (s *Store) ShouldSkipDownload(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.settings.PreventDuplicates {
		return false
	}
	_, ok := s.tracks[id]
	return ok
}

// Get returns the entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tracks[id]
	return e, ok
}

// Add records id as downloaded now, overwriting any previous entry.
func (s *Store) Add(id string, src media.Source) error {
	if id == "" {
		return errors.New("add history: empty track id")
	}
	sourceType := src.Type
	if sourceType == "" {
		sourceType = "manual"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.tracks)
	next[id] = Entry{
		SourceType:   sourceType,
		SourceID:     strPtr(src.ID),
		SourceName:   strPtr(src.Name),
		DownloadDate: s.timestamp(),
	}
	if err := s.writeLocked(next, s.settings); err != nil {
		return err
	}
	s.tracks = next
	return nil
}

// Remove deletes id. It reports false without writing if id was absent.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracks[id]; !ok {
		return false, nil
	}
	next := maps.Clone(s.tracks)
	delete(next, id)
	if err := s.writeLocked(next, s.settings); err != nil {
		return false, err
	}
	s.tracks = next
	return true, nil
}

// Clear removes every entry and keeps the settings.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := map[string]Entry{}
	if err := s.writeLocked(next, s.settings); err != nil {
		return err
	}
	s.tracks = next
	return nil
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetPreventDuplicates persists the duplicate-prevention setting.
func (s *Store) SetPreventDuplicates(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settings
	settings.PreventDuplicates = on
	if err := s.writeLocked(s.tracks, settings); err != nil {
		return err
	}
	s.settings = settings
	return nil
}

// Records returns all entries, newest first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsLocked()
}

func (s *Store) recordsLocked() []Record {
	out := make([]Record, 0, len(s.tracks))
	for id, e := range s.tracks {
		out = append(out, Record{TrackID: id, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DownloadDate != out[j].DownloadDate {
			return out[i].DownloadDate > out[j].DownloadDate
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}

// BySource groups entries by Entry.SourceKey.
func (s *Store) BySource() map[string][]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]Record)
	for _, r := range s.recordsLocked() {
		key := r.SourceKey()
		out[key] = append(out[key], r)
	}
	return out
}

// Statistics counts entries by source type and finds the date range.
func (s *Store) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		Total:        len(s.tracks),
		BySourceType: make(map[string]int),
	}
	for _, e := range s.tracks {
		stats.BySourceType[e.SourceType]++
		t, ok := parseDate(e.DownloadDate)
		if !ok {
			continue
		}
		if stats.Oldest.IsZero() || t.Before(stats.Oldest) {
			stats.Oldest = t
		}
		if t.After(stats.Newest) {
			stats.Newest = t
		}
	}
	return stats
}

// Search returns records whose source name fuzzily matches query, best
// match first. An exact track id match comes before all others.
func (s *Store) Search(query string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName := make(map[string][]Record)
	var exact []Record
	for _, r := range s.recordsLocked() {
		if r.TrackID == query {
			exact = append(exact, r)
			continue
		}
		if r.SourceName != nil {
			byName[*r.SourceName] = append(byName[*r.SourceName], r)
		}
	}

	names := slices.Sorted(maps.Keys(byName))
	out := exact
	for _, m := range naming.Rank(query, names, naming.ConfidenceMedium) {
		out = append(out, byName[m.Name]...)
	}
	return out
}
