package history

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmunix/streamgrab/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ticker returns a clock that advances one minute per call.
func ticker() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	s, err := Open(path, Options{Logger: testLogger(), Now: ticker()})
	require.NoError(t, err)
	return s, path
}

func backups(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(path + ".bak*")
	require.NoError(t, err)
	return matches
}

func TestOpen_MissingFileDoesNotWrite(t *testing.T) {
	s, path := openTestStore(t)

	assert.Empty(t, s.Records())
	assert.True(t, s.Settings().PreventDuplicates)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestScenarioA_AddThenGroupBySource(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Add("111", media.Source{Type: "playlist", ID: "pl-1", Name: "My List"}))

	assert.True(t, s.IsDownloaded("111"))
	groups := s.BySource()
	require.Len(t, groups, 1)
	require.Len(t, groups["playlist_pl-1"], 1)

	rec := groups["playlist_pl-1"][0]
	assert.Equal(t, "111", rec.TrackID)
	assert.Equal(t, "playlist", rec.SourceType)
	require.NotNil(t, rec.SourceID)
	assert.Equal(t, "pl-1", *rec.SourceID)
	require.NotNil(t, rec.SourceName)
	assert.Equal(t, "My List", *rec.SourceName)
}

func TestBySource_ManualKey(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add("1", media.ManualSource(media.KindTrack)))

	groups := s.BySource()
	assert.Contains(t, groups, "track_manual")
}

func TestShouldSkipDownload(t *testing.T) {
	for _, prevent := range []bool{true, false} {
		for _, downloaded := range []bool{true, false} {
			t.Run(fmt.Sprintf("prevent=%v/downloaded=%v", prevent, downloaded), func(t *testing.T) {
				s, _ := openTestStore(t)
				require.NoError(t, s.SetPreventDuplicates(prevent))
				if downloaded {
					require.NoError(t, s.Add("42", media.ManualSource(media.KindTrack)))
				}
				assert.Equal(t, prevent && downloaded, s.ShouldSkipDownload("42"))
				assert.Equal(t, downloaded, s.IsDownloaded("42"))
			})
		}
	}
}

func TestAdd_LastWriteWins(t *testing.T) {
	s, path := openTestStore(t)

	require.NoError(t, s.Add("7", media.Source{Type: "album", ID: "a1", Name: "First"}))
	require.NoError(t, s.Add("7", media.Source{Type: "mix", ID: "m1", Name: "Second"}))

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "mix", records[0].SourceType)
	assert.Equal(t, "Second", *records[0].SourceName)

	reopened, err := Open(path, Options{Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, s.Records(), reopened.Records())
}

func TestReload_RoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Add("1", media.Source{Type: "album", ID: "a", Name: "A"}))
	require.NoError(t, s.Add("2", media.ManualSource(media.KindVideo)))
	require.NoError(t, s.Add("3", media.Source{Type: "playlist", ID: "p"}))
	_, err := s.Remove("1")
	require.NoError(t, err)
	require.NoError(t, s.SetPreventDuplicates(false))

	before := s.Records()
	settings := s.Settings()
	require.NoError(t, s.Reload())

	assert.Equal(t, before, s.Records())
	assert.Equal(t, settings, s.Settings())
}

func TestRemove(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add("1", media.ManualSource(media.KindTrack)))

	removed, err := s.Remove("1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove("1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestClear_KeepsSettings(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.SetPreventDuplicates(false))
	require.NoError(t, s.Add("1", media.ManualSource(media.KindTrack)))

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Records())
	assert.False(t, s.Settings().PreventDuplicates)
}

func TestStatistics(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add("1", media.Source{Type: "album", ID: "a"}))
	require.NoError(t, s.Add("2", media.Source{Type: "album", ID: "a"}))
	require.NoError(t, s.Add("3", media.Source{Type: "playlist", ID: "p"}))

	stats := s.Statistics()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"album": 2, "playlist": 1}, stats.BySourceType)
	first, _ := s.Get("1")
	last, _ := s.Get("3")
	assert.Equal(t, first.DownloadDate, stats.Oldest.Format(time.RFC3339))
	assert.Equal(t, last.DownloadDate, stats.Newest.Format(time.RFC3339))
	assert.True(t, stats.Oldest.Before(stats.Newest))
}

func TestSearch(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add("1", media.Source{Type: "playlist", ID: "p1", Name: "Road Trip Classics"}))
	require.NoError(t, s.Add("2", media.Source{Type: "album", ID: "a1", Name: "Nocturnes"}))
	require.NoError(t, s.Add("3", media.ManualSource(media.KindTrack)))

	got := s.Search("road trip")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].TrackID)

	got = s.Search("3")
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].TrackID)
}

func TestLoad_CorruptFileIsBackedUpAndReset(t *testing.T) {
	s, path := openTestStore(t)
	require.NoError(t, s.Add("1", media.ManualSource(media.KindTrack)))

	garbage := []byte("{not json at all")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	require.NoError(t, s.Reload())

	baks := backups(t, path)
	require.Len(t, baks, 1)
	assert.Equal(t, path+".bak", baks[0])
	saved, err := os.ReadFile(baks[0])
	require.NoError(t, err)
	assert.Equal(t, garbage, saved)

	assert.Empty(t, s.Records())
	assert.Equal(t, DefaultSettings(), s.Settings())

	// The reset state is persisted immediately.
	var doc document
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, SchemaVersion, doc.SchemaVersion)
	assert.Empty(t, doc.Tracks)
}

func TestLoad_BackupsAreNeverOverwritten(t *testing.T) {
	s, path := openTestStore(t)

	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))
	require.NoError(t, s.Reload())
	require.NoError(t, os.WriteFile(path, []byte("[\"second\"]"), 0o644))
	require.NoError(t, s.Reload())

	first, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))
	second, err := os.ReadFile(path + ".bak.1")
	require.NoError(t, err)
	assert.Equal(t, "[\"second\"]", string(second))
}

func TestLoad_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"null document", `null`},
		{"tracks not an object", `{"tracks": []}`},
		{"entry wrong type", `{"tracks": {"1": {"sourceType": 5}}}`},
		{"null entry", `{"tracks": {"1": null}}`},
		{"settings wrong type", `{"settings": {"preventDuplicates": "yes"}, "tracks": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "history.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			s, err := Open(path, Options{Logger: testLogger()})
			require.NoError(t, err)
			assert.Empty(t, s.Records())
			assert.Len(t, backups(t, path), 1)
		})
	}
}

func TestLoad_LegacyLayoutIsMigrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	legacy := `{
		"555": {"sourceType": "album", "sourceId": "al-9", "sourceName": "Old", "downloadDate": "2023-05-01T10:00:00+00:00"},
		"_schema_version": 0
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := Open(path, Options{Logger: testLogger()})
	require.NoError(t, err)
	assert.True(t, s.IsDownloaded("555"))
	assert.Len(t, s.Records(), 1)
	assert.Empty(t, backups(t, path))

	var doc document
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc.Tracks, "555")
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	s, _ := openTestStore(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, s.Add(fmt.Sprint(i), media.ManualSource(media.KindTrack)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.IsDownloaded("10")
			_ = s.Records()
		}
	}()
	wg.Wait()

	assert.Len(t, s.Records(), 20)
}
