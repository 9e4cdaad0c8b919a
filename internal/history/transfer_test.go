package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmunix/streamgrab/internal/media"
)

func TestExportImport_RoundTrip(t *testing.T) {
	src, _ := openTestStore(t)
	require.NoError(t, src.Add("1", media.Source{Type: "album", ID: "a", Name: "Album"}))
	require.NoError(t, src.Add("2", media.ManualSource(media.KindVideo)))
	require.NoError(t, src.Add("3", media.Source{Type: "mix", ID: "m"}))

	exportPath := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, src.Export(exportPath))

	var raw map[string]any
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 3, raw["_total_tracks"])
	assert.Contains(t, raw, "_exported_date")
	assert.EqualValues(t, SchemaVersion, raw["_schema_version"])

	dst, _ := openTestStore(t)
	n, err := dst.Import(exportPath, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, src.Records(), dst.Records())
}

func TestImport_RejectsWholeFile(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add("keep", media.ManualSource(media.KindTrack)))
	before := s.Records()

	path := filepath.Join(t.TempDir(), "bad.json")
	bad := `{"tracks": {
		"1": {"sourceType": "album", "downloadDate": "2024-01-01T00:00:00Z"},
		"2": {"sourceType": "album"},
		"3": {"downloadDate": "2024-01-01T00:00:00Z"}
	}, "settings": {"preventDuplicates": false}}`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := s.Import(path, true)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrInvalidImport)
	assert.Len(t, verr.Problems, 2)
	assert.Contains(t, err.Error(), "track 2: missing downloadDate")
	assert.Contains(t, err.Error(), "track 3: missing sourceType")

	assert.Equal(t, before, s.Records())
	assert.True(t, s.Settings().PreventDuplicates, "settings untouched on rejection")
}

func TestImport_MalformedJSON(t *testing.T) {
	s, _ := openTestStore(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

	_, err := s.Import(path, false)
	assert.ErrorIs(t, err, ErrInvalidImport)
}

func TestImport_MergeAndSettings(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add("1", media.Source{Type: "album", ID: "a"}))
	require.NoError(t, s.Add("2", media.Source{Type: "album", ID: "a"}))

	path := filepath.Join(t.TempDir(), "legacy.json")
	legacy := `{
		"2": {"sourceType": "playlist", "sourceId": "p", "sourceName": null, "downloadDate": "2024-01-01T00:00:00Z"},
		"9": {"sourceType": "track", "sourceId": null, "sourceName": null, "downloadDate": "2024-01-02T00:00:00Z"},
		"settings": {"preventDuplicates": false}
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	n, err := s.Import(path, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, s.IsDownloaded("1"))
	assert.True(t, s.IsDownloaded("9"))
	e, ok := s.Get("2")
	require.True(t, ok)
	assert.Equal(t, "playlist", e.SourceType)
	assert.False(t, s.Settings().PreventDuplicates)
}

func TestImport_Replace(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add("1", media.ManualSource(media.KindTrack)))

	path := filepath.Join(t.TempDir(), "import.json")
	doc := `{"tracks": {"5": {"sourceType": "album", "downloadDate": "2024-01-01T00:00:00Z"}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := s.Import(path, false)
	require.NoError(t, err)
	assert.False(t, s.IsDownloaded("1"))
	assert.True(t, s.IsDownloaded("5"))
}
