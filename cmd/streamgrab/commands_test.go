package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmunix/streamgrab/internal/download"
	"github.com/vmunix/streamgrab/internal/events"
	"github.com/vmunix/streamgrab/internal/handlers"
	"github.com/vmunix/streamgrab/internal/history"
	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/queue"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestParseRefs(t *testing.T) {
	refs, err := parseRefs([]string{"track:1", "https://service.example/browse/playlist/abc-def"})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, media.KindTrack, refs[0].Kind)
	assert.Equal(t, media.CollectionPlaylist, refs[1].Collection)
	assert.Equal(t, "abc-def", refs[1].ID)

	_, err = parseRefs([]string{"track:1", "podcast:2"})
	assert.ErrorIs(t, err, media.ErrInvalidRef)
}

func TestSummarize(t *testing.T) {
	items := []queue.Item{
		{Status: queue.StatusFinished, Count: 1},
		{Status: queue.StatusFinished, Count: 12},
		{Status: queue.StatusFailed},
		{Status: queue.StatusSkipped},
		{Status: queue.StatusSkipped},
		{Status: queue.StatusWaiting},
	}
	assert.Equal(t, handlers.Summary{Finished: 2, Files: 13, Failed: 1, Skipped: 2}, summarize(items))
	assert.Zero(t, summarize(nil))
}

func newFlagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().StringP("quality", "q", "", "")
	cmd.Flags().String("skip", "", "")
	cmd.Flags().Bool("no-delay", false, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestTaskOptions(t *testing.T) {
	base := download.TaskOptions{Skip: download.SkipExtensionIgnore, Delay: true}

	opts, err := taskOptions(newFlagCmd(t), base)
	require.NoError(t, err)
	assert.Equal(t, base, opts)

	opts, err = taskOptions(newFlagCmd(t, "-q", "LOSSLESS", "--skip", "append", "--no-delay"), base)
	require.NoError(t, err)
	assert.Equal(t, download.TaskOptions{Quality: media.QualityLossless, Skip: download.SkipAppend}, opts)

	opts, err = taskOptions(newFlagCmd(t, "-q", "720"), base)
	require.NoError(t, err)
	assert.Equal(t, media.Quality("720"), opts.Quality)

	_, err = taskOptions(newFlagCmd(t, "-q", "ULTRA"), base)
	assert.Error(t, err)

	_, err = taskOptions(newFlagCmd(t, "--skip", "never"), base)
	assert.ErrorIs(t, err, download.ErrUnknownSkipPolicy)
}

func seedHistory(t *testing.T, env *testEnv) {
	t.Helper()
	store, err := history.Open(env.historyPath, history.Options{})
	require.NoError(t, err)
	require.NoError(t, store.Add("101", media.Source{Type: "album", ID: "9", Name: "Kind of Blue"}))
	require.NoError(t, store.Add("102", media.Source{Type: "album", ID: "9", Name: "Kind of Blue"}))
	require.NoError(t, store.Add("200", media.ManualSource(media.KindTrack)))
}

func TestHistoryCommands(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)

	out, err := runCLI(t, "--config", env.configPath, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "101")
	assert.Contains(t, out, "Kind of Blue")

	out, err = runCLI(t, "--config", env.configPath, "history", "list", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 3 entries shown")

	out, err = runCLI(t, "--config", env.configPath, "history", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total:              3")
	assert.Contains(t, out, "album:")

	out, err = runCLI(t, "--config", env.configPath, "history", "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "album_9")
	assert.Contains(t, out, "track_manual")

	out, err = runCLI(t, "--config", env.configPath, "history", "search", "kind of blue")
	require.NoError(t, err)
	assert.Contains(t, out, "101")
	assert.NotContains(t, out, "200")

	out, err = runCLI(t, "--config", env.configPath, "--json", "history", "list")
	require.NoError(t, err)
	var records []recordJSON
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 3)
}

func TestHistoryRemove(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)

	out, err := runCLI(t, "--config", env.configPath, "history", "remove", "101", "999")
	require.NoError(t, err)
	assert.Contains(t, out, "removed: 101")
	assert.Contains(t, out, "not in history: 999")

	_, err = runCLI(t, "--config", env.configPath, "history", "remove", "999")
	assert.Error(t, err)

	store, err := history.Open(env.historyPath, history.Options{})
	require.NoError(t, err)
	assert.False(t, store.IsDownloaded("101"))
	assert.True(t, store.IsDownloaded("102"))
}

func TestHistoryExportImport(t *testing.T) {
	env := newTestEnv(t)
	seedHistory(t, env)
	export := filepath.Join(env.dir, "export.json")

	out, err := runCLI(t, "--config", env.configPath, "history", "export", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 3 entries")

	_, err = runCLI(t, "--config", env.configPath, "history", "clear")
	assert.Error(t, err, "clear needs --yes")

	out, err = runCLI(t, "--config", env.configPath, "history", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 3 entries")

	out, err = runCLI(t, "--config", env.configPath, "history", "import", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 entries")

	bad := filepath.Join(env.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"1": {"downloadDate": "2024-01-01T00:00:00"}}`), 0o644))
	out, err = runCLI(t, "--config", env.configPath, "history", "import", bad, "--merge")
	require.Error(t, err)
	assert.Contains(t, out, "Import rejected")
}

func TestHistorySettings(t *testing.T) {
	env := newTestEnv(t)

	out, err := runCLI(t, "--config", env.configPath, "history", "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "prevent_duplicates = true")

	out, err = runCLI(t, "--config", env.configPath, "history", "settings", "--prevent-duplicates", "false")
	require.NoError(t, err)
	assert.Contains(t, out, "prevent_duplicates = false")

	_, err = runCLI(t, "--config", env.configPath, "history", "settings", "--prevent-duplicates", "maybe")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "new", "config.toml")

	out, err := runCLI(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = runCLI(t, "config", "init", path)
	assert.Error(t, err, "existing file is not overwritten")

	_, err = runCLI(t, "config", "init", path, "--force")
	require.NoError(t, err)

	out, err = runCLI(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid!")

	out, err = runCLI(t, "--config", env.configPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# "+env.configPath)
	assert.Contains(t, out, env.historyPath)
}

func TestConfigValidate_Invalid(t *testing.T) {
	env := newTestEnv(t)
	bad := filepath.Join(env.dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[quality]\naudio = \"ULTRA\"\n"), 0o644))

	out, err := runCLI(t, "config", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "Validation failed:")
}

func TestEventsCommand(t *testing.T) {
	env := newTestEnv(t)

	db, err := events.OpenDB(env.eventsPath)
	require.NoError(t, err)
	log := events.NewEventLog(db)
	_, err = log.Append(&events.ItemQueued{
		BaseEvent: events.NewBaseEvent(events.EventItemQueued, events.EntityItem, "item-1"),
		Ref:       "track:1",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := runCLI(t, "--config", env.configPath, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "item.queued")
	assert.Contains(t, out, "item-1")
	assert.Contains(t, out, "track:1")

	out, err = runCLI(t, "--config", env.configPath, "events", "--item", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "No events")

	out, err = runCLI(t, "--config", env.configPath, "--json", "events", "--since", "1h")
	require.NoError(t, err)
	var got []eventJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Payload, `"ref":"track:1"`)
}

func TestAuthStatus(t *testing.T) {
	env := newTestEnv(t)

	out, err := runCLI(t, "--config", env.configPath, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "normal     not configured")
}

func TestGet_RequiresCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, err := runCLI(t, "--config", env.configPath, "get", "track:1")
	assert.ErrorIs(t, err, errNoCredentials)
}

func TestGet_RejectsBadRefBeforeLoadingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", "/does/not/exist.toml", "get", "song:1")
	assert.ErrorIs(t, err, media.ErrInvalidRef)
}
