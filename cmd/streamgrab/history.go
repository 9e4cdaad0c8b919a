package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vmunix/streamgrab/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage the download history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloaded tracks, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

var historySourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Group history entries by album, playlist or mix",
	Args:  cobra.NoArgs,
	RunE:  runHistorySources,
}

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy search history by source name or track id",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistorySearch,
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <track-id>...",
	Short: "Forget tracks so they can be downloaded again",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistoryRemove,
}

var historyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a history file (replaces the ledger unless --merge)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryImport,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the history to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryExport,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every history entry",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

var historySettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change history settings",
	Args:  cobra.NoArgs,
	RunE:  runHistorySettings,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyStatsCmd, historySourcesCmd, historySearchCmd,
		historyRemoveCmd, historyImportCmd, historyExportCmd, historyClearCmd, historySettingsCmd)

	historyListCmd.Flags().IntP("limit", "n", 50, "Number of entries to show (0 for all)")
	historyImportCmd.Flags().Bool("merge", false, "Merge into the existing history instead of replacing it")
	historyClearCmd.Flags().Bool("yes", false, "Confirm clearing the history")
	historySettingsCmd.Flags().String("prevent-duplicates", "", "Set duplicate prevention (true or false)")
}

// openHistory opens only the history ledger; no network or event log.
func openHistory() (*history.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.History.Path, history.Options{Logger: newLogger(os.Stderr, cfg)})
}

type recordJSON struct {
	TrackID      string  `json:"track_id"`
	SourceType   string  `json:"source_type"`
	SourceID     *string `json:"source_id"`
	SourceName   *string `json:"source_name"`
	DownloadDate string  `json:"download_date"`
}

func recordsJSON(records []history.Record) []recordJSON {
	out := make([]recordJSON, 0, len(records))
	for _, r := range records {
		out = append(out, recordJSON{
			TrackID:      r.TrackID,
			SourceType:   r.SourceType,
			SourceID:     r.SourceID,
			SourceName:   r.SourceName,
			DownloadDate: r.DownloadDate,
		})
	}
	return out
}

func printRecords(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No entries")
		return
	}
	fmt.Fprintf(w, "  %-14s %-10s %-30s %s\n", "TRACK", "SOURCE", "NAME", "DOWNLOADED")
	rule(w, 75)
	for _, r := range records {
		fmt.Fprintf(w, "  %-14s %-10s %-30s %s\n", r.TrackID, r.SourceType, truncate(deref(r.SourceName), 30), r.DownloadDate)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	records := store.Records()
	total := len(records)
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), recordsJSON(records))
	}
	out := cmd.OutOrStdout()
	printRecords(out, records)
	if len(records) < total {
		fmt.Fprintf(out, "\n  %d of %d entries shown\n", len(records), total)
	}
	return nil
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	stats := store.Statistics()
	settings := store.Settings()

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"total":              stats.Total,
			"by_source_type":     stats.BySourceType,
			"oldest":             stats.Oldest,
			"newest":             stats.Newest,
			"prevent_duplicates": settings.PreventDuplicates,
			"path":               store.Path(),
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "History: %s\n\n", store.Path())
	fmt.Fprintf(out, "  Total:              %d\n", stats.Total)
	for _, typ := range slices.Sorted(maps.Keys(stats.BySourceType)) {
		fmt.Fprintf(out, "    %-18s %d\n", typ+":", stats.BySourceType[typ])
	}
	fmt.Fprintf(out, "  Oldest:             %s\n", formatAgo(stats.Oldest))
	fmt.Fprintf(out, "  Newest:             %s\n", formatAgo(stats.Newest))
	fmt.Fprintf(out, "  Prevent duplicates: %t\n", settings.PreventDuplicates)
	return nil
}

func runHistorySources(cmd *cobra.Command, _ []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	groups := store.BySource()
	keys := slices.Sorted(maps.Keys(groups))

	if jsonOutput {
		out := make(map[string][]recordJSON, len(groups))
		for k, v := range groups {
			out[k] = recordsJSON(v)
		}
		return printJSON(cmd.OutOrStdout(), out)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(out, "No entries")
		return nil
	}
	fmt.Fprintf(out, "  %-30s %-30s %s\n", "SOURCE", "NAME", "TRACKS")
	rule(out, 70)
	for _, k := range keys {
		recs := groups[k]
		fmt.Fprintf(out, "  %-30s %-30s %d\n", truncate(k, 30), truncate(deref(recs[0].SourceName), 30), len(recs))
	}
	return nil
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	records := store.Search(args[0])
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), recordsJSON(records))
	}
	printRecords(cmd.OutOrStdout(), records)
	return nil
}

func runHistoryRemove(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var missing int
	for _, id := range args {
		removed, err := store.Remove(id)
		if err != nil {
			return err
		}
		if !removed {
			missing++
			fmt.Fprintf(out, "not in history: %s\n", id)
			continue
		}
		fmt.Fprintf(out, "removed: %s\n", id)
	}
	if missing == len(args) {
		return errors.New("nothing removed")
	}
	return nil
}

func runHistoryImport(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	merge, _ := cmd.Flags().GetBool("merge")

	n, err := store.Import(args[0], merge)
	if err != nil {
		var verr *history.ValidationError
		if errors.As(err, &verr) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Import rejected, %d problems in %s:\n", len(verr.Problems), verr.Path)
			for _, p := range verr.Problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return errors.New("import rejected")
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s\n", n, store.Path())
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	if err := store.Export(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", store.Statistics().Total, args[0])
	return nil
}

func runHistoryClear(cmd *cobra.Command, _ []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.New("refusing to clear history without --yes")
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	n := store.Statistics().Total
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", n)
	return nil
}

func runHistorySettings(cmd *cobra.Command, _ []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("prevent-duplicates"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid --prevent-duplicates value: %s", v)
		}
		if err := store.SetPreventDuplicates(on); err != nil {
			return err
		}
	}

	settings := store.Settings()
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]bool{"prevent_duplicates": settings.PreventDuplicates})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "prevent_duplicates = %t\n", settings.PreventDuplicates)
	return nil
}
