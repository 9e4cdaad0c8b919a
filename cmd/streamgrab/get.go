package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vmunix/streamgrab/internal/download"
	"github.com/vmunix/streamgrab/internal/handlers"
	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/queue"
)

var getCmd = &cobra.Command{
	Use:   "get <ref|url>...",
	Short: "Download tracks, videos or collections",
	Long: `Download one or more items and wait until all of them are done.

References are kind:id pairs or service URLs:
  track:12345  video:678  album:9012  playlist:<uuid>  mix:<id>
  https://service.example/browse/album/9012

Items are processed one at a time in the order given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGetCmd,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("quality", "q", "", "Quality override (LOW, HIGH, LOSSLESS, HI_RES_LOSSLESS, or a video height)")
	getCmd.Flags().String("skip", "", "Skip policy override (disabled, extension_ignore, filename, append)")
	getCmd.Flags().Bool("no-delay", false, "Do not pause between downloads")
	getCmd.Flags().Bool("quiet", false, "Do not print progress")
}

// parseRefs parses every argument before anything is queued.
func parseRefs(args []string) ([]media.Ref, error) {
	refs := make([]media.Ref, 0, len(args))
	for _, arg := range args {
		ref, err := media.ParseRef(arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// taskOptions applies the command flags over the configured defaults.
func taskOptions(cmd *cobra.Command, base download.TaskOptions) (download.TaskOptions, error) {
	opts := base
	if q, _ := cmd.Flags().GetString("quality"); q != "" {
		quality := media.Quality(q)
		if !quality.IsAudio() && quality.Height() == 0 {
			return opts, fmt.Errorf("invalid quality: %s", q)
		}
		opts.Quality = quality
	}
	if s, _ := cmd.Flags().GetString("skip"); s != "" {
		p, err := download.ParseSkipPolicy(s)
		if err != nil {
			return opts, err
		}
		opts.Skip = p
	}
	if noDelay, _ := cmd.Flags().GetBool("no-delay"); noDelay {
		opts.Delay = false
	}
	return opts, nil
}

func runGetCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	refs, err := parseRefs(args)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireCredentials(); err != nil {
		return err
	}
	opts, err := taskOptions(cmd, a.taskOpts)
	if err != nil {
		return err
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	out := cmd.OutOrStdout()
	if jsonOutput {
		out = io.Discard
	}
	report := handlers.NewReportHandler(a.bus, out, !quiet, logger)
	reported := make(chan error, 1)
	go func() { reported <- report.Start(ctx) }()

	for _, ref := range refs {
		a.queue.Enqueue(ctx, download.NewTask(ref, opts))
	}

	runErr := a.worker.RunUntilDrained(ctx)

	// Closing the bus lets the reporter drain what is buffered and return.
	_ = a.bus.Close()
	<-reported

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), queueJSON(a.queue.List()))
	}

	// The reporter may have dropped events under load; the queue has not.
	sum := summarize(a.queue.List())
	fmt.Fprintf(out, "\n%d finished (%d files), %d skipped, %d failed\n",
		sum.Finished, sum.Files, sum.Skipped, sum.Failed)

	switch {
	case errors.Is(runErr, queue.ErrAborted), ctx.Err() != nil:
		return fmt.Errorf("interrupted with %d items waiting", a.queue.Counts()[queue.StatusWaiting])
	case runErr != nil:
		return runErr
	case sum.Failed > 0:
		return fmt.Errorf("%d of %d items failed", sum.Failed, len(refs))
	}
	return nil
}

// summarize counts the final outcome of every item in the run.
func summarize(items []queue.Item) handlers.Summary {
	var sum handlers.Summary
	for _, it := range items {
		switch it.Status {
		case queue.StatusFinished:
			sum.Finished++
			sum.Files += it.Count
		case queue.StatusFailed:
			sum.Failed++
		case queue.StatusSkipped:
			sum.Skipped++
		}
	}
	return sum
}
