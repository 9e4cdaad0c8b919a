package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/vmunix/streamgrab/internal/download"
	"github.com/vmunix/streamgrab/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [ref|url]...",
	Short: "Run the download queue behind a local control API",
	Long: `Run the download queue until interrupted.

Items are added over the control API (POST /api/v1/queue) or given as
arguments. The API also pauses, resumes and aborts the queue and exposes
history, events and Prometheus metrics on /metrics.`,
	RunE: runServeCmd,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default: server.host:server.port)")
	serveCmd.Flags().Bool("paused", false, "Start with the queue paused")
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	refs, err := parseRefs(args)
	if err != nil {
		return err
	}

	cfg, path, err := loadConfig()
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
	if paused, _ := cmd.Flags().GetBool("paused"); paused {
		a.gate.Close()
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	api := server.NewAPI(server.APIDeps{
		Queue:   a.queue,
		Gate:    a.gate,
		Abort:   a.abort,
		History: a.history,
		Events:  a.eventLog,
	}, a.taskOpts)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	for _, ref := range refs {
		a.queue.Enqueue(ctx, download.NewTask(ref, a.taskOpts))
	}

	logger.Info("streamgrab starting",
		"version", version,
		"config", path,
		"addr", addr,
		"download_root", cfg.Download.Root,
		"events", cfg.Events.Enabled,
		"log_level", cfg.Log.Level,
	)

	runner := server.NewRunner(a.worker, a.gate, a.abort, a.eventLog,
		server.LogRequests(mux, logger.With("component", "http")),
		server.Config{Addr: addr, Retention: cfg.Events.Retention}, logger)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("streamgrab stopped")
	return nil
}
