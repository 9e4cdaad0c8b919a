package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmunix/streamgrab/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent queue events",
	Args:  cobra.NoArgs,
	RunE:  runEventsCmd,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	eventsCmd.Flags().Duration("since", 0, "Show every event newer than this (e.g. 2h)")
	eventsCmd.Flags().String("item", "", "Show events of one queue item")
}

type eventJSON struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Payload    string    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

func runEventsCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Events.Enabled {
		return errors.New("event log is disabled (events.enabled = false)")
	}

	db, err := events.OpenDB(cfg.Events.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	log := events.NewEventLog(db)

	limit, _ := cmd.Flags().GetInt("limit")
	since, _ := cmd.Flags().GetDuration("since")
	item, _ := cmd.Flags().GetString("item")

	var raw []events.RawEvent
	switch {
	case item != "":
		raw, err = log.ForEntity(events.EntityItem, item)
	case since > 0:
		raw, err = log.Since(time.Now().Add(-since))
	default:
		raw, err = log.Recent(limit)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}

	if jsonOutput {
		out := make([]eventJSON, 0, len(raw))
		for _, e := range raw {
			out = append(out, eventJSON{
				ID:         e.ID,
				Type:       e.EventType,
				EntityType: e.EntityType,
				EntityID:   e.EntityID,
				Payload:    e.Payload,
				OccurredAt: e.OccurredAt,
			})
		}
		return printJSON(cmd.OutOrStdout(), out)
	}

	out := cmd.OutOrStdout()
	if len(raw) == 0 {
		fmt.Fprintln(out, "No events")
		return nil
	}

	fmt.Fprintf(out, "Events (%d):\n\n", len(raw))
	fmt.Fprintf(out, "  %-16s %-18s %-38s %s\n", "TIME", "TYPE", "ITEM", "DETAIL")
	rule(out, 100)
	for _, e := range raw {
		detail := ""
		if decoded, err := events.Decode(e); err == nil {
			detail = events.Describe(decoded)
		}
		fmt.Fprintf(out, "  %-16s %-18s %-38s %s\n", formatAgo(e.OccurredAt), e.EventType, e.EntityID, detail)
	}
	return nil
}
