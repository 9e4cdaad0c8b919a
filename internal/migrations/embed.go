// Package migrations provides embedded SQL migration files.
package migrations

import (
	"database/sql"
	_ "embed"
	"fmt"
)

// EventsSQL creates the event log table. It is safe to apply repeatedly.
//
//go:embed sql/001_events.sql
var EventsSQL string

// MetadataCacheSQL creates the lyrics and cover cache table.
//
//go:embed sql/002_metadata_cache.sql
var MetadataCacheSQL string

// Apply runs every migration against db in order. Each one is idempotent.
func Apply(db *sql.DB) error {
	for i, m := range []string{EventsSQL, MetadataCacheSQL} {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %03d: %w", i+1, err)
		}
	}
	return nil
}
