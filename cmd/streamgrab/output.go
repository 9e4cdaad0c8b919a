package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vmunix/streamgrab/internal/queue"
)

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

type itemJSON struct {
	ID     string `json:"id"`
	Ref    string `json:"ref"`
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason,omitempty"`
	Count  int    `json:"count,omitempty"`
	Error  string `json:"error,omitempty"`
}

func queueJSON(items []queue.Item) []itemJSON {
	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, itemJSON{
			ID:     it.ID,
			Ref:    it.Task.Ref.String(),
			Status: string(it.Status),
			Path:   it.Path,
			Reason: string(it.Reason),
			Count:  it.Count,
			Error:  it.Error,
		})
	}
	return out
}

// formatAgo renders t relative to now, or "never" for the zero time.
func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// deref returns the pointed-to string or "-".
func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func rule(w io.Writer, n int) {
	fmt.Fprintln(w, "  "+strings.Repeat("-", n))
}
